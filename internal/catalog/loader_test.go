package catalog_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/p-n-ai/pai-compass/internal/catalog"
	"github.com/p-n-ai/pai-compass/internal/solo"
	"github.com/p-n-ai/pai-compass/internal/store"
)

func setupTestCatalog(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(rel, content string) {
		t.Helper()
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}

	write("toledo/01-vitrales.yaml", `
kc_id: KC_VIT
title: Vitrales góticos
description: Luz y color en la catedral
target_SOLO_level: relational
kc_city: Madrid
approved: true
`)
	write("toledo/02-batch.yml", `
kcs:
  - kc_id: KC_ARC
    title: Arcos mudéjares
    target_SOLO_level: Multi-structural
    approved: true
  - kc_id: KC_DRAFT
    title: Borrador
    approved: false
  - title: Sin id
    approved: true
`)
	write("toledo/notes.md", "# not a catalog file\n")
	write("broken.yaml", "kc_id: [unterminated\n")

	return dir
}

func TestLoader_LoadsApprovedOnly(t *testing.T) {
	loader, err := catalog.NewLoader(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	all := loader.All()
	if len(all) != 2 {
		t.Fatalf("len(All()) = %d, want 2", len(all))
	}
	if all[0].KCID != "KC_VIT" || all[1].KCID != "KC_ARC" {
		t.Errorf("All() order = %s,%s, want KC_VIT,KC_ARC", all[0].KCID, all[1].KCID)
	}

	if _, found := loader.Get("KC_DRAFT"); found {
		t.Error("Get(KC_DRAFT) should not be found")
	}
}

func TestLoader_Get(t *testing.T) {
	loader, err := catalog.NewLoader(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	kc, found := loader.Get("KC_VIT")
	if !found {
		t.Fatal("Get(KC_VIT) not found")
	}
	if kc.Title != "Vitrales góticos" || kc.KCCity != "Madrid" {
		t.Errorf("Get() = %+v", kc)
	}
	// Level spellings are normalized.
	if kc.TargetSOLOLevel != solo.Relational {
		t.Errorf("TargetSOLOLevel = %q, want %q", kc.TargetSOLOLevel, solo.Relational)
	}
}

func TestLoader_MissingDir(t *testing.T) {
	if _, err := catalog.NewLoader(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("NewLoader() should fail for a missing directory")
	}
}

func TestLoader_Seed(t *testing.T) {
	loader, err := catalog.NewLoader(setupTestCatalog(t))
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}

	kcs := store.NewMemoryKCStore()
	n, err := loader.Seed(t.Context(), kcs)
	if err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	if n != 2 {
		t.Errorf("Seed() = %d, want 2", n)
	}

	got, err := kcs.Get(t.Context(), "KC_ARC")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.TargetSOLOLevel != solo.MultiStructural {
		t.Errorf("TargetSOLOLevel = %q, want Multi-structural", got.TargetSOLOLevel)
	}
}
