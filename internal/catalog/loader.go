// Package catalog loads knowledge components from YAML files and seeds them
// into a KC store.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/p-n-ai/pai-compass/internal/solo"
	"github.com/p-n-ai/pai-compass/internal/store"
)

// file is either a single KC document or a list under "kcs".
type file struct {
	store.KnowledgeComponent `yaml:",inline"`
	KCs                      []store.KnowledgeComponent `yaml:"kcs"`
}

// Loader loads and caches approved KCs from a directory tree.
type Loader struct {
	rootDir string
	kcs     []store.KnowledgeComponent
	index   map[string]int
	skipped int
	mu      sync.RWMutex
}

// NewLoader creates a loader and loads every YAML file under rootDir.
func NewLoader(rootDir string) (*Loader, error) {
	l := &Loader{
		rootDir: rootDir,
		index:   make(map[string]int),
	}

	if err := l.loadAll(); err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	slog.Info("catalog loaded", "kcs", len(l.kcs), "skipped", l.skipped)
	return l, nil
}

// Get returns a loaded KC by id.
func (l *Loader) Get(kcID string) (store.KnowledgeComponent, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	i, ok := l.index[kcID]
	if !ok {
		return store.KnowledgeComponent{}, false
	}
	return l.kcs[i], true
}

// All returns the loaded KCs in file order.
func (l *Loader) All() []store.KnowledgeComponent {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]store.KnowledgeComponent{}, l.kcs...)
}

// Seed puts every loaded KC into s.
func (l *Loader) Seed(ctx context.Context, s store.KCStore) (int, error) {
	kcs := l.All()
	for _, kc := range kcs {
		if err := s.Put(ctx, kc); err != nil {
			return 0, fmt.Errorf("seeding kc %s: %w", kc.KCID, err)
		}
	}
	return len(kcs), nil
}

func (l *Loader) loadAll() error {
	if _, err := os.Stat(l.rootDir); err != nil {
		return err
	}
	return filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
			return l.loadFile(path)
		}
		return nil
	})
}

func (l *Loader) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		slog.Warn("skipping invalid catalog YAML", "path", path, "error", err)
		return nil
	}

	entries := f.KCs
	if f.KCID != "" {
		entries = append([]store.KnowledgeComponent{f.KnowledgeComponent}, entries...)
	}
	for _, kc := range entries {
		l.add(path, kc)
	}
	return nil
}

func (l *Loader) add(path string, kc store.KnowledgeComponent) {
	kc.KCID = strings.TrimSpace(kc.KCID)
	if kc.KCID == "" || !kc.Approved {
		l.skipped++
		slog.Debug("skipping catalog entry", "path", path, "kc_id", kc.KCID, "approved", kc.Approved)
		return
	}
	if level, ok := solo.ParseLevel(string(kc.TargetSOLOLevel)); ok {
		kc.TargetSOLOLevel = level
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if i, ok := l.index[kc.KCID]; ok {
		l.kcs[i] = kc
		return
	}
	l.index[kc.KCID] = len(l.kcs)
	l.kcs = append(l.kcs, kc)
}
