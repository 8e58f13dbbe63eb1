package store_test

import (
	"errors"
	"sync"
	"testing"

	"github.com/p-n-ai/pai-compass/internal/solo"
	"github.com/p-n-ai/pai-compass/internal/store"
)

func TestMemoryKCStore_PutGet(t *testing.T) {
	s := store.NewMemoryKCStore()

	kc := store.KnowledgeComponent{
		KCID:            "KC_1",
		Title:           "Vitrales",
		TargetSOLOLevel: solo.Relational,
		Approved:        true,
	}
	if err := s.Put(t.Context(), kc); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(t.Context(), "KC_1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if *got != kc {
		t.Errorf("Get() = %+v, want %+v", *got, kc)
	}

	// The returned value is a copy.
	got.Title = "changed"
	again, _ := s.Get(t.Context(), "KC_1")
	if again.Title != "Vitrales" {
		t.Errorf("stored KC was mutated through Get() result")
	}
}

func TestMemoryKCStore_GetNotFound(t *testing.T) {
	s := store.NewMemoryKCStore()

	_, err := s.Get(t.Context(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryKCStore_ListKeepsInsertionOrder(t *testing.T) {
	s := store.NewMemoryKCStore()

	for _, id := range []string{"b", "a", "c"} {
		_ = s.Put(t.Context(), store.KnowledgeComponent{KCID: id, Approved: true})
	}
	// Upsert keeps the original position.
	_ = s.Put(t.Context(), store.KnowledgeComponent{KCID: "b", Title: "updated", Approved: true})

	got, err := s.List(t.Context())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(List()) = %d, want 3", len(got))
	}
	if got[0].KCID != "b" || got[1].KCID != "a" || got[2].KCID != "c" {
		t.Errorf("List() order = %s,%s,%s, want b,a,c", got[0].KCID, got[1].KCID, got[2].KCID)
	}
	if got[0].Title != "updated" {
		t.Errorf("List()[0].Title = %q, want updated", got[0].Title)
	}
}

func TestMemoryKCStore_RequiresID(t *testing.T) {
	if err := store.NewMemoryKCStore().Put(t.Context(), store.KnowledgeComponent{}); err == nil {
		t.Error("Put() should reject empty kc_id")
	}
}

func record(student, kc, ts string, level solo.Level) store.HistoryRecord {
	return store.HistoryRecord{
		Timestamp: ts,
		StudentID: student,
		KCID:      kc,
		SOLOLevel: level,
		Lat:       40.4,
		Lng:       -3.7,
		Timezone:  "UTC",
		Approved:  true,
	}
}

func TestMemoryHistoryLog_FindLatest(t *testing.T) {
	l := store.NewMemoryHistoryLog()

	_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T10:00:00+0000", solo.UniStructural))
	_ = l.Append(t.Context(), record("s1", "kc2", "2025-09-01T11:00:00+0000", solo.Relational))
	_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T09:00:00+0000", solo.MultiStructural))

	got, err := l.FindLatest(t.Context(), "s1", "kc1")
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	// Insertion order wins, not timestamp.
	if got.SOLOLevel != solo.MultiStructural {
		t.Errorf("FindLatest().SOLOLevel = %q, want Multi-structural", got.SOLOLevel)
	}

	if _, err := l.FindLatest(t.Context(), "s2", "kc1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("FindLatest(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryHistoryLog_RoundTrip(t *testing.T) {
	l := store.NewMemoryHistoryLog()
	resp := "the window has red glass"
	rec := record("s1", "kc1", "2025-09-01T10:22:13+0200", solo.MultiStructural)
	rec.StudentResponse = &resp
	rec.Location = "Toledo"

	if err := l.Append(t.Context(), rec); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	got, err := l.FindLatest(t.Context(), "s1", "kc1")
	if err != nil {
		t.Fatalf("FindLatest() error = %v", err)
	}
	if got.Timestamp != rec.Timestamp || got.Location != rec.Location || *got.StudentResponse != resp {
		t.Errorf("FindLatest() = %+v, want %+v", *got, rec)
	}
}

func TestMemoryHistoryLog_QueryByStudent(t *testing.T) {
	l := store.NewMemoryHistoryLog()

	// 10:00 Madrid (08:00Z) is earlier than 09:00Z even though it sorts later as text.
	_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T10:00:00+0200", solo.PreStructural))
	_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T09:00:00+0000", solo.UniStructural))
	_ = l.Append(t.Context(), record("s1", "kc2", "2025-09-01T12:00:00+0000", solo.Relational))
	_ = l.Append(t.Context(), record("s2", "kc1", "2025-09-01T13:00:00+0000", solo.Relational))

	tests := []struct {
		name       string
		kcID       string
		latestOnly bool
		want       []solo.Level
	}{
		{"all kcs", "", false, []solo.Level{solo.Relational, solo.UniStructural, solo.PreStructural}},
		{"one kc", "kc1", false, []solo.Level{solo.UniStructural, solo.PreStructural}},
		{"latest", "kc1", true, []solo.Level{solo.UniStructural}},
		{"unknown kc", "kc9", true, []solo.Level{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := l.QueryByStudent(t.Context(), "s1", tt.kcID, tt.latestOnly)
			if err != nil {
				t.Fatalf("QueryByStudent() error = %v", err)
			}
			if got == nil {
				t.Fatal("QueryByStudent() returned nil slice")
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len(QueryByStudent()) = %d, want %d", len(got), len(tt.want))
			}
			for i, lv := range tt.want {
				if got[i].SOLOLevel != lv {
					t.Errorf("record[%d].SOLOLevel = %q, want %q", i, got[i].SOLOLevel, lv)
				}
			}
		})
	}
}

func TestMemoryHistoryLog_EqualTimestampsNewestInsertFirst(t *testing.T) {
	l := store.NewMemoryHistoryLog()
	_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T10:00:00+0000", solo.PreStructural))
	_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T10:00:00+0000", solo.Relational))

	got, _ := l.QueryByStudent(t.Context(), "s1", "kc1", true)
	if len(got) != 1 || got[0].SOLOLevel != solo.Relational {
		t.Errorf("QueryByStudent(latest) = %+v, want the second append", got)
	}
}

func TestMemoryHistoryLog_ConcurrentAppend(t *testing.T) {
	l := store.NewMemoryHistoryLog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Append(t.Context(), record("s1", "kc1", "2025-09-01T10:00:00+0000", solo.UniStructural))
		}()
	}
	wg.Wait()

	got, _ := l.QueryByStudent(t.Context(), "s1", "", false)
	if len(got) != 50 {
		t.Errorf("len(QueryByStudent()) = %d, want 50", len(got))
	}
}

func TestMemoryHistoryLog_RequiresIDs(t *testing.T) {
	if err := store.NewMemoryHistoryLog().Append(t.Context(), store.HistoryRecord{StudentID: "s1"}); err == nil {
		t.Error("Append() should reject a record without kc_id")
	}
}
