// Package store persists knowledge components and the append-only student
// history log, in memory or in PostgreSQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/p-n-ai/pai-compass/internal/geo"
	"github.com/p-n-ai/pai-compass/internal/solo"
)

// ErrNotFound is returned when a keyed lookup has no match.
var ErrNotFound = errors.New("not found")

// KnowledgeComponent is a unit of instructional content.
type KnowledgeComponent struct {
	KCID            string     `json:"kc_id" yaml:"kc_id"`
	Title           string     `json:"title" yaml:"title"`
	Description     string     `json:"description" yaml:"description"`
	TargetSOLOLevel solo.Level `json:"target_SOLO_level" yaml:"target_SOLO_level"`
	KCCity          string     `json:"kc_city,omitempty" yaml:"kc_city"`
	Approved        bool       `json:"approved" yaml:"approved"`
}

// HistoryRecord is one approved assessment of a student on a KC, located
// where the student was when it was made.
type HistoryRecord struct {
	Timestamp        string     `json:"timestamp"`
	Location         string     `json:"location"`
	Lat              float64    `json:"lat"`
	Lng              float64    `json:"lng"`
	Timezone         string     `json:"timezone"`
	KCID             string     `json:"kc_id"`
	StudentID        string     `json:"student_id"`
	SOLOLevel        solo.Level `json:"SOLO_level"`
	StudentResponse  *string    `json:"student_response"`
	Justification    *string    `json:"justification"`
	Misconceptions   *string    `json:"misconceptions"`
	TargetSOLOLevel  *string    `json:"target_SOLO_level"`
	EducationalGrade *string    `json:"educational_grade"`
	Approved         bool       `json:"approved"`
}

// KCStore holds knowledge components keyed by id.
type KCStore interface {
	Put(ctx context.Context, kc KnowledgeComponent) error
	Get(ctx context.Context, kcID string) (*KnowledgeComponent, error)
	List(ctx context.Context) ([]KnowledgeComponent, error)
}

// HistoryLog is the append-only log of student history records.
type HistoryLog interface {
	Append(ctx context.Context, rec HistoryRecord) error
	// QueryByStudent returns the student's records, optionally limited to
	// one KC, newest timestamp first. latestOnly keeps just the first.
	QueryByStudent(ctx context.Context, studentID, kcID string, latestOnly bool) ([]HistoryRecord, error)
	// FindLatest returns the most recently appended record for the pair.
	FindLatest(ctx context.Context, studentID, kcID string) (*HistoryRecord, error)
}

// MemoryKCStore is an in-memory KCStore that remembers insertion order.
type MemoryKCStore struct {
	kcs   map[string]KnowledgeComponent
	order []string
	mu    sync.RWMutex
}

// NewMemoryKCStore creates an empty in-memory KC store.
func NewMemoryKCStore() *MemoryKCStore {
	return &MemoryKCStore{
		kcs: make(map[string]KnowledgeComponent),
	}
}

func (s *MemoryKCStore) Put(_ context.Context, kc KnowledgeComponent) error {
	if kc.KCID == "" {
		return fmt.Errorf("kc_id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.kcs[kc.KCID]; !exists {
		s.order = append(s.order, kc.KCID)
	}
	s.kcs[kc.KCID] = kc
	return nil
}

func (s *MemoryKCStore) Get(_ context.Context, kcID string) (*KnowledgeComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kc, ok := s.kcs[kcID]
	if !ok {
		return nil, fmt.Errorf("kc %s: %w", kcID, ErrNotFound)
	}
	return &kc, nil
}

func (s *MemoryKCStore) List(_ context.Context) ([]KnowledgeComponent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]KnowledgeComponent, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.kcs[id])
	}
	return out, nil
}

// MemoryHistoryLog is an in-memory HistoryLog.
type MemoryHistoryLog struct {
	records []HistoryRecord
	mu      sync.RWMutex
}

// NewMemoryHistoryLog creates an empty in-memory history log.
func NewMemoryHistoryLog() *MemoryHistoryLog {
	return &MemoryHistoryLog{}
}

func (l *MemoryHistoryLog) Append(_ context.Context, rec HistoryRecord) error {
	if rec.StudentID == "" || rec.KCID == "" {
		return fmt.Errorf("student_id and kc_id are required")
	}

	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	return nil
}

func (l *MemoryHistoryLog) QueryByStudent(_ context.Context, studentID, kcID string, latestOnly bool) ([]HistoryRecord, error) {
	l.mu.RLock()
	var out []HistoryRecord
	// Walk newest-first so equal timestamps keep the latest append on top.
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if r.StudentID != studentID {
			continue
		}
		if kcID != "" && r.KCID != kcID {
			continue
		}
		out = append(out, r)
	}
	l.mu.RUnlock()

	SortNewestFirst(out)
	if latestOnly && len(out) > 1 {
		out = out[:1]
	}
	if out == nil {
		out = []HistoryRecord{}
	}
	return out, nil
}

func (l *MemoryHistoryLog) FindLatest(_ context.Context, studentID, kcID string) (*HistoryRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if r.StudentID == studentID && r.KCID == kcID {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("history for student %s on kc %s: %w", studentID, kcID, ErrNotFound)
}

// SortNewestFirst orders records by timestamp instant, newest first. The
// sort is stable; unparseable timestamps sink to the end.
func SortNewestFirst(records []HistoryRecord) {
	instants := make(map[string]time.Time, len(records))
	at := func(ts string) time.Time {
		if t, ok := instants[ts]; ok {
			return t
		}
		t, err := geo.ParseTimestamp(ts)
		if err != nil {
			t = time.Time{}
		}
		instants[ts] = t
		return t
	}
	sort.SliceStable(records, func(i, j int) bool {
		return at(records[i].Timestamp).After(at(records[j].Timestamp))
	})
}
