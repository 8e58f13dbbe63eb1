package store_test

import (
	"testing"

	"github.com/p-n-ai/pai-compass/internal/store"
)

func TestMemoryEventLogger_LogEvent(t *testing.T) {
	logger := store.NewMemoryEventLogger()

	err := logger.LogEvent(t.Context(), store.Event{
		StudentID: "s1",
		KCID:      "kc1",
		EventType: store.EventReactionGenerated,
		Data: map[string]any{
			"task_type": "Virtual",
		},
	})
	if err != nil {
		t.Fatalf("LogEvent() error = %v", err)
	}

	events := logger.Events()
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	if events[0].EventType != store.EventReactionGenerated {
		t.Errorf("EventType = %q, want %s", events[0].EventType, store.EventReactionGenerated)
	}
	if events[0].CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}
}

func TestMemoryEventLogger_RequiresType(t *testing.T) {
	if err := store.NewMemoryEventLogger().LogEvent(t.Context(), store.Event{}); err == nil {
		t.Error("LogEvent() should reject an event without type")
	}
}

func TestPostgresEventLogger_LogEvent_NilPool(t *testing.T) {
	logger := store.NewPostgresEventLogger(nil)

	err := logger.LogEvent(t.Context(), store.Event{
		StudentID: "s1",
		EventType: store.EventHistoryStored,
	})
	if err == nil {
		t.Fatal("expected error for nil pool")
	}
}

func TestNewPostgresStores_NilPool(t *testing.T) {
	if _, err := store.NewPostgresKCStore(nil); err == nil {
		t.Error("NewPostgresKCStore(nil) should fail")
	}
	if _, err := store.NewPostgresHistoryLog(nil); err == nil {
		t.Error("NewPostgresHistoryLog(nil) should fail")
	}
}
