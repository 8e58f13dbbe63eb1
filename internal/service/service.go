// Package service implements the learning-compass use cases on top of the
// stores, the geo normalizer and the reaction engine.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-compass/internal/geo"
	"github.com/p-n-ai/pai-compass/internal/reaction"
	"github.com/p-n-ai/pai-compass/internal/report"
	"github.com/p-n-ai/pai-compass/internal/solo"
	"github.com/p-n-ai/pai-compass/internal/store"
)

// LocationNormalizer resolves submitted location fields to coordinates.
type LocationNormalizer interface {
	Normalize(ctx context.Context, in geo.LocationInput) geo.Resolution
}

// ReactionGenerator produces the next task for a student.
type ReactionGenerator interface {
	Generate(ctx context.Context, req reaction.Request) (*reaction.Reaction, error)
}

// Publisher receives every stored history record.
type Publisher interface {
	Publish(rec store.HistoryRecord)
}

// Config holds the service dependencies.
type Config struct {
	KCs        store.KCStore
	History    store.HistoryLog
	Normalizer LocationNormalizer
	Reactions  ReactionGenerator
	Events     store.EventLogger
	Feed       Publisher
	Now        func() time.Time
	NewID      func() string
}

// Service is the use-case layer behind the HTTP API.
type Service struct {
	kcs        store.KCStore
	history    store.HistoryLog
	normalizer LocationNormalizer
	reactions  ReactionGenerator
	events     store.EventLogger
	feed       Publisher
	now        func() time.Time
	newID      func() string
}

// New creates a service. Missing stores default to in-memory ones.
func New(cfg Config) *Service {
	s := &Service{
		kcs:        cfg.KCs,
		history:    cfg.History,
		normalizer: cfg.Normalizer,
		reactions:  cfg.Reactions,
		events:     cfg.Events,
		feed:       cfg.Feed,
		now:        cfg.Now,
		newID:      cfg.NewID,
	}
	if s.kcs == nil {
		s.kcs = store.NewMemoryKCStore()
	}
	if s.history == nil {
		s.history = store.NewMemoryHistoryLog()
	}
	if s.normalizer == nil {
		s.normalizer = geo.NewNormalizer(nil)
	}
	if s.events == nil {
		s.events = store.NopEventLogger{}
	}
	if s.reactions == nil {
		s.reactions = reaction.NewEngine(reaction.EngineConfig{
			KCs:     s.kcs,
			History: s.history,
			Events:  s.events,
		})
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = newKCID
	}
	return s
}

func newKCID() string {
	return "KC_" + uuid.NewString()[:8]
}

// SubmitKC stores an approved KC, assigning an id when none is given.
// Resubmitting an id replaces the stored KC.
func (s *Service) SubmitKC(ctx context.Context, kc store.KnowledgeComponent) (*store.KnowledgeComponent, error) {
	if !kc.Approved {
		return nil, invalid("KC not submitted: approval required.")
	}

	kc.KCID = strings.TrimSpace(kc.KCID)
	if kc.KCID == "" {
		kc.KCID = s.newID()
	}
	if level, ok := solo.ParseLevel(string(kc.TargetSOLOLevel)); ok {
		kc.TargetSOLOLevel = level
	}

	if err := s.kcs.Put(ctx, kc); err != nil {
		return nil, fmt.Errorf("storing kc: %w", err)
	}
	slog.Info("KC stored", "kc_id", kc.KCID)

	s.logEvent(ctx, store.Event{
		KCID:      kc.KCID,
		EventType: store.EventKCSubmitted,
		Data:      map[string]any{"title": kc.Title},
	})
	return &kc, nil
}

// GetKC returns a stored KC.
func (s *Service) GetKC(ctx context.Context, kcID string) (*store.KnowledgeComponent, error) {
	kcID = strings.TrimSpace(kcID)
	if kcID == "" {
		return nil, invalid("kc_id parameter is required")
	}
	kc, err := s.kcs.Get(ctx, kcID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, notFound(fmt.Sprintf("KC with ID %s not found", kcID))
		}
		return nil, fmt.Errorf("getting kc: %w", err)
	}
	return kc, nil
}

// ListKCs returns every KC in submission order.
func (s *Service) ListKCs(ctx context.Context) ([]store.KnowledgeComponent, error) {
	kcs, err := s.kcs.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing kcs: %w", err)
	}
	return kcs, nil
}

// HistoryQuery selects a student's history records.
type HistoryQuery struct {
	StudentID  string
	KCID       string
	LatestOnly bool
}

// StudentHistory returns a student's records, newest first.
func (s *Service) StudentHistory(ctx context.Context, q HistoryQuery) ([]store.HistoryRecord, error) {
	studentID := strings.TrimSpace(q.StudentID)
	if studentID == "" {
		return nil, invalid("student_id is required")
	}
	records, err := s.history.QueryByStudent(ctx, studentID, strings.TrimSpace(q.KCID), q.LatestOnly)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return records, nil
}

// ExportHistory writes the records StudentHistory would return as XLSX.
func (s *Service) ExportHistory(ctx context.Context, q HistoryQuery, w io.Writer) error {
	records, err := s.StudentHistory(ctx, q)
	if err != nil {
		return err
	}
	return report.WriteHistoryXLSX(w, records)
}

// AnalyzeInput is a student response to classify.
type AnalyzeInput struct {
	KCID             string  `json:"kc_id"`
	StudentID        string  `json:"student_id"`
	EducationalGrade *string `json:"educational_grade"`
	StudentResponse  string  `json:"student_response"`
}

// Analysis is an unapproved SOLO assessment awaiting teacher review.
type Analysis struct {
	KCID             string     `json:"kc_id"`
	StudentID        string     `json:"student_id"`
	EducationalGrade *string    `json:"educational_grade"`
	SOLOLevel        solo.Level `json:"SOLO_level"`
	Justification    string     `json:"justification"`
	Misconceptions   *string    `json:"misconceptions"`
	Approved         bool       `json:"approved"`
}

// AnalyzeResponse classifies a response. The result always starts
// unapproved.
func (s *Service) AnalyzeResponse(_ context.Context, in AnalyzeInput) Analysis {
	c := solo.Classify(in.StudentResponse)
	return Analysis{
		KCID:             in.KCID,
		StudentID:        in.StudentID,
		EducationalGrade: in.EducationalGrade,
		SOLOLevel:        c.Level,
		Justification:    c.Justification,
		Approved:         false,
	}
}

// StoreHistoryInput is an approved assessment to append to the history log.
type StoreHistoryInput struct {
	Approved         bool    `json:"approved"`
	StudentID        string  `json:"student_id"`
	KCID             string  `json:"kc_id"`
	SOLOLevel        string  `json:"SOLO_level"`
	StudentResponse  *string `json:"student_response"`
	Justification    *string `json:"justification"`
	Misconceptions   *string `json:"misconceptions"`
	TargetSOLOLevel  *string `json:"target_SOLO_level"`
	EducationalGrade *string `json:"educational_grade"`
	geo.LocationInput
}

// StoredHistory summarizes an appended record.
type StoredHistory struct {
	StudentID string     `json:"student_id"`
	KCID      string     `json:"kc_id"`
	SOLOLevel solo.Level `json:"SOLO_level"`
	Timestamp string     `json:"timestamp"`
	Timezone  string     `json:"timezone"`
	Location  string     `json:"location"`
	Lat       float64    `json:"lat"`
	Lng       float64    `json:"lng"`
	Approved  bool       `json:"approved"`
}

// StoreHistory validates, locates and appends an assessment. Nothing is
// stored unless every check passes.
func (s *Service) StoreHistory(ctx context.Context, in StoreHistoryInput) (*StoredHistory, error) {
	if !in.Approved {
		return nil, &ValidationError{
			Message: "Teacher approval required before storing analysis",
			Hint:    "Resend with 'approved': true once verified by a teacher.",
		}
	}

	studentID := strings.TrimSpace(in.StudentID)
	kcID := strings.TrimSpace(in.KCID)
	rawLevel := strings.TrimSpace(in.SOLOLevel)
	if studentID == "" || kcID == "" || rawLevel == "" {
		return nil, invalid("student_id, kc_id, and SOLO_level are required")
	}
	level, ok := solo.ParseLevel(rawLevel)
	if !ok {
		level = solo.Level(rawLevel)
	}

	res := s.normalizer.Normalize(ctx, in.LocationInput)
	slog.Info("location normalized",
		"student_id", studentID,
		"resolved", res.Resolved,
		"lat", res.Lat,
		"lng", res.Lng,
		"label", res.Label,
		"timezone", res.TimeZone,
	)
	if !res.Resolved {
		return nil, invalid("Could not resolve coordinates from the provided location. " +
			"Send numeric 'lat' and 'lng', or 'location' as 'lat,lng', " +
			"or a geocodable place/address string.")
	}

	ts, tz := geo.LocalTimestamp(s.now(), res.TimeZone)
	rec := store.HistoryRecord{
		Timestamp:        ts,
		Location:         res.Label,
		Lat:              res.Lat,
		Lng:              res.Lng,
		Timezone:         tz,
		KCID:             kcID,
		StudentID:        studentID,
		SOLOLevel:        level,
		StudentResponse:  in.StudentResponse,
		Justification:    in.Justification,
		Misconceptions:   in.Misconceptions,
		TargetSOLOLevel:  in.TargetSOLOLevel,
		EducationalGrade: in.EducationalGrade,
		Approved:         true,
	}
	if err := s.history.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("appending history: %w", err)
	}

	if s.feed != nil {
		s.feed.Publish(rec)
	}
	s.logEvent(ctx, store.Event{
		StudentID: studentID,
		KCID:      kcID,
		EventType: store.EventHistoryStored,
		Data: map[string]any{
			"SOLO_level": string(level),
			"timezone":   tz,
		},
	})

	return &StoredHistory{
		StudentID: studentID,
		KCID:      kcID,
		SOLOLevel: level,
		Timestamp: ts,
		Timezone:  tz,
		Location:  rec.Location,
		Lat:       rec.Lat,
		Lng:       rec.Lng,
		Approved:  true,
	}, nil
}

// GenerateReaction decides the student's next task.
func (s *Service) GenerateReaction(ctx context.Context, req reaction.Request) (*reaction.Reaction, error) {
	r, err := s.reactions.Generate(ctx, req)
	switch {
	case errors.Is(err, reaction.ErrInvalidRequest):
		return nil, invalid(err.Error())
	case errors.Is(err, reaction.ErrHistoryNotFound):
		return nil, notFound("Student coordinates not found in the history for the given kc_id and student_id.")
	case err != nil:
		return nil, fmt.Errorf("generating reaction: %w", err)
	}
	return r, nil
}

func (s *Service) logEvent(ctx context.Context, e store.Event) {
	if err := s.events.LogEvent(ctx, e); err != nil {
		slog.Warn("failed to log event", "type", e.EventType, "error", err)
	}
}
