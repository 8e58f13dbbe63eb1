// Package reaction decides which learning task a student gets next, based on
// where they last were, the nearest relevant site and the weather there.
package reaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/p-n-ai/pai-compass/internal/geo"
	"github.com/p-n-ai/pai-compass/internal/lookup"
	"github.com/p-n-ai/pai-compass/internal/solo"
	"github.com/p-n-ai/pai-compass/internal/store"
)

const (
	defaultRadiusMeters = 1000
	defaultHotF         = 96

	unavailable = "Unavailable"
)

var (
	// ErrInvalidRequest is returned when the request lacks an id.
	ErrInvalidRequest = errors.New("kc_id and student_id are required")
	// ErrHistoryNotFound is returned when the student has no stored
	// location for the KC.
	ErrHistoryNotFound = errors.New("student coordinates not found in the history for the given kc_id and student_id")
)

// PlaceFinder finds the nearest relevant site and its details. Both methods
// degrade to empty results instead of failing.
type PlaceFinder interface {
	NearestPlace(ctx context.Context, lat, lng float64, keywords, excludeCity string) (lookup.Place, bool)
	PlaceDetails(ctx context.Context, placeID string) lookup.PlaceDetails
}

// WeatherClassifier reports classified current weather, or the unknown
// sentinel.
type WeatherClassifier interface {
	ClassifyWeather(ctx context.Context, lat, lng float64) lookup.Weather
}

// EngineConfig holds dependencies for the reaction engine.
type EngineConfig struct {
	KCs          store.KCStore
	History      store.HistoryLog
	Places       PlaceFinder
	Weather      WeatherClassifier
	Events       store.EventLogger
	RadiusMeters int     // reachability radius (default 1000)
	HotF         float64 // above this the weather counts as bad (default 96)
	Language     string  // default task language (default es)
}

// Engine generates reactions.
type Engine struct {
	kcs      store.KCStore
	history  store.HistoryLog
	places   PlaceFinder
	weather  WeatherClassifier
	events   store.EventLogger
	radius   int
	hotF     float64
	language string
}

// NewEngine creates a reaction engine.
func NewEngine(cfg EngineConfig) *Engine {
	kcs := cfg.KCs
	if kcs == nil {
		kcs = store.NewMemoryKCStore()
	}
	history := cfg.History
	if history == nil {
		history = store.NewMemoryHistoryLog()
	}
	events := cfg.Events
	if events == nil {
		events = store.NopEventLogger{}
	}
	radius := cfg.RadiusMeters
	if radius <= 0 {
		radius = defaultRadiusMeters
	}
	hotF := cfg.HotF
	if hotF == 0 {
		hotF = defaultHotF
	}
	lang := cfg.Language
	if lang == "" {
		lang = solo.DefaultLanguage
	}
	return &Engine{
		kcs:      kcs,
		history:  history,
		places:   cfg.Places,
		weather:  cfg.Weather,
		events:   events,
		radius:   radius,
		hotF:     hotF,
		language: lang,
	}
}

// Request identifies whose reaction to generate.
type Request struct {
	StudentID string `json:"student_id"`
	KCID      string `json:"kc_id"`
	Language  string `json:"language,omitempty"`
}

// Reaction is the generated task with the context it was decided on.
type Reaction struct {
	KCID         string          `json:"kc_id"`
	StudentID    string          `json:"student_id"`
	Location     Location        `json:"location"`
	NearestPlace NearestPlace    `json:"nearest_place"`
	Weather      *lookup.Weather `json:"weather"`
	Task         Task            `json:"task"`
}

// Location echoes the history record the reaction was based on.
type Location struct {
	Formatted   string  `json:"formatted"`
	Coordinates string  `json:"coordinates"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Timestamp   string  `json:"timestamp"`
	Timezone    string  `json:"timezone"`
}

// NearestPlace describes the selected site. DistanceM and URL are nil when
// unknown.
type NearestPlace struct {
	Name       string            `json:"name"`
	Address    string            `json:"address"`
	URL        *string           `json:"url"`
	DistanceM  *int              `json:"distance_m"`
	OpenStatus lookup.OpenStatus `json:"open_status"`
	FeeStatus  lookup.FeeStatus  `json:"fee_status"`
}

// Task is what the student is asked to do.
type Task struct {
	TaskType         string `json:"task_type"`
	TaskTitle        string `json:"task_title"`
	TaskDescription  string `json:"task_description"`
	Link             string `json:"link,omitempty"`
	FeasibilityNotes string `json:"feasibility_notes"`
}

// Generate decides the next task for a student on a KC. Only missing ids and
// a missing history record fail; every lookup failure degrades.
func (e *Engine) Generate(ctx context.Context, req Request) (*Reaction, error) {
	studentID := strings.TrimSpace(req.StudentID)
	kcID := strings.TrimSpace(req.KCID)
	if studentID == "" || kcID == "" {
		return nil, ErrInvalidRequest
	}

	rec, err := e.history.FindLatest(ctx, studentID, kcID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrHistoryNotFound
		}
		return nil, fmt.Errorf("find latest history: %w", err)
	}

	kc, err := e.kcs.Get(ctx, kcID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		kc = &store.KnowledgeComponent{KCID: kcID}
	case err != nil:
		return nil, fmt.Errorf("get kc: %w", err)
	}

	lang := req.Language
	if lang == "" {
		lang = e.language
	}
	tmpl := TemplatesFor(lang)

	title := strings.TrimSpace(kc.Title)
	desc := strings.TrimSpace(kc.Description)
	facts := Facts{
		Site:    unavailable,
		Address: unavailable,
		KCTitle: title,
		Topic:   orDefault(title, desc),
		Radius:  e.radius,
		HotF:    e.hotF,
		Open:    lookup.StatusOpenUnknown,
		Fee:     lookup.FeeUnknown,
	}

	out := &Reaction{
		KCID:      kcID,
		StudentID: studentID,
		Location: Location{
			Formatted:   rec.Location,
			Coordinates: geo.FormatLatLng(rec.Lat, rec.Lng),
			Lat:         rec.Lat,
			Lng:         rec.Lng,
			Timestamp:   rec.Timestamp,
			Timezone:    rec.Timezone,
		},
	}

	keywords := lookup.BuildSiteKeywords(title, desc)
	place, found := e.nearestPlace(ctx, rec.Lat, rec.Lng, keywords, strings.TrimSpace(kc.KCCity))

	var siteURL string
	var distance float64
	linkName := ""
	if found {
		details := e.placeDetails(ctx, place.PlaceID)
		facts.Site = place.Name
		facts.Address = place.Address
		facts.Open = details.OpenStatus()
		facts.Fee = details.FeeStatus()
		siteURL = details.URL()
		linkName = place.Name

		if !place.Unlocated {
			distance = geo.DistanceMeters(rec.Lat, rec.Lng, place.Lat, place.Lng)
			d := int(math.Round(distance))
			facts.Distance = &d
		}
	}

	slog.Info("generating reaction",
		"student_id", studentID,
		"kc_id", kcID,
		"lat", rec.Lat,
		"lng", rec.Lng,
		"place_found", found,
		"distance_m", distance,
	)

	link := lookup.ResolveBestLink(linkName, lookup.PlaceDetails{Website: siteURL}, title, rec.Location)
	question := solo.NextStepPrompt(string(rec.SOLOLevel), string(kc.TargetSOLOLevel), facts.Topic, lang)

	out.NearestPlace = NearestPlace{
		Name:       facts.Site,
		Address:    facts.Address,
		DistanceM:  facts.Distance,
		OpenStatus: facts.Open,
		FeeStatus:  facts.Fee,
	}
	if siteURL != "" {
		out.NearestPlace.URL = &siteURL
	}

	if facts.Distance == nil || !e.withinRadius(distance) {
		facts.Question = question
		out.NearestPlace.OpenStatus = lookup.StatusOpenUnknown
		out.NearestPlace.FeeStatus = lookup.FeeUnknown
		out.Task = render(TaskVirtual, tmpl.Virtual, facts)
		out.Task.Link = link
		e.logEvent(ctx, out, "out_of_range")
		return out, nil
	}

	w := e.classifyWeather(ctx, rec.Lat, rec.Lng)
	out.Weather = &w
	facts.Condition = w.Condition
	facts.TempF = w.TempF

	rule := selectRule(Assess(w, e.hotF, facts.Open, facts.Fee))
	if rule.withLink {
		facts.Question = question
	}
	out.Task = render(rule.taskType, rule.text(tmpl), facts)
	if rule.withLink {
		out.Task.Link = link
	}
	e.logEvent(ctx, out, rule.name)
	return out, nil
}

// withinRadius compares the unrounded distance, so 1000.4 m is out of a
// 1000 m radius even though it is reported as 1000.
func (e *Engine) withinRadius(distance float64) bool {
	return distance <= float64(e.radius)
}

func render(taskType string, text TaskText, f Facts) Task {
	return Task{
		TaskType:         taskType,
		TaskTitle:        text.Title(f),
		TaskDescription:  text.Description(f),
		FeasibilityNotes: text.Notes(f),
	}
}

func (e *Engine) nearestPlace(ctx context.Context, lat, lng float64, keywords, excludeCity string) (place lookup.Place, found bool) {
	if e.places == nil {
		return lookup.Place{}, false
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("nearest place lookup panicked", "panic", r)
			place, found = lookup.Place{}, false
		}
	}()
	return e.places.NearestPlace(ctx, lat, lng, keywords, excludeCity)
}

func (e *Engine) placeDetails(ctx context.Context, placeID string) (details lookup.PlaceDetails) {
	if e.places == nil {
		return lookup.PlaceDetails{}
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("place details lookup panicked", "place_id", placeID, "panic", r)
			details = lookup.PlaceDetails{}
		}
	}()
	return e.places.PlaceDetails(ctx, placeID)
}

func (e *Engine) classifyWeather(ctx context.Context, lat, lng float64) (w lookup.Weather) {
	if e.weather == nil {
		return lookup.UnknownWeather()
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("weather lookup panicked", "panic", r)
			w = lookup.UnknownWeather()
		}
	}()
	return e.weather.ClassifyWeather(ctx, lat, lng)
}

func (e *Engine) logEvent(ctx context.Context, r *Reaction, rule string) {
	data := map[string]any{
		"task_type": r.Task.TaskType,
		"rule":      rule,
	}
	if r.NearestPlace.DistanceM != nil {
		data["distance_m"] = *r.NearestPlace.DistanceM
	}
	if r.Weather != nil {
		data["weather"] = r.Weather.Condition
	}
	if err := e.events.LogEvent(ctx, store.Event{
		StudentID: r.StudentID,
		KCID:      r.KCID,
		EventType: store.EventReactionGenerated,
		Data:      data,
	}); err != nil {
		slog.Warn("failed to log reaction event", "student_id", r.StudentID, "error", err)
	}
}
