package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-compass/internal/platform/cache"
)

// GeocodeResult is the best match for a free-text location query.
type GeocodeResult struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Formatted string  `json:"formatted"`
	TimeZone  string  `json:"timezone,omitempty"`
}

// Geocoder resolves free text to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (GeocodeResult, error)
}

// LocationInput carries the raw location fields of a submission. Lat and Lng
// may be JSON numbers or numeric strings.
type LocationInput struct {
	Lat      any `json:"lat"`
	Lng      any `json:"lng"`
	Location any `json:"location"`
}

// Resolution is the outcome of normalizing a LocationInput. When Resolved is
// false the coordinates are meaningless; Label may still carry the input.
type Resolution struct {
	Lat      float64
	Lng      float64
	Resolved bool
	Label    string
	TimeZone string
}

// Normalizer turns submitted location fields into coordinates.
type Normalizer struct {
	geocoder Geocoder
}

// NewNormalizer creates a normalizer. A nil geocoder leaves free-text
// locations unresolved.
func NewNormalizer(geocoder Geocoder) *Normalizer {
	return &Normalizer{geocoder: geocoder}
}

// Normalize resolves coordinates in order: numeric lat/lng, a "lat,lng"
// location string, then geocoding of free text. It never fails; anything it
// cannot resolve comes back with Resolved=false.
func (n *Normalizer) Normalize(ctx context.Context, in LocationInput) Resolution {
	loc, _ := in.Location.(string)

	if in.Lat != nil && in.Lng != nil {
		lat, okLat := toFloat(in.Lat)
		lng, okLng := toFloat(in.Lng)
		if okLat && okLng {
			return Resolution{Lat: lat, Lng: lng, Resolved: true, Label: loc}
		}
	}

	if strings.Contains(loc, ",") {
		if lat, lng, ok := ParseLatLng(loc); ok {
			return Resolution{Lat: lat, Lng: lng, Resolved: true, Label: loc}
		}
	}

	if strings.TrimSpace(loc) != "" && n.geocoder != nil {
		res, err := n.geocoder.Geocode(ctx, loc)
		if err != nil {
			if errors.Is(err, ErrMissingAPIKey) {
				slog.Debug("geocoding skipped", "query", loc, "error", err)
			} else {
				slog.Warn("geocoding failed", "query", loc, "error", err)
			}
			return Resolution{Label: loc}
		}
		label := res.Formatted
		if label == "" {
			label = loc
		}
		return Resolution{Lat: res.Lat, Lng: res.Lng, Resolved: true, Label: label, TimeZone: res.TimeZone}
	}

	return Resolution{Label: loc}
}

// ParseLatLng parses "40.4168,-3.7038" into its two components.
func ParseLatLng(s string) (float64, float64, bool) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, okLat := toFloat(parts[0])
	lng, okLng := toFloat(parts[1])
	if !okLat || !okLng {
		return 0, 0, false
	}
	return lat, lng, true
}

// FormatLatLng renders coordinates the way ParseLatLng reads them.
func FormatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// CachedGeocoder memoizes successful lookups of another Geocoder.
type CachedGeocoder struct {
	next  Geocoder
	store cache.Store
	ttl   time.Duration
}

// NewCachedGeocoder wraps next with a read-through cache.
func NewCachedGeocoder(next Geocoder, store cache.Store, ttl time.Duration) *CachedGeocoder {
	return &CachedGeocoder{next: next, store: store, ttl: ttl}
}

func (c *CachedGeocoder) Geocode(ctx context.Context, query string) (GeocodeResult, error) {
	key := fmt.Sprintf("geocode:%s", strings.ToLower(strings.TrimSpace(query)))
	return cache.Remember(ctx, c.store, key, c.ttl, func(ctx context.Context) (GeocodeResult, error) {
		return c.next.Geocode(ctx, query)
	})
}
