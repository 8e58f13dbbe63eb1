package lookup

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/p-n-ai/pai-compass/internal/platform/cache"
)

const (
	defaultNearbySearchURL = "https://maps.googleapis.com/maps/api/place/nearbysearch/json"
	defaultPlaceDetailsURL = "https://maps.googleapis.com/maps/api/place/details/json"
)

// OpenStatus is whether a site is open right now.
type OpenStatus string

const (
	StatusOpen        OpenStatus = "open"
	StatusClosed      OpenStatus = "closed"
	StatusOpenUnknown OpenStatus = "unknown"
)

// FeeStatus is whether entry to a site is free.
type FeeStatus string

const (
	FeeFree    FeeStatus = "free"
	FeeUnknown FeeStatus = "unknown"
)

// Place is a candidate site returned by a nearby search. Unlocated marks a
// result that came back without coordinates; Lat and Lng are then zero and
// must not be used for distances.
type Place struct {
	PlaceID   string  `json:"place_id"`
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Unlocated bool    `json:"unlocated,omitempty"`
}

// PlaceDetails is the enrichment of a Place. Absent fields are unknown.
type PlaceDetails struct {
	OpenNow    *bool  `json:"open_now,omitempty"`
	PriceLevel *int   `json:"price_level,omitempty"`
	Website    string `json:"website,omitempty"`
	MapsURL    string `json:"maps_url,omitempty"`
}

// OpenStatus derives open/closed from OpenNow.
func (d PlaceDetails) OpenStatus() OpenStatus {
	switch {
	case d.OpenNow == nil:
		return StatusOpenUnknown
	case *d.OpenNow:
		return StatusOpen
	default:
		return StatusClosed
	}
}

// FeeStatus is free only when the provider reports price level 0.
func (d PlaceDetails) FeeStatus() FeeStatus {
	if d.PriceLevel != nil && *d.PriceLevel == 0 {
		return FeeFree
	}
	return FeeUnknown
}

// URL prefers the site's own website over its maps page.
func (d PlaceDetails) URL() string {
	if d.Website != "" {
		return d.Website
	}
	return d.MapsURL
}

// NearbySearcher lists places nearest-first for a keyword query.
type NearbySearcher interface {
	Nearby(ctx context.Context, lat, lng float64, keyword string) ([]Place, error)
}

// DetailsFetcher looks up the details of one place.
type DetailsFetcher interface {
	Details(ctx context.Context, placeID string) (PlaceDetails, error)
}

// GooglePlaces implements NearbySearcher and DetailsFetcher against the
// Google Places web service.
type GooglePlaces struct {
	apiKey     string
	nearbyURL  string
	detailsURL string
	client     *http.Client
}

// GooglePlacesOption configures a GooglePlaces client.
type GooglePlacesOption func(*GooglePlaces)

// WithGooglePlacesBaseURL serves both endpoints from baseURL, as
// baseURL/nearbysearch/json and baseURL/details/json.
func WithGooglePlacesBaseURL(baseURL string) GooglePlacesOption {
	return func(g *GooglePlaces) {
		base := strings.TrimRight(baseURL, "/")
		g.nearbyURL = base + "/nearbysearch/json"
		g.detailsURL = base + "/details/json"
	}
}

// WithGooglePlacesHTTPClient sets a custom HTTP client.
func WithGooglePlacesHTTPClient(client *http.Client) GooglePlacesOption {
	return func(g *GooglePlaces) {
		g.client = client
	}
}

// NewGooglePlaces creates a places client. timeout bounds each request.
func NewGooglePlaces(apiKey string, timeout time.Duration, opts ...GooglePlacesOption) *GooglePlaces {
	g := &GooglePlaces{
		apiKey:     apiKey,
		nearbyURL:  defaultNearbySearchURL,
		detailsURL: defaultPlaceDetailsURL,
		client:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		PlaceID  string `json:"place_id"`
		Name     string `json:"name"`
		Vicinity string `json:"vicinity"`
		Geometry struct {
			Location struct {
				Lat *float64 `json:"lat"`
				Lng *float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Nearby runs a rank-by-distance search with no radius cap.
func (g *GooglePlaces) Nearby(ctx context.Context, lat, lng float64, keyword string) ([]Place, error) {
	if g.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	params := url.Values{
		"location": {fmt.Sprintf("%v,%v", lat, lng)},
		"rankby":   {"distance"},
		"keyword":  {keyword},
		"key":      {g.apiKey},
	}
	var parsed nearbyResponse
	if err := getJSON(ctx, g.client, g.nearbyURL+"?"+params.Encode(), &parsed); err != nil {
		return nil, fmt.Errorf("places nearby: %w", err)
	}
	if parsed.Status != "" && parsed.Status != "OK" && parsed.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places nearby: status %s: %s", parsed.Status, parsed.ErrorMessage)
	}

	places := make([]Place, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		name := r.Name
		if name == "" {
			name = "Unknown"
		}
		address := r.Vicinity
		if address == "" {
			address = "Unknown"
		}
		p := Place{
			PlaceID: r.PlaceID,
			Name:    name,
			Address: address,
		}
		if loc := r.Geometry.Location; loc.Lat != nil && loc.Lng != nil {
			p.Lat, p.Lng = *loc.Lat, *loc.Lng
		} else {
			p.Unlocated = true
		}
		places = append(places, p)
	}
	return places, nil
}

type detailsResponse struct {
	Status string `json:"status"`
	Result struct {
		OpeningHours *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
		PriceLevel *int   `json:"price_level"`
		Website    string `json:"website"`
		URL        string `json:"url"`
	} `json:"result"`
}

func (g *GooglePlaces) Details(ctx context.Context, placeID string) (PlaceDetails, error) {
	if g.apiKey == "" {
		return PlaceDetails{}, ErrMissingAPIKey
	}
	if placeID == "" {
		return PlaceDetails{}, fmt.Errorf("place id is empty")
	}

	params := url.Values{
		"place_id": {placeID},
		"fields":   {"opening_hours,price_level,website,url"},
		"key":      {g.apiKey},
	}
	var parsed detailsResponse
	if err := getJSON(ctx, g.client, g.detailsURL+"?"+params.Encode(), &parsed); err != nil {
		return PlaceDetails{}, fmt.Errorf("place details: %w", err)
	}

	d := PlaceDetails{
		PriceLevel: parsed.Result.PriceLevel,
		Website:    parsed.Result.Website,
		MapsURL:    parsed.Result.URL,
	}
	if parsed.Result.OpeningHours != nil {
		d.OpenNow = parsed.Result.OpeningHours.OpenNow
	}
	return d, nil
}

// PlaceFinder is the engine-facing places adapter.
type PlaceFinder struct {
	search  NearbySearcher
	details DetailsFetcher
}

// NewPlaceFinder combines a searcher and a details fetcher. Either may be nil,
// in which case the corresponding lookup always degrades.
func NewPlaceFinder(search NearbySearcher, details DetailsFetcher) *PlaceFinder {
	return &PlaceFinder{search: search, details: details}
}

// NearestPlace returns the closest place matching keywords. If nothing
// matches it retries once with FallbackKeywords. With excludeCity set, the
// first candidate whose address does not mention that city wins; when every
// candidate mentions it the nearest one is used anyway.
func (f *PlaceFinder) NearestPlace(ctx context.Context, lat, lng float64, keywords, excludeCity string) (Place, bool) {
	if f == nil || f.search == nil {
		return Place{}, false
	}

	results, err := f.search.Nearby(ctx, lat, lng, keywords)
	if err != nil {
		logDegraded("nearby search degraded", err, "keywords", keywords)
	}
	if len(results) == 0 {
		results, err = f.search.Nearby(ctx, lat, lng, FallbackKeywords)
		if err != nil {
			logDegraded("fallback nearby search degraded", err)
		}
	}
	if len(results) == 0 {
		return Place{}, false
	}

	picked := results[0]
	if excludeCity != "" {
		city := strings.ToLower(excludeCity)
		for _, p := range results {
			if !strings.Contains(strings.ToLower(p.Address), city) {
				picked = p
				break
			}
		}
	}
	slog.Debug("nearest place selected", "place_id", picked.PlaceID, "name", picked.Name, "candidates", len(results))
	return picked, true
}

// PlaceDetails returns details for placeID, or an empty value on any failure.
func (f *PlaceFinder) PlaceDetails(ctx context.Context, placeID string) PlaceDetails {
	if f == nil || f.details == nil || placeID == "" {
		return PlaceDetails{}
	}
	d, err := f.details.Details(ctx, placeID)
	if err != nil {
		logDegraded("place details degraded", err, "place_id", placeID)
		return PlaceDetails{}
	}
	return d
}

// CachedPlaces memoizes nearby searches and details lookups.
type CachedPlaces struct {
	search  NearbySearcher
	details DetailsFetcher
	store   cache.Store
	ttl     time.Duration
}

// NewCachedPlaces wraps a client that both searches and fetches details.
func NewCachedPlaces(search NearbySearcher, details DetailsFetcher, store cache.Store, ttl time.Duration) *CachedPlaces {
	return &CachedPlaces{search: search, details: details, store: store, ttl: ttl}
}

func (c *CachedPlaces) Nearby(ctx context.Context, lat, lng float64, keyword string) ([]Place, error) {
	key := fmt.Sprintf("places:nearby:%.4f,%.4f:%s", lat, lng, strings.ToLower(keyword))
	return cache.Remember(ctx, c.store, key, c.ttl, func(ctx context.Context) ([]Place, error) {
		return c.search.Nearby(ctx, lat, lng, keyword)
	})
}

func (c *CachedPlaces) Details(ctx context.Context, placeID string) (PlaceDetails, error) {
	return cache.Remember(ctx, c.store, "places:details:"+placeID, c.ttl, func(ctx context.Context) (PlaceDetails, error) {
		return c.details.Details(ctx, placeID)
	})
}
