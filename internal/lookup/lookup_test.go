package lookup

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-compass/internal/platform/cache"
)

func TestClassifyCondition(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Rain", ConditionRainy},
		{"Drizzle rain", ConditionRainy},
		{"Clear", ConditionSunny},
		{"Clouds", ConditionCloudy},
		{"Thunderstorm", ConditionStormy},
		{"STORM", ConditionStormy},
		{"Mist", "mist"},
		{"", ConditionUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ClassifyCondition(tt.in); got != tt.want {
				t.Errorf("ClassifyCondition(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOpenWeather_CurrentWeather(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("units") != "imperial" {
			t.Errorf("units = %q, want imperial", q.Get("units"))
		}
		if q.Get("lat") != "40.4" || q.Get("lon") != "-3.7" {
			t.Errorf("lat/lon = %s/%s, want 40.4/-3.7", q.Get("lat"), q.Get("lon"))
		}
		w.Write([]byte(`{"weather":[{"main":"Clouds"}],"main":{"temp":71.5}}`))
	}))
	defer server.Close()

	c := NewWeatherClassifier(NewOpenWeather("k", 5*time.Second, WithOpenWeatherBaseURL(server.URL)))
	got := c.ClassifyWeather(t.Context(), 40.4, -3.7)

	if got.Condition != ConditionCloudy {
		t.Errorf("Condition = %q, want cloudy", got.Condition)
	}
	if got.TempF == nil || *got.TempF != 71.5 {
		t.Errorf("TempF = %v, want 71.5", got.TempF)
	}
}

func TestWeatherClassifier_Degrades(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, `bad gateway`},
		{"malformed", http.StatusOK, `{"weather":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			c := NewWeatherClassifier(NewOpenWeather("k", 5*time.Second, WithOpenWeatherBaseURL(server.URL)))
			got := c.ClassifyWeather(t.Context(), 1, 2)
			if got.Condition != ConditionUnknown || got.TempF != nil {
				t.Errorf("ClassifyWeather() = %+v, want unknown/nil", got)
			}
		})
	}

	t.Run("missing key", func(t *testing.T) {
		got := NewWeatherClassifier(NewOpenWeather("", time.Second)).ClassifyWeather(t.Context(), 1, 2)
		if got.Condition != ConditionUnknown {
			t.Errorf("Condition = %q, want unknown", got.Condition)
		}
	})

	t.Run("nil source", func(t *testing.T) {
		got := NewWeatherClassifier(nil).ClassifyWeather(t.Context(), 1, 2)
		if got.Condition != ConditionUnknown {
			t.Errorf("Condition = %q, want unknown", got.Condition)
		}
	})
}

func TestOpenWeather_NoWeatherArray(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"main":{}}`))
	}))
	defer server.Close()

	got, err := NewOpenWeather("k", time.Second, WithOpenWeatherBaseURL(server.URL)).CurrentWeather(t.Context(), 0, 0)
	if err != nil {
		t.Fatalf("CurrentWeather() error = %v", err)
	}
	if got.Condition != ConditionUnknown || got.TempF != nil {
		t.Errorf("CurrentWeather() = %+v, want unknown/nil", got)
	}
}

func newPlacesServer(t *testing.T, nearby func(keyword string) string, details string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch r.URL.Path {
		case "/nearbysearch/json":
			if q.Get("rankby") != "distance" {
				t.Errorf("rankby = %q, want distance", q.Get("rankby"))
			}
			if q.Get("radius") != "" {
				t.Errorf("radius must not be sent with rankby=distance")
			}
			w.Write([]byte(nearby(q.Get("keyword"))))
		case "/details/json":
			if q.Get("fields") != "opening_hours,price_level,website,url" {
				t.Errorf("fields = %q", q.Get("fields"))
			}
			w.Write([]byte(details))
		default:
			t.Errorf("unexpected path: %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

const twoPlaces = `{"status":"OK","results":[
	{"place_id":"p1","name":"Biblioteca Toledo","vicinity":"Calle Mayor 1, Toledo","geometry":{"location":{"lat":39.86,"lng":-4.02}}},
	{"place_id":"p2","name":"Museo Sefardí","vicinity":"Calle Samuel Leví, Madrid","geometry":{"location":{"lat":39.85,"lng":-4.03}}}
]}`

func TestPlaceFinder_NearestPlace(t *testing.T) {
	server := newPlacesServer(t, func(string) string { return twoPlaces }, `{}`)
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	f := NewPlaceFinder(g, g)

	got, ok := f.NearestPlace(t.Context(), 39.86, -4.02, "vitrales", "")
	if !ok {
		t.Fatal("NearestPlace() found nothing")
	}
	if got.PlaceID != "p1" {
		t.Errorf("PlaceID = %q, want p1", got.PlaceID)
	}

	got, ok = f.NearestPlace(t.Context(), 39.86, -4.02, "vitrales", "TOLEDO")
	if !ok || got.PlaceID != "p2" {
		t.Errorf("NearestPlace(exclude Toledo) = %+v, want p2", got)
	}

	// Soft filter: every candidate is in the excluded city, nearest wins.
	got, ok = f.NearestPlace(t.Context(), 39.86, -4.02, "vitrales", "Calle")
	if !ok || got.PlaceID != "p1" {
		t.Errorf("NearestPlace(exclude all) = %+v, want p1", got)
	}
}

func TestPlaceFinder_FallbackKeywords(t *testing.T) {
	var keywords []string
	server := newPlacesServer(t, func(kw string) string {
		keywords = append(keywords, kw)
		if kw == FallbackKeywords {
			return twoPlaces
		}
		return `{"status":"ZERO_RESULTS","results":[]}`
	}, `{}`)
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	got, ok := NewPlaceFinder(g, g).NearestPlace(t.Context(), 1, 2, "obscure topic", "")
	if !ok || got.PlaceID != "p1" {
		t.Errorf("NearestPlace() = (%+v, %v), want p1", got, ok)
	}
	if len(keywords) != 2 || keywords[1] != FallbackKeywords {
		t.Errorf("keywords = %v, want [obscure topic, fallback]", keywords)
	}
}

func TestGooglePlaces_MissingGeometry(t *testing.T) {
	body := `{"status":"OK","results":[
	{"place_id":"p1","name":"Biblioteca Toledo","vicinity":"Calle Mayor 1, Toledo"},
	{"place_id":"p2","name":"Museo Sefardí","vicinity":"Calle Samuel Leví","geometry":{"location":{"lat":0,"lng":0}}}
]}`
	server := newPlacesServer(t, func(string) string { return body }, `{}`)
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	got, err := g.Nearby(t.Context(), 39.86, -4.02, "vitrales")
	if err != nil {
		t.Fatalf("Nearby() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Nearby() returned %d places, want 2", len(got))
	}
	if !got[0].Unlocated || got[0].Lat != 0 || got[0].Lng != 0 {
		t.Errorf("place without geometry = %+v, want Unlocated", got[0])
	}
	if got[1].Unlocated {
		t.Errorf("place at 0,0 = %+v, want located", got[1])
	}

	place, ok := NewPlaceFinder(g, g).NearestPlace(t.Context(), 39.86, -4.02, "vitrales", "")
	if !ok || place.PlaceID != "p1" || !place.Unlocated {
		t.Errorf("NearestPlace() = (%+v, %v), want unlocated p1", place, ok)
	}
}

func TestPlaceFinder_NothingFound(t *testing.T) {
	server := newPlacesServer(t, func(string) string { return `{"status":"ZERO_RESULTS","results":[]}` }, `{}`)
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	if _, ok := NewPlaceFinder(g, g).NearestPlace(t.Context(), 1, 2, "x", ""); ok {
		t.Error("NearestPlace() should find nothing")
	}

	if _, ok := NewPlaceFinder(nil, nil).NearestPlace(t.Context(), 1, 2, "x", ""); ok {
		t.Error("NearestPlace() with nil searcher should find nothing")
	}
}

func TestGooglePlaces_RequestDenied(t *testing.T) {
	server := newPlacesServer(t, func(string) string {
		return `{"status":"REQUEST_DENIED","error_message":"bad key","results":[]}`
	}, `{}`)
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	if _, err := g.Nearby(t.Context(), 1, 2, "x"); err == nil || !strings.Contains(err.Error(), "REQUEST_DENIED") {
		t.Errorf("Nearby() error = %v, want REQUEST_DENIED", err)
	}
}

func TestPlaceFinder_PlaceDetails(t *testing.T) {
	server := newPlacesServer(t, func(string) string { return twoPlaces },
		`{"status":"OK","result":{"opening_hours":{"open_now":true},"price_level":0,"website":"https://museo.es","url":"https://maps.google.com/?cid=1"}}`)
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	d := NewPlaceFinder(g, g).PlaceDetails(t.Context(), "p2")

	if d.OpenStatus() != StatusOpen {
		t.Errorf("OpenStatus() = %q, want open", d.OpenStatus())
	}
	if d.FeeStatus() != FeeFree {
		t.Errorf("FeeStatus() = %q, want free", d.FeeStatus())
	}
	if d.URL() != "https://museo.es" {
		t.Errorf("URL() = %q, want website", d.URL())
	}
}

func TestPlaceDetails_Derivations(t *testing.T) {
	closed := false
	two := 2
	zero := 0

	tests := []struct {
		name     string
		details  PlaceDetails
		wantOpen OpenStatus
		wantFee  FeeStatus
		wantURL  string
	}{
		{"empty", PlaceDetails{}, StatusOpenUnknown, FeeUnknown, ""},
		{"closed paid", PlaceDetails{OpenNow: &closed, PriceLevel: &two, MapsURL: "m"}, StatusClosed, FeeUnknown, "m"},
		{"free", PlaceDetails{PriceLevel: &zero}, StatusOpenUnknown, FeeFree, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.details.OpenStatus(); got != tt.wantOpen {
				t.Errorf("OpenStatus() = %q, want %q", got, tt.wantOpen)
			}
			if got := tt.details.FeeStatus(); got != tt.wantFee {
				t.Errorf("FeeStatus() = %q, want %q", got, tt.wantFee)
			}
			if got := tt.details.URL(); got != tt.wantURL {
				t.Errorf("URL() = %q, want %q", got, tt.wantURL)
			}
		})
	}
}

func TestPlaceFinder_DetailsDegrade(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	g := NewGooglePlaces("k", 5*time.Second, WithGooglePlacesBaseURL(server.URL))
	if d := NewPlaceFinder(g, g).PlaceDetails(t.Context(), "p1"); d != (PlaceDetails{}) {
		t.Errorf("PlaceDetails() = %+v, want empty", d)
	}
	if d := NewPlaceFinder(g, nil).PlaceDetails(t.Context(), "p1"); d != (PlaceDetails{}) {
		t.Errorf("PlaceDetails(nil fetcher) = %+v, want empty", d)
	}
}

func TestBuildSiteKeywords(t *testing.T) {
	tests := []struct {
		name        string
		title       string
		description string
		want        string
	}{
		{"both", "Vitrales", "Arte gótico en vidrio", "Vitrales Arte gótico en vidrio " + SiteKeywordsTail},
		{"description inside title", "Vitrales góticos", "VITRALES", "Vitrales góticos " + SiteKeywordsTail},
		{"description only", "", "Arte gótico", "Arte gótico " + SiteKeywordsTail},
		{"empty", "", "", SiteKeywordsTail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildSiteKeywords(tt.title, tt.description); got != tt.want {
				t.Errorf("BuildSiteKeywords() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveBestLink(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		details  PlaceDetails
		title    string
		label    string
		want     string
	}{
		{"website wins", "Museo", PlaceDetails{Website: "https://museo.es"}, "Vitrales", "Toledo", "https://museo.es"},
		{"resource and label", "Museo Sefardí", PlaceDetails{}, "Vitrales", "Toledo", searchBaseURL + "?search=Museo+Sefard%C3%AD+Toledo"},
		{"resource only", "Museo", PlaceDetails{}, "Vitrales", "", searchBaseURL + "?search=Museo"},
		{"title", "", PlaceDetails{}, "Vitrales", "Toledo", searchBaseURL + "?search=Vitrales"},
		{"generic", "", PlaceDetails{}, "", "", searchBaseURL + "?search=educational+topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveBestLink(tt.resource, tt.details, tt.title, tt.label); got != tt.want {
				t.Errorf("ResolveBestLink() = %q, want %q", got, tt.want)
			}
		})
	}
}

type countingSource struct {
	calls int
	err   error
}

func (c *countingSource) CurrentWeather(context.Context, float64, float64) (Weather, error) {
	c.calls++
	if c.err != nil {
		return Weather{}, c.err
	}
	temp := 60.0
	return Weather{Condition: ConditionSunny, TempF: &temp}, nil
}

func TestCachedWeather(t *testing.T) {
	src := &countingSource{}
	c := NewCachedWeather(src, cache.NewMemory(), time.Minute)

	for i := 0; i < 3; i++ {
		w, err := c.CurrentWeather(t.Context(), 40.41681, -3.70381)
		if err != nil {
			t.Fatalf("CurrentWeather() error = %v", err)
		}
		if w.TempF == nil || *w.TempF != 60 {
			t.Errorf("TempF = %v, want 60", w.TempF)
		}
	}
	if src.calls != 1 {
		t.Errorf("source called %d times, want 1", src.calls)
	}

	failing := &countingSource{err: errors.New("down")}
	c = NewCachedWeather(failing, cache.NewMemory(), time.Minute)
	_, _ = c.CurrentWeather(t.Context(), 1, 1)
	_, _ = c.CurrentWeather(t.Context(), 1, 1)
	if failing.calls != 2 {
		t.Errorf("failing source called %d times, want 2", failing.calls)
	}
}

type countingPlaces struct {
	nearby, details int
}

func (c *countingPlaces) Nearby(context.Context, float64, float64, string) ([]Place, error) {
	c.nearby++
	return []Place{{PlaceID: "p1", Name: "Biblioteca"}}, nil
}

func (c *countingPlaces) Details(context.Context, string) (PlaceDetails, error) {
	c.details++
	return PlaceDetails{Website: "https://b.es"}, nil
}

func TestCachedPlaces(t *testing.T) {
	inner := &countingPlaces{}
	c := NewCachedPlaces(inner, inner, cache.NewMemory(), time.Minute)
	f := NewPlaceFinder(c, c)

	for i := 0; i < 2; i++ {
		if p, ok := f.NearestPlace(t.Context(), 1, 2, "kw", ""); !ok || p.PlaceID != "p1" {
			t.Errorf("NearestPlace() = (%+v, %v)", p, ok)
		}
		if d := f.PlaceDetails(t.Context(), "p1"); d.Website != "https://b.es" {
			t.Errorf("PlaceDetails() = %+v", d)
		}
	}
	if inner.nearby != 1 || inner.details != 1 {
		t.Errorf("calls nearby=%d details=%d, want 1/1", inner.nearby, inner.details)
	}
}
