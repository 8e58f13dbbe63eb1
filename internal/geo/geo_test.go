package geo

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/p-n-ai/pai-compass/internal/platform/cache"
)

func TestDistanceMeters_ZeroAndSymmetric(t *testing.T) {
	points := [][2]float64{
		{40.4168, -3.7038},
		{-33.8688, 151.2093},
		{0, 0},
		{89.9, 179.9},
	}

	for _, a := range points {
		if d := DistanceMeters(a[0], a[1], a[0], a[1]); d != 0 {
			t.Errorf("DistanceMeters(p, p) = %v, want 0", d)
		}
		for _, b := range points {
			ab := DistanceMeters(a[0], a[1], b[0], b[1])
			ba := DistanceMeters(b[0], b[1], a[0], a[1])
			if math.Abs(ab-ba) > 1e-6 {
				t.Errorf("DistanceMeters not symmetric: %v vs %v", ab, ba)
			}
		}
	}
}

func TestDistanceMeters_Known(t *testing.T) {
	// One degree of latitude along a meridian.
	got := DistanceMeters(0, 0, 1, 0)
	want := EarthRadiusMeters * math.Pi / 180
	if math.Abs(got-want) > 0.001 {
		t.Errorf("DistanceMeters(0,0,1,0) = %v, want %v", got, want)
	}

	// Madrid Puerta del Sol to Plaza Mayor, roughly 400 m.
	got = DistanceMeters(40.4169, -3.7035, 40.4155, -3.7074)
	if got < 300 || got > 450 {
		t.Errorf("DistanceMeters(Sol, Plaza Mayor) = %v, want ~365", got)
	}
}

type fakeGeocoder struct {
	result GeocodeResult
	err    error
	calls  int
}

func (f *fakeGeocoder) Geocode(_ context.Context, _ string) (GeocodeResult, error) {
	f.calls++
	return f.result, f.err
}

func TestNormalize(t *testing.T) {
	geocoder := &fakeGeocoder{result: GeocodeResult{Lat: 41.38, Lng: 2.17, Formatted: "Barcelona, España", TimeZone: "Europe/Madrid"}}
	n := NewNormalizer(geocoder)

	tests := []struct {
		name string
		in   LocationInput
		want Resolution
	}{
		{
			name: "numeric strings",
			in:   LocationInput{Lat: "40.1", Lng: "-3.2"},
			want: Resolution{Lat: 40.1, Lng: -3.2, Resolved: true},
		},
		{
			name: "numbers keep label",
			in:   LocationInput{Lat: 40.1, Lng: -3.2, Location: "Plaza Mayor"},
			want: Resolution{Lat: 40.1, Lng: -3.2, Resolved: true, Label: "Plaza Mayor"},
		},
		{
			name: "lat,lng string",
			in:   LocationInput{Location: "40.1,-3.2"},
			want: Resolution{Lat: 40.1, Lng: -3.2, Resolved: true, Label: "40.1,-3.2"},
		},
		{
			name: "lat,lng string with spaces",
			in:   LocationInput{Location: " 40.1 , -3.2 "},
			want: Resolution{Lat: 40.1, Lng: -3.2, Resolved: true, Label: " 40.1 , -3.2 "},
		},
		{
			name: "unparseable numbers fall through to location",
			in:   LocationInput{Lat: "north", Lng: "west", Location: "40.1,-3.2"},
			want: Resolution{Lat: 40.1, Lng: -3.2, Resolved: true, Label: "40.1,-3.2"},
		},
		{
			name: "free text geocoded",
			in:   LocationInput{Location: "Barcelona"},
			want: Resolution{Lat: 41.38, Lng: 2.17, Resolved: true, Label: "Barcelona, España", TimeZone: "Europe/Madrid"},
		},
		{
			name: "comma free text geocoded",
			in:   LocationInput{Location: "Gran Via, Madrid"},
			want: Resolution{Lat: 41.38, Lng: 2.17, Resolved: true, Label: "Barcelona, España", TimeZone: "Europe/Madrid"},
		},
		{
			name: "nothing",
			in:   LocationInput{},
			want: Resolution{},
		},
		{
			name: "non-string location",
			in:   LocationInput{Location: 42.0},
			want: Resolution{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(t.Context(), tt.in)
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalize_GeocodingFailureIsUnresolved(t *testing.T) {
	n := NewNormalizer(&fakeGeocoder{err: errors.New("timeout")})

	got := n.Normalize(t.Context(), LocationInput{Location: "Atlantis"})
	want := Resolution{Label: "Atlantis"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestNormalize_MissingKeyLogsAtDebug(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantLevel string
	}{
		{"missing key", ErrMissingAPIKey, "DEBUG"},
		{"provider failure", errors.New("timeout"), "WARN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			prev := slog.Default()
			slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
			defer slog.SetDefault(prev)

			got := NewNormalizer(&fakeGeocoder{err: tt.err}).Normalize(t.Context(), LocationInput{Location: "Atlantis"})
			if got.Resolved {
				t.Errorf("Normalize() = %+v, want unresolved", got)
			}
			if !strings.Contains(buf.String(), "level="+tt.wantLevel) {
				t.Errorf("log = %q, want level %s", buf.String(), tt.wantLevel)
			}
		})
	}
}

func TestNormalize_NoGeocoder(t *testing.T) {
	n := NewNormalizer(nil)

	got := n.Normalize(t.Context(), LocationInput{Location: "Sevilla"})
	if got.Resolved || got.Label != "Sevilla" {
		t.Errorf("Normalize() = %+v, want unresolved with label", got)
	}
}

func TestLocalTimestamp(t *testing.T) {
	now := time.Date(2025, 9, 1, 8, 22, 13, 0, time.UTC)

	tests := []struct {
		name   string
		tz     string
		want   string
		wantTZ string
	}{
		{"madrid summer", "Europe/Madrid", "2025-09-01T10:22:13+0200", "Europe/Madrid"},
		{"empty", "", "2025-09-01T08:22:13+0000", "UTC"},
		{"invalid", "Mars/Olympus", "2025-09-01T08:22:13+0000", "UTC"},
		{"new york", "America/New_York", "2025-09-01T04:22:13-0400", "America/New_York"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, gotTZ := LocalTimestamp(now, tt.tz)
			if got != tt.want || gotTZ != tt.wantTZ {
				t.Errorf("LocalTimestamp() = (%q, %q), want (%q, %q)", got, gotTZ, tt.want, tt.wantTZ)
			}
			parsed, err := ParseTimestamp(got)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q) error = %v", got, err)
			}
			if !parsed.Equal(now) {
				t.Errorf("ParseTimestamp(%q) = %v, want %v", got, parsed, now)
			}
		})
	}
}

func TestFormatLatLng(t *testing.T) {
	if got := FormatLatLng(40.4168, -3.7038); got != "40.4168,-3.7038" {
		t.Errorf("FormatLatLng() = %q", got)
	}
}

func TestCachedGeocoder(t *testing.T) {
	inner := &fakeGeocoder{result: GeocodeResult{Lat: 1, Lng: 2, Formatted: "X"}}
	c := NewCachedGeocoder(inner, cache.NewMemory(), time.Hour)

	for _, q := range []string{"Toledo", " toledo ", "TOLEDO"} {
		got, err := c.Geocode(t.Context(), q)
		if err != nil {
			t.Fatalf("Geocode() error = %v", err)
		}
		if got.Formatted != "X" {
			t.Errorf("Geocode().Formatted = %q, want X", got.Formatted)
		}
	}
	if inner.calls != 1 {
		t.Errorf("inner geocoder called %d times, want 1", inner.calls)
	}
}
