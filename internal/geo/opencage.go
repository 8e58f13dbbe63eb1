package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultOpenCageURL = "https://api.opencagedata.com/geocode/v1/json"

// ErrNoResults is returned when the provider has no match for a query.
var ErrNoResults = errors.New("no geocoding results")

// ErrMissingAPIKey is returned by clients constructed without a credential.
var ErrMissingAPIKey = errors.New("geocoding api key not configured")

// OpenCage implements Geocoder against the OpenCage geocoding API.
type OpenCage struct {
	apiKey   string
	baseURL  string
	language string
	client   *http.Client
}

// OpenCageOption configures an OpenCage client.
type OpenCageOption func(*OpenCage)

// WithOpenCageBaseURL points the client at another endpoint.
func WithOpenCageBaseURL(u string) OpenCageOption {
	return func(o *OpenCage) {
		o.baseURL = u
	}
}

// WithOpenCageHTTPClient sets a custom HTTP client.
func WithOpenCageHTTPClient(client *http.Client) OpenCageOption {
	return func(o *OpenCage) {
		o.client = client
	}
}

// NewOpenCage creates a geocoder. timeout bounds each request.
func NewOpenCage(apiKey string, timeout time.Duration, opts ...OpenCageOption) *OpenCage {
	o := &OpenCage{
		apiKey:   apiKey,
		baseURL:  defaultOpenCageURL,
		language: "es",
		client:   &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type openCageResponse struct {
	Results []struct {
		Formatted string `json:"formatted"`
		Geometry  struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"geometry"`
		Annotations struct {
			Timezone struct {
				Name string `json:"name"`
			} `json:"timezone"`
		} `json:"annotations"`
	} `json:"results"`
}

func (o *OpenCage) Geocode(ctx context.Context, query string) (GeocodeResult, error) {
	if o.apiKey == "" {
		return GeocodeResult{}, ErrMissingAPIKey
	}

	params := url.Values{
		"q":              {query},
		"key":            {o.apiKey},
		"no_annotations": {"0"},
		"limit":          {"1"},
		"language":       {o.language},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return GeocodeResult{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return GeocodeResult{}, fmt.Errorf("opencage api error (status %d)", resp.StatusCode)
	}

	var parsed openCageResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return GeocodeResult{}, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return GeocodeResult{}, ErrNoResults
	}

	best := parsed.Results[0]
	if best.Geometry.Lat == nil || best.Geometry.Lng == nil {
		return GeocodeResult{}, fmt.Errorf("result without geometry")
	}
	formatted := best.Formatted
	if formatted == "" {
		formatted = query
	}
	return GeocodeResult{
		Lat:       *best.Geometry.Lat,
		Lng:       *best.Geometry.Lng,
		Formatted: formatted,
		TimeZone:  best.Annotations.Timezone.Name,
	}, nil
}
