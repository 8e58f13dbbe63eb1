// Package lookup adapts third-party weather and places providers for the task
// engine. Each adapter has a raw client that returns errors and an
// engine-facing wrapper that degrades failures to documented sentinels.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-compass/internal/platform/cache"
)

const (
	ConditionRainy   = "rainy"
	ConditionSunny   = "sunny"
	ConditionCloudy  = "cloudy"
	ConditionStormy  = "stormy"
	ConditionClear   = "clear"
	ConditionUnknown = "unknown"
)

const defaultOpenWeatherURL = "https://api.openweathermap.org/data/2.5/weather"

// ErrMissingAPIKey is returned by raw clients constructed without a credential.
var ErrMissingAPIKey = errors.New("api key not configured")

// Weather is a classified current-weather reading. TempF is nil when the
// temperature is unknown.
type Weather struct {
	Condition string   `json:"condition"`
	TempF     *float64 `json:"temperature_f"`
}

// UnknownWeather is the sentinel for a failed weather lookup.
func UnknownWeather() Weather {
	return Weather{Condition: ConditionUnknown}
}

// ClassifyCondition maps a provider condition string onto rainy, sunny,
// cloudy or stormy by case-insensitive substring. Anything else passes
// through lowercased; an empty string becomes "unknown".
func ClassifyCondition(raw string) string {
	main := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(main, "rain"):
		return ConditionRainy
	case strings.Contains(main, "clear"):
		return ConditionSunny
	case strings.Contains(main, "cloud"):
		return ConditionCloudy
	case strings.Contains(main, "storm"), strings.Contains(main, "thunder"):
		return ConditionStormy
	case main == "":
		return ConditionUnknown
	default:
		return main
	}
}

// WeatherSource reports current weather for a coordinate.
type WeatherSource interface {
	CurrentWeather(ctx context.Context, lat, lng float64) (Weather, error)
}

// OpenWeather is a WeatherSource backed by the OpenWeatherMap current
// weather API in imperial units.
type OpenWeather struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// OpenWeatherOption configures an OpenWeather client.
type OpenWeatherOption func(*OpenWeather)

// WithOpenWeatherBaseURL points the client at another endpoint.
func WithOpenWeatherBaseURL(u string) OpenWeatherOption {
	return func(o *OpenWeather) {
		o.baseURL = u
	}
}

// WithOpenWeatherHTTPClient sets a custom HTTP client.
func WithOpenWeatherHTTPClient(client *http.Client) OpenWeatherOption {
	return func(o *OpenWeather) {
		o.client = client
	}
}

// NewOpenWeather creates a weather client. timeout bounds each request.
func NewOpenWeather(apiKey string, timeout time.Duration, opts ...OpenWeatherOption) *OpenWeather {
	o := &OpenWeather{
		apiKey:  apiKey,
		baseURL: defaultOpenWeatherURL,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type openWeatherResponse struct {
	Weather []struct {
		Main string `json:"main"`
	} `json:"weather"`
	Main struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
}

func (o *OpenWeather) CurrentWeather(ctx context.Context, lat, lng float64) (Weather, error) {
	if o.apiKey == "" {
		return Weather{}, ErrMissingAPIKey
	}

	params := url.Values{
		"lat":   {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon":   {strconv.FormatFloat(lng, 'f', -1, 64)},
		"appid": {o.apiKey},
		"units": {"imperial"},
	}
	var parsed openWeatherResponse
	if err := getJSON(ctx, o.client, o.baseURL+"?"+params.Encode(), &parsed); err != nil {
		return Weather{}, fmt.Errorf("openweather: %w", err)
	}

	main := ""
	if len(parsed.Weather) > 0 {
		main = parsed.Weather[0].Main
	}
	return Weather{Condition: ClassifyCondition(main), TempF: parsed.Main.Temp}, nil
}

// WeatherClassifier is the engine-facing weather adapter.
type WeatherClassifier struct {
	source WeatherSource
}

// NewWeatherClassifier wraps a WeatherSource. A nil source always reports
// unknown weather.
func NewWeatherClassifier(source WeatherSource) *WeatherClassifier {
	return &WeatherClassifier{source: source}
}

// ClassifyWeather returns the current weather or UnknownWeather on any failure.
func (c *WeatherClassifier) ClassifyWeather(ctx context.Context, lat, lng float64) Weather {
	if c == nil || c.source == nil {
		return UnknownWeather()
	}
	w, err := c.source.CurrentWeather(ctx, lat, lng)
	if err != nil {
		logDegraded("weather lookup degraded", err, "lat", lat, "lng", lng)
		return UnknownWeather()
	}
	return w
}

// CachedWeather memoizes a WeatherSource per ~100 m grid cell.
type CachedWeather struct {
	next  WeatherSource
	store cache.Store
	ttl   time.Duration
}

// NewCachedWeather wraps next with a read-through cache.
func NewCachedWeather(next WeatherSource, store cache.Store, ttl time.Duration) *CachedWeather {
	return &CachedWeather{next: next, store: store, ttl: ttl}
}

func (c *CachedWeather) CurrentWeather(ctx context.Context, lat, lng float64) (Weather, error) {
	key := fmt.Sprintf("weather:%.3f,%.3f", lat, lng)
	return cache.Remember(ctx, c.store, key, c.ttl, func(ctx context.Context) (Weather, error) {
		return c.next.CurrentWeather(ctx, lat, lng)
	})
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("api error (status %d)", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func logDegraded(msg string, err error, args ...any) {
	args = append(args, "error", err)
	if errors.Is(err, ErrMissingAPIKey) {
		slog.Debug(msg, args...)
		return
	}
	slog.Warn(msg, args...)
}
