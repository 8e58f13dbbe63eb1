package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/p-n-ai/pai-compass/internal/catalog"
	"github.com/p-n-ai/pai-compass/internal/feed"
	"github.com/p-n-ai/pai-compass/internal/geo"
	"github.com/p-n-ai/pai-compass/internal/httpapi"
	"github.com/p-n-ai/pai-compass/internal/lookup"
	"github.com/p-n-ai/pai-compass/internal/platform/cache"
	"github.com/p-n-ai/pai-compass/internal/platform/config"
	"github.com/p-n-ai/pai-compass/internal/platform/database"
	"github.com/p-n-ai/pai-compass/internal/reaction"
	"github.com/p-n-ai/pai-compass/internal/service"
	"github.com/p-n-ai/pai-compass/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(os.Stdout, cfg.Log))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: writeTimeout(cfg.Lookup.Timeout),
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.Store.Engine, "cache", cfg.Cache.Enabled)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

// writeTimeout leaves room for the four sequential lookups of a reaction:
// nearby search, fallback nearby search, place details and weather.
func writeTimeout(perLookup time.Duration) time.Duration {
	return 4*perLookup + 10*time.Second
}

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// app is the wired server and the resources it owns.
type app struct {
	handler http.Handler
	closers []func()
}

// Close releases owned resources in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects backends and wires the HTTP handler.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	var handlerOpts []httpapi.HandlerOption

	var (
		kcs     store.KCStore     = store.NewMemoryKCStore()
		history store.HistoryLog  = store.NewMemoryHistoryLog()
		events  store.EventLogger = store.NopEventLogger{}
	)
	if cfg.UsePostgres() {
		db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connecting database: %w", err)
		}
		a.closers = append(a.closers, db.Close)

		if err := db.Migrate(ctx); err != nil {
			a.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		pgKCs, err := store.NewPostgresKCStore(db.Pool)
		if err != nil {
			a.Close()
			return nil, err
		}
		pgHistory, err := store.NewPostgresHistoryLog(db.Pool)
		if err != nil {
			a.Close()
			return nil, err
		}
		kcs, history, events = pgKCs, pgHistory, store.NewPostgresEventLogger(db.Pool)
		handlerOpts = append(handlerOpts, httpapi.WithReadinessCheck("database", db.HealthCheck))
		slog.Info("using postgres store")
	}

	places := lookup.NewGooglePlaces(cfg.Lookup.GoogleAPIKey, cfg.Lookup.Timeout)
	var (
		geocoder geo.Geocoder          = geo.NewOpenCage(cfg.Lookup.OpenCageAPIKey, cfg.Lookup.Timeout)
		weather  lookup.WeatherSource  = lookup.NewOpenWeather(cfg.Lookup.OpenWeatherAPIKey, cfg.Lookup.Timeout)
		search   lookup.NearbySearcher = places
		details  lookup.DetailsFetcher = places
	)
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			// Lookups still work uncached.
			slog.Warn("cache unavailable, lookups will not be cached", "error", err)
		} else {
			a.closers = append(a.closers, func() { _ = c.Close() })
			geocoder = geo.NewCachedGeocoder(geocoder, c, cfg.Cache.TTL)
			weather = lookup.NewCachedWeather(weather, c, cfg.Cache.TTL)
			cached := lookup.NewCachedPlaces(search, details, c, cfg.Cache.TTL)
			search, details = cached, cached
			handlerOpts = append(handlerOpts, httpapi.WithReadinessCheck("cache", c.HealthCheck))
		}
	}

	if cfg.CatalogPath != "" {
		loader, err := catalog.NewLoader(cfg.CatalogPath)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("loading catalog: %w", err)
		}
		n, err := loader.Seed(ctx, kcs)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("seeding catalog: %w", err)
		}
		slog.Info("catalog seeded", "path", cfg.CatalogPath, "kcs", n)
	}

	hub := feed.NewHub(feed.WithOriginPatterns(cfg.CORSOrigins...))
	handlerOpts = append(handlerOpts, httpapi.WithFeed(hub))

	engine := reaction.NewEngine(reaction.EngineConfig{
		KCs:          kcs,
		History:      history,
		Places:       lookup.NewPlaceFinder(search, details),
		Weather:      lookup.NewWeatherClassifier(weather),
		Events:       events,
		RadiusMeters: cfg.Reaction.RadiusMeters,
		HotF:         cfg.Reaction.HotF,
		Language:     cfg.Reaction.Language,
	})

	svc := service.New(service.Config{
		KCs:        kcs,
		History:    history,
		Normalizer: geo.NewNormalizer(geocoder),
		Reactions:  engine,
		Events:     events,
		Feed:       hub,
	})

	a.handler = httpapi.NewRouter(httpapi.NewHandler(svc, handlerOpts...), cfg.CORSOrigins)
	return a, nil
}
