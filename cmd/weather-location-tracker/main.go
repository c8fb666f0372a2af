package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	httpapi "github.com/i474232898/weather-location-tracker/internal/api/http"
	"github.com/i474232898/weather-location-tracker/internal/config"
	"github.com/i474232898/weather-location-tracker/internal/forecast"
	"github.com/i474232898/weather-location-tracker/internal/geocode"
	"github.com/i474232898/weather-location-tracker/internal/localtime"
	"github.com/i474232898/weather-location-tracker/internal/scheduler"
	"github.com/i474232898/weather-location-tracker/internal/store"
	"github.com/i474232898/weather-location-tracker/internal/tracking"
	"github.com/i474232898/weather-location-tracker/internal/units"
)

type locationStore interface {
	tracking.Store
	Close() error
}

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	locStore, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to open location store: %v", err)
	}
	defer locStore.Close()

	// Forecast provider with resilience (rate limit + backoff + circuit breaker).
	if cfg.OpenWeatherAPIKey == "" {
		log.Printf("WARN: OPENWEATHER_API_KEY is not set, forecast refreshes will fail")
	}
	provider := forecast.NewOpenWeatherProvider(httpClient, forecast.OpenWeatherConfig{
		APIKey:            cfg.OpenWeatherAPIKey,
		BaseURL:           cfg.OpenWeatherBaseURL,
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
	})

	clk := clock.NewClock()
	repo := forecast.NewRepository(provider,
		forecast.WithClock(clk),
		forecast.WithMinRefreshAge(cfg.MinRefreshAge),
	)

	var timers scheduler.Timers
	switch cfg.SchedulerBackend {
	case config.BackendClock:
		timers = scheduler.NewClockTimers(clk)
	default:
		timers = scheduler.NewCronTimers(cfg.DeviceTimeZone)
	}
	sched := scheduler.New(timers, scheduler.WithTickTimeout(cfg.RefreshTimeout))

	tracker := tracking.New(locStore, sched, repo, cfg.RefreshInterval,
		tracking.WithClock(clk),
		tracking.WithRefreshTimeout(cfg.RefreshTimeout),
	)
	repo.OnFetched(tracker.RecordFetch)

	var gc geocode.Geocoder
	if g, err := geocode.NewGoogleGeocoder(cfg.GeocoderAPIKey); err != nil {
		log.Printf("INFO: geocoding disabled: %v", err)
	} else {
		gc = g
	}

	if err := tracker.Load(ctx); err != nil {
		log.Fatalf("failed to load tracked locations: %v", err)
	}
	if cfg.Primary != nil {
		if err := ensurePrimary(ctx, tracker, gc, cfg.Primary); err != nil {
			log.Printf("WARN: primary location not tracked: %v", err)
		}
	}

	settings := units.NewSettings(cfg.Units)
	formatter := localtime.NewFormatter(cfg.DeviceTimeZone, clk)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "weather-location-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          cfg.RefreshTimeout + 10*time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":    "ok",
			"service":   "weather-location-tracker",
			"locations": len(tracker.List()),
			"scheduled": sched.Len(),
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Tracker:        tracker,
		Forecasts:      repo,
		Scheduler:      sched,
		Settings:       settings,
		Formatter:      formatter,
		Geocoder:       gc,
		Clock:          clk,
		RefreshTimeout: cfg.RefreshTimeout,
	})

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()
	log.Printf("weather-location-tracker listening on :%s (%d locations, %s scheduler)",
		cfg.Port, len(tracker.List()), cfg.SchedulerBackend)

	// Wait for termination signal
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	sched.Stop()
	tracker.Wait()
}

func openStore(ctx context.Context, cfg *config.AppConfig) (locationStore, error) {
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Printf("INFO: using in-memory location store, locations are lost on exit")
		return store.NewMemoryStore(), nil
	case store.DriverPostgres:
		return openSQLStore(ctx, store.DriverPostgres, cfg.DatabaseURL)
	default:
		return openSQLStore(ctx, store.DriverSQLite, cfg.DBPath)
	}
}

func openSQLStore(ctx context.Context, driver, dsn string) (*store.SQLStore, error) {
	s, err := store.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := s.InitSchema(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// ensurePrimary tracks the configured device location, naming it by reverse
// geocoding when no name is configured.
func ensurePrimary(ctx context.Context, tracker *tracking.Tracker, gc geocode.Geocoder, p *config.PrimaryLocation) error {
	loc := tracking.Location{
		DisplayName: p.Name,
		Coordinates: tracking.Coordinates{Lat: p.Lat, Lon: p.Lon},
	}

	if loc.DisplayName == "" && gc != nil {
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		place, err := gc.Reverse(lookupCtx, p.Lat, p.Lon)
		cancel()
		if err != nil {
			log.Printf("WARN: reverse geocoding the primary location: %v", err)
		} else {
			loc.DisplayName = place.Name
			loc.AdminArea = place.AdminArea
			loc.Country = place.Country
		}
	}
	if loc.DisplayName == "" {
		loc.DisplayName = "My Location"
	}

	_, err := tracker.EnsurePrimary(ctx, loc)
	return err
}
