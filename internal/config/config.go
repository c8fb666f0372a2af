package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/i474232898/weather-location-tracker/internal/units"
)

const (
	BackendCron  = "cron"
	BackendClock = "clock"

	DriverMemory = "memory"
)

type AppConfig struct {
	OpenWeatherAPIKey  string
	OpenWeatherBaseURL string `validate:"omitempty,url"`
	GeocoderAPIKey     string

	// RefreshInterval controls how often each tracked location is refreshed.
	RefreshInterval time.Duration `validate:"gt=0"`
	// RefreshTimeout bounds a single refresh.
	RefreshTimeout time.Duration `validate:"gt=0"`
	// MinRefreshAge skips scheduled refreshes of forecasts younger than this.
	// It must stay below RefreshInterval or scheduled ticks get skipped.
	MinRefreshAge    time.Duration `validate:"gte=0,ltfield=RefreshInterval"`
	SchedulerBackend string        `validate:"oneof=cron clock"`

	// Outbound provider calls.
	HTTPTimeout   time.Duration `validate:"gt=0"`
	ProviderRPS   float64       `validate:"gte=0"`
	ProviderBurst int           `validate:"gte=1"`

	// Location store.
	DBDriver    string `validate:"oneof=sqlite pgx memory"`
	DBPath      string `validate:"required_if=DBDriver sqlite"`
	DatabaseURL string `validate:"required_if=DBDriver pgx"`

	DeviceTimeZone *time.Location `validate:"required"`
	Units          units.SelectedUnits

	// Primary is the device location; nil when not configured.
	Primary *PrimaryLocation

	Port string `validate:"required,numeric"`
}

// PrimaryLocation is the location pinned to the top of the list.
type PrimaryLocation struct {
	Name string
	Lat  float64 `validate:"latitude"`
	Lon  float64 `validate:"longitude"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}
	var err error

	cfg.OpenWeatherAPIKey = os.Getenv("OPENWEATHER_API_KEY")
	cfg.OpenWeatherBaseURL = os.Getenv("OPENWEATHER_BASE_URL")
	cfg.GeocoderAPIKey = os.Getenv("GEOCODER_API_KEY")

	if cfg.RefreshInterval, err = getenvDuration("REFRESH_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RefreshTimeout, err = getenvDuration("REFRESH_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.MinRefreshAge, err = getenvDuration("MIN_REFRESH_AGE", time.Minute); err != nil {
		return nil, err
	}
	cfg.SchedulerBackend = strings.ToLower(getenvDefault("SCHEDULER_BACKEND", BackendCron))

	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.ProviderRPS = getenvFloat("PROVIDER_RPS", 1)
	cfg.ProviderBurst = getenvInt("PROVIDER_BURST", 5)

	cfg.DBDriver = strings.ToLower(getenvDefault("DB_DRIVER", "sqlite"))
	cfg.DBPath = getenvDefault("DB_PATH", "weather.db")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")

	zone := getenvDefault("DEVICE_TIMEZONE", "Local")
	cfg.DeviceTimeZone, err = time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("invalid DEVICE_TIMEZONE: %w", err)
	}

	if cfg.Units, err = loadUnits(); err != nil {
		return nil, err
	}

	if cfg.Primary, err = loadPrimaryLocation(); err != nil {
		return nil, err
	}

	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func loadUnits() (units.SelectedUnits, error) {
	s := units.DefaultSelectedUnits()
	var err error

	if v := os.Getenv("DEFAULT_TEMPERATURE_UNIT"); v != "" {
		if s.Temperature, err = units.ParseTemperatureUnit(v); err != nil {
			return s, fmt.Errorf("invalid DEFAULT_TEMPERATURE_UNIT: %w", err)
		}
	}
	if v := os.Getenv("DEFAULT_SPEED_UNIT"); v != "" {
		if s.Speed, err = units.ParseSpeedUnit(v); err != nil {
			return s, fmt.Errorf("invalid DEFAULT_SPEED_UNIT: %w", err)
		}
	}
	if v := os.Getenv("DEFAULT_PRECIPITATION_UNIT"); v != "" {
		if s.Precipitation, err = units.ParsePrecipitationUnit(v); err != nil {
			return s, fmt.Errorf("invalid DEFAULT_PRECIPITATION_UNIT: %w", err)
		}
	}
	if v := os.Getenv("DEFAULT_DISTANCE_UNIT"); v != "" {
		if s.Distance, err = units.ParseDistanceUnit(v); err != nil {
			return s, fmt.Errorf("invalid DEFAULT_DISTANCE_UNIT: %w", err)
		}
	}
	return s, nil
}

func loadPrimaryLocation() (*PrimaryLocation, error) {
	lat := os.Getenv("PRIMARY_LOCATION_LAT")
	lon := os.Getenv("PRIMARY_LOCATION_LON")
	if lat == "" && lon == "" {
		return nil, nil
	}
	if lat == "" || lon == "" {
		return nil, fmt.Errorf("PRIMARY_LOCATION_LAT and PRIMARY_LOCATION_LON must be set together")
	}

	p := &PrimaryLocation{Name: strings.TrimSpace(os.Getenv("PRIMARY_LOCATION_NAME"))}
	var err error
	if p.Lat, err = strconv.ParseFloat(lat, 64); err != nil {
		return nil, fmt.Errorf("invalid PRIMARY_LOCATION_LAT: %w", err)
	}
	if p.Lon, err = strconv.ParseFloat(lon, 64); err != nil {
		return nil, fmt.Errorf("invalid PRIMARY_LOCATION_LON: %w", err)
	}
	return p, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
