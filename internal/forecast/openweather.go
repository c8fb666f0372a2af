package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/i474232898/weather-location-tracker/internal/icons"
)

// DefaultOpenWeatherURL is the One Call 3.0 endpoint.
const DefaultOpenWeatherURL = "https://api.openweathermap.org/data/3.0/onecall"

const (
	millimetersPerInch = 25.4
	metersPerMile      = 1609.344
)

// ErrMissingAPIKey is returned when the provider has no API key.
var ErrMissingAPIKey = errors.New("openweather api key is not configured")

// OpenWeatherConfig configures an OpenWeatherProvider. Zero values take defaults.
type OpenWeatherConfig struct {
	APIKey  string
	BaseURL string
	// RequestsPerSecond and Burst size the outbound rate limiter. A
	// non-positive rate disables limiting.
	RequestsPerSecond float64
	Burst             int
	Backoff           BackoffConfig
}

// OpenWeatherProvider fetches forecasts from the OpenWeatherMap One Call API.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(client *http.Client, cfg OpenWeatherConfig) *OpenWeatherProvider {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "openweather",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     2 * time.Minute,
	})

	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenWeatherURL
	}
	if cfg.Backoff == (BackoffConfig{}) {
		cfg.Backoff = BackoffConfig{
			MaxRetries:      3,
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     5 * time.Second,
		}
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: cfg.Backoff,
			Limiter: limiter,
		},
		circuit: cb,
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

// FetchForecast requests imperial units so temperatures and wind speeds arrive
// in base units; precipitation (mm) and visibility (m) are converted here.
func (p *OpenWeatherProvider) FetchForecast(ctx context.Context, lat, lon float64) (Payload, error) {
	if p.apiKey == "" {
		return Payload{}, ErrMissingAPIKey
	}

	buildRequest := func(ctx context.Context) (*http.Request, error) {
		values := url.Values{}
		values.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		values.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
		values.Set("units", "imperial")
		values.Set("appid", p.apiKey)

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return Payload{}, err
	}
	defer resp.Body.Close()

	// encoding/json rejects NaN, Inf and out of range numbers, so every decoded
	// value is finite.
	var raw oneCallResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return Payload{}, fmt.Errorf("decode one call response: %w", err)
	}

	return raw.toPayload(), nil
}

type owmCondition struct {
	ID          int    `json:"id"`
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmVolume struct {
	OneHour float64 `json:"1h"`
}

type owmCurrent struct {
	Dt         int64          `json:"dt"`
	Sunrise    int64          `json:"sunrise"`
	Sunset     int64          `json:"sunset"`
	Temp       float64        `json:"temp"`
	FeelsLike  float64        `json:"feels_like"`
	Pressure   int            `json:"pressure"`
	Humidity   int            `json:"humidity"`
	DewPoint   float64        `json:"dew_point"`
	Clouds     int            `json:"clouds"`
	UVI        float64        `json:"uvi"`
	Visibility float64        `json:"visibility"`
	WindSpeed  float64        `json:"wind_speed"`
	WindGust   float64        `json:"wind_gust"`
	WindDeg    int            `json:"wind_deg"`
	Rain       owmVolume      `json:"rain"`
	Snow       owmVolume      `json:"snow"`
	Weather    []owmCondition `json:"weather"`
}

type owmHourly struct {
	owmCurrent
	Pop float64 `json:"pop"`
}

type owmDaily struct {
	Dt        int64   `json:"dt"`
	Sunrise   int64   `json:"sunrise"`
	Sunset    int64   `json:"sunset"`
	MoonPhase float64 `json:"moon_phase"`
	Summary   string  `json:"summary"`
	Temp      struct {
		Day   float64 `json:"day"`
		Min   float64 `json:"min"`
		Max   float64 `json:"max"`
		Night float64 `json:"night"`
		Eve   float64 `json:"eve"`
		Morn  float64 `json:"morn"`
	} `json:"temp"`
	Pressure  int            `json:"pressure"`
	Humidity  int            `json:"humidity"`
	Clouds    int            `json:"clouds"`
	UVI       float64        `json:"uvi"`
	WindSpeed float64        `json:"wind_speed"`
	WindGust  float64        `json:"wind_gust"`
	WindDeg   int            `json:"wind_deg"`
	Pop       float64        `json:"pop"`
	Rain      float64        `json:"rain"`
	Snow      float64        `json:"snow"`
	Weather   []owmCondition `json:"weather"`
}

type oneCallResponse struct {
	Lat            float64    `json:"lat"`
	Lon            float64    `json:"lon"`
	Timezone       string     `json:"timezone"`
	TimezoneOffset int        `json:"timezone_offset"`
	Current        owmCurrent `json:"current"`
	Minutely       []struct {
		Dt            int64   `json:"dt"`
		Precipitation float64 `json:"precipitation"`
	} `json:"minutely"`
	Hourly []owmHourly `json:"hourly"`
	Daily  []owmDaily  `json:"daily"`
	Alerts []struct {
		SenderName  string   `json:"sender_name"`
		Event       string   `json:"event"`
		Start       int64    `json:"start"`
		End         int64    `json:"end"`
		Description string   `json:"description"`
		Tags        []string `json:"tags"`
	} `json:"alerts"`
}

func (r oneCallResponse) toPayload() Payload {
	p := Payload{
		Latitude:       r.Lat,
		Longitude:      r.Lon,
		TimeZone:       r.Timezone,
		TimeZoneOffset: r.TimezoneOffset,
		Current:        r.Current.toCurrent(),
	}

	for _, m := range r.Minutely {
		p.Minutely = append(p.Minutely, MinutelyPoint{
			Time:          m.Dt,
			Precipitation: inches(m.Precipitation),
		})
	}

	for _, h := range r.Hourly {
		c := h.toCurrent()
		p.Hourly = append(p.Hourly, Hourly{
			Time:                c.Time,
			Temperature:         c.Temperature,
			FeelsLike:           c.FeelsLike,
			Pressure:            c.Pressure,
			Humidity:            c.Humidity,
			Clouds:              c.Clouds,
			UVIndex:             c.UVIndex,
			Visibility:          c.Visibility,
			WindSpeed:           c.WindSpeed,
			WindGust:            c.WindGust,
			WindDegrees:         c.WindDegrees,
			PrecipitationChance: h.Pop,
			Rain:                c.Rain,
			Snow:                c.Snow,
			Conditions:          c.Conditions,
		})
	}

	for _, d := range r.Daily {
		p.Daily = append(p.Daily, Daily{
			Time:    d.Dt,
			Sunrise: d.Sunrise,
			Sunset:  d.Sunset,
			Summary: d.Summary,
			Temperature: DailyTemperatures{
				Day:     d.Temp.Day,
				Min:     d.Temp.Min,
				Max:     d.Temp.Max,
				Night:   d.Temp.Night,
				Evening: d.Temp.Eve,
				Morning: d.Temp.Morn,
			},
			Pressure:            d.Pressure,
			Humidity:            d.Humidity,
			Clouds:              d.Clouds,
			UVIndex:             d.UVI,
			WindSpeed:           d.WindSpeed,
			WindGust:            d.WindGust,
			WindDegrees:         d.WindDeg,
			MoonPhase:           d.MoonPhase,
			PrecipitationChance: d.Pop,
			Rain:                inches(d.Rain),
			Snow:                inches(d.Snow),
			Conditions:          conditions(d.Weather),
		})
	}

	for _, a := range r.Alerts {
		p.Alerts = append(p.Alerts, Alert{
			Sender:      a.SenderName,
			Event:       a.Event,
			Start:       a.Start,
			End:         a.End,
			Description: a.Description,
			Tags:        a.Tags,
		})
	}

	return p
}

func (c owmCurrent) toCurrent() Current {
	return Current{
		Time:        c.Dt,
		Sunrise:     c.Sunrise,
		Sunset:      c.Sunset,
		Temperature: c.Temp,
		FeelsLike:   c.FeelsLike,
		DewPoint:    c.DewPoint,
		Pressure:    c.Pressure,
		Humidity:    c.Humidity,
		Clouds:      c.Clouds,
		UVIndex:     c.UVI,
		Visibility:  c.Visibility / metersPerMile,
		WindSpeed:   c.WindSpeed,
		WindGust:    c.WindGust,
		WindDegrees: c.WindDeg,
		Rain:        inches(c.Rain.OneHour),
		Snow:        inches(c.Snow.OneHour),
		Conditions:  conditions(c.Weather),
	}
}

func conditions(items []owmCondition) []icons.Condition {
	out := make([]icons.Condition, 0, len(items))
	for _, w := range items {
		out = append(out, icons.Condition{
			Code:        w.ID,
			Category:    w.Main,
			Description: w.Description,
			Icon:        w.Icon,
		})
	}
	return out
}

func inches(mm float64) float64 {
	return mm / millimetersPerInch
}
