package forecast

import (
	"time"

	"github.com/i474232898/weather-location-tracker/internal/icons"
)

// Payload is the normalized forecast of one location. Quantities are kept in
// base units: temperatures in °F, speeds in mph, precipitation in inches and
// visibility in miles.
type Payload struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`

	// TimeZone is the IANA identifier of the location, e.g. "Europe/Paris".
	TimeZone string `json:"timezone"`
	// TimeZoneOffset is the UTC offset in seconds reported with the payload.
	TimeZoneOffset int `json:"timezoneOffset"`

	Current  Current         `json:"current"`
	Minutely []MinutelyPoint `json:"minutely,omitempty"`
	Hourly   []Hourly        `json:"hourly,omitempty"`
	Daily    []Daily         `json:"daily,omitempty"`
	Alerts   []Alert         `json:"alerts,omitempty"`
}

// Current holds the conditions at fetch time.
type Current struct {
	Time    int64 `json:"dt"`
	Sunrise int64 `json:"sunrise"`
	Sunset  int64 `json:"sunset"`

	Temperature float64 `json:"temp"`
	FeelsLike   float64 `json:"feelsLike"`
	DewPoint    float64 `json:"dewPoint"`

	Pressure   int     `json:"pressure"` // hPa
	Humidity   int     `json:"humidity"` // %
	Clouds     int     `json:"clouds"`   // %
	UVIndex    float64 `json:"uvi"`
	Visibility float64 `json:"visibility"`

	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	WindDegrees int     `json:"windDeg"`

	// Rain and Snow are the volumes of the last hour.
	Rain float64 `json:"rain"`
	Snow float64 `json:"snow"`

	Conditions []icons.Condition `json:"weather"`
}

// Condition returns the primary condition, if any.
func (c Current) Condition() (icons.Condition, bool) {
	return first(c.Conditions)
}

// MinutelyPoint is the precipitation volume expected in one minute.
type MinutelyPoint struct {
	Time          int64   `json:"dt"`
	Precipitation float64 `json:"precipitation"`
}

// Hourly is one entry of the per-hour series.
type Hourly struct {
	Time        int64   `json:"dt"`
	Temperature float64 `json:"temp"`
	FeelsLike   float64 `json:"feelsLike"`
	Pressure    int     `json:"pressure"`
	Humidity    int     `json:"humidity"`
	Clouds      int     `json:"clouds"`
	UVIndex     float64 `json:"uvi"`
	Visibility  float64 `json:"visibility"`
	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	WindDegrees int     `json:"windDeg"`
	// PrecipitationChance is the probability of precipitation in [0, 1].
	PrecipitationChance float64 `json:"pop"`
	Rain                float64 `json:"rain"`
	Snow                float64 `json:"snow"`

	Conditions []icons.Condition `json:"weather"`
}

func (h Hourly) Condition() (icons.Condition, bool) {
	return first(h.Conditions)
}

// DailyTemperatures are the temperatures at the parts of a day.
type DailyTemperatures struct {
	Day     float64 `json:"day"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Night   float64 `json:"night"`
	Evening float64 `json:"eve"`
	Morning float64 `json:"morn"`
}

// Daily is one entry of the per-day series.
type Daily struct {
	Time    int64  `json:"dt"`
	Sunrise int64  `json:"sunrise"`
	Sunset  int64  `json:"sunset"`
	Summary string `json:"summary,omitempty"`

	Temperature DailyTemperatures `json:"temp"`

	Pressure    int     `json:"pressure"`
	Humidity    int     `json:"humidity"`
	Clouds      int     `json:"clouds"`
	UVIndex     float64 `json:"uvi"`
	WindSpeed   float64 `json:"windSpeed"`
	WindGust    float64 `json:"windGust"`
	WindDegrees int     `json:"windDeg"`
	MoonPhase   float64 `json:"moonPhase"`

	PrecipitationChance float64 `json:"pop"`
	Rain                float64 `json:"rain"`
	Snow                float64 `json:"snow"`

	Conditions []icons.Condition `json:"weather"`
}

func (d Daily) Condition() (icons.Condition, bool) {
	return first(d.Conditions)
}

// Alert is a government weather alert.
type Alert struct {
	Sender      string   `json:"sender"`
	Event       string   `json:"event"`
	Start       int64    `json:"start"`
	End         int64    `json:"end"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// Active reports whether the alert covers t.
func (a Alert) Active(t time.Time) bool {
	unix := t.Unix()
	return unix >= a.Start && (a.End == 0 || unix < a.End)
}

func first(c []icons.Condition) (icons.Condition, bool) {
	if len(c) == 0 {
		return icons.Condition{}, false
	}
	return c[0], true
}
