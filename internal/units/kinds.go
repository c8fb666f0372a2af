package units

import (
	"fmt"
	"strings"
)

// TemperatureUnit is a display unit for temperatures. Base unit: Fahrenheit.
type TemperatureUnit string

const (
	Fahrenheit TemperatureUnit = "fahrenheit"
	Celsius    TemperatureUnit = "celsius"
	Kelvin     TemperatureUnit = "kelvin"
)

// SpeedUnit is a display unit for wind speeds. Base unit: miles per hour.
type SpeedUnit string

const (
	MilesPerHour      SpeedUnit = "mph"
	KilometersPerHour SpeedUnit = "kph"
	MetersPerSecond   SpeedUnit = "mps"
	Knots             SpeedUnit = "knots"
)

// PrecipitationUnit is a display unit for precipitation. Base unit: inches.
type PrecipitationUnit string

const (
	Inches      PrecipitationUnit = "inches"
	Millimeters PrecipitationUnit = "millimeters"
	Centimeters PrecipitationUnit = "centimeters"
)

// DistanceUnit is a display unit for distances. Base unit: miles.
type DistanceUnit string

const (
	Miles      DistanceUnit = "miles"
	Kilometers DistanceUnit = "kilometers"
)

var suffixes = map[string]string{
	string(Fahrenheit):        "°F",
	string(Celsius):           "°C",
	string(Kelvin):            "K",
	string(MilesPerHour):      "mph",
	string(KilometersPerHour): "km/h",
	string(MetersPerSecond):   "m/s",
	string(Knots):             "kn",
	string(Inches):            "in",
	string(Millimeters):       "mm",
	string(Centimeters):       "cm",
	string(Miles):             "mi",
	string(Kilometers):        "km",
}

func (u TemperatureUnit) Suffix() string   { return suffixes[string(u)] }
func (u SpeedUnit) Suffix() string         { return suffixes[string(u)] }
func (u PrecipitationUnit) Suffix() string { return suffixes[string(u)] }
func (u DistanceUnit) Suffix() string      { return suffixes[string(u)] }

var (
	TemperatureFamily = newFamily("temperature", Fahrenheit, 0, map[TemperatureUnit]conversion{
		Celsius: {
			fromBase: func(f float64) float64 { return (f - 32) * 5 / 9 },
			toBase:   func(c float64) float64 { return c*9/5 + 32 },
		},
		Kelvin: {
			fromBase: func(f float64) float64 { return (f-32)*5/9 + 273.15 },
			toBase:   func(k float64) float64 { return (k-273.15)*9/5 + 32 },
		},
	})

	SpeedFamily = newFamily("speed", MilesPerHour, 0, map[SpeedUnit]conversion{
		KilometersPerHour: multiply(1.609),
		MetersPerSecond:   divide(2.237),
		Knots:             divide(1.151),
	})

	PrecipitationFamily = newFamily("precipitation", Inches, 1, map[PrecipitationUnit]conversion{
		Millimeters: multiply(25.4),
		Centimeters: multiply(2.54),
	})

	DistanceFamily = newFamily("distance", Miles, 0, map[DistanceUnit]conversion{
		Kilometers: multiply(1.609),
	})
)

type (
	Temperature   = Measurement[TemperatureUnit]
	Speed         = Measurement[SpeedUnit]
	Precipitation = Measurement[PrecipitationUnit]
	Distance      = Measurement[DistanceUnit]
)

// NewTemperature builds a temperature from degrees Fahrenheit.
func NewTemperature(fahrenheit float64) (Temperature, error) {
	return New(fahrenheit, TemperatureFamily)
}

// NewSpeed builds a speed from miles per hour.
func NewSpeed(mph float64) (Speed, error) {
	return New(mph, SpeedFamily)
}

// NewPrecipitation builds a precipitation amount from inches.
func NewPrecipitation(inches float64) (Precipitation, error) {
	return New(inches, PrecipitationFamily)
}

// NewDistance builds a distance from miles.
func NewDistance(miles float64) (Distance, error) {
	return New(miles, DistanceFamily)
}

// aliases accepted by the parsers in addition to the canonical names and suffixes.
var aliases = map[string]string{
	"f": string(Fahrenheit), "c": string(Celsius), "k": string(Kelvin),
	"km/h": string(KilometersPerHour), "kmh": string(KilometersPerHour), "kp/h": string(KilometersPerHour),
	"m/s": string(MetersPerSecond), "kn": string(Knots), "kt": string(Knots),
	"in": string(Inches), "mm": string(Millimeters), "cm": string(Centimeters),
	"mi": string(Miles), "km": string(Kilometers),
}

func parseUnit[U Unit](family *Family[U], s string) (U, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if a, ok := aliases[key]; ok {
		key = a
	}
	for u := range family.table {
		if fmt.Sprint(u) == key || strings.EqualFold(u.Suffix(), strings.TrimSpace(s)) {
			return u, nil
		}
	}
	var zero U
	return zero, fmt.Errorf("%w: %q is not a %s unit", ErrUnsupportedUnit, s, family.name)
}

// ParseTemperatureUnit accepts a canonical name ("celsius"), a suffix ("°C") or a
// short alias ("C").
func ParseTemperatureUnit(s string) (TemperatureUnit, error) {
	return parseUnit(TemperatureFamily, s)
}

func ParseSpeedUnit(s string) (SpeedUnit, error) { return parseUnit(SpeedFamily, s) }

func ParsePrecipitationUnit(s string) (PrecipitationUnit, error) {
	return parseUnit(PrecipitationFamily, s)
}

func ParseDistanceUnit(s string) (DistanceUnit, error) { return parseUnit(DistanceFamily, s) }

func (u TemperatureUnit) MarshalText() ([]byte, error) { return []byte(u), nil }

func (u *TemperatureUnit) UnmarshalText(b []byte) error {
	v, err := ParseTemperatureUnit(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func (u SpeedUnit) MarshalText() ([]byte, error) { return []byte(u), nil }

func (u *SpeedUnit) UnmarshalText(b []byte) error {
	v, err := ParseSpeedUnit(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func (u PrecipitationUnit) MarshalText() ([]byte, error) { return []byte(u), nil }

func (u *PrecipitationUnit) UnmarshalText(b []byte) error {
	v, err := ParsePrecipitationUnit(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}

func (u DistanceUnit) MarshalText() ([]byte, error) { return []byte(u), nil }

func (u *DistanceUnit) UnmarshalText(b []byte) error {
	v, err := ParseDistanceUnit(string(b))
	if err != nil {
		return err
	}
	*u = v
	return nil
}
