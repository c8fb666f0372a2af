package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrInvalidMeasurement is returned when a measurement is built from NaN or ±Inf.
	ErrInvalidMeasurement = errors.New("invalid measurement")
	// ErrUnsupportedUnit signals a unit that does not belong to the measurement's family.
	ErrUnsupportedUnit = errors.New("unsupported unit")
)

// Unit is implemented by every unit enumeration (temperature, speed, ...).
type Unit interface {
	comparable
	Suffix() string
}

// conversion maps a value between the family's base unit and one display unit.
type conversion struct {
	fromBase func(float64) float64
	toBase   func(float64) float64
}

func identity(v float64) float64 { return v }

func multiply(factor float64) conversion {
	return conversion{
		fromBase: func(v float64) float64 { return v * factor },
		toBase:   func(v float64) float64 { return v / factor },
	}
}

func divide(divisor float64) conversion {
	return conversion{
		fromBase: func(v float64) float64 { return v / divisor },
		toBase:   func(v float64) float64 { return v * divisor },
	}
}

// Family describes one quantity kind: its base unit, its conversion table and
// how many decimals Format keeps.
type Family[U Unit] struct {
	name     string
	base     U
	decimals int
	table    map[U]conversion
}

func newFamily[U Unit](name string, base U, decimals int, table map[U]conversion) *Family[U] {
	table[base] = conversion{fromBase: identity, toBase: identity}
	return &Family[U]{name: name, base: base, decimals: decimals, table: table}
}

// Name returns the quantity kind, e.g. "temperature".
func (f *Family[U]) Name() string { return f.name }

// Base returns the unit raw values are stored in.
func (f *Family[U]) Base() U { return f.base }

// Supports reports whether u has an entry in the conversion table.
func (f *Family[U]) Supports(u U) bool {
	_, ok := f.table[u]
	return ok
}

func (f *Family[U]) lookup(u U) conversion {
	c, ok := f.table[u]
	if !ok {
		panic(fmt.Errorf("%w: %v is not a %s unit", ErrUnsupportedUnit, u, f.name))
	}
	return c
}

// Measurement stores a quantity once, in its family's base unit.
type Measurement[U Unit] struct {
	raw    float64
	family *Family[U]
}

// New builds a measurement from a value already expressed in the family's base unit.
func New[U Unit](raw float64, family *Family[U]) (Measurement[U], error) {
	if family == nil {
		return Measurement[U]{}, fmt.Errorf("%w: no unit family", ErrInvalidMeasurement)
	}
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return Measurement[U]{}, fmt.Errorf("%w: %s value %v", ErrInvalidMeasurement, family.name, raw)
	}
	return Measurement[U]{raw: raw, family: family}, nil
}

// FromUnit builds a measurement from a value expressed in unit u.
func FromUnit[U Unit](value float64, u U, family *Family[U]) (Measurement[U], error) {
	if family == nil {
		return Measurement[U]{}, fmt.Errorf("%w: no unit family", ErrInvalidMeasurement)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Measurement[U]{}, fmt.Errorf("%w: %s value %v", ErrInvalidMeasurement, family.name, value)
	}
	return New(family.lookup(u).toBase(value), family)
}

// Raw returns the value in the base unit.
func (m Measurement[U]) Raw() float64 { return m.raw }

// Family returns the quantity kind this measurement belongs to.
func (m Measurement[U]) Family() *Family[U] { return m.family }

// IsZero reports whether m is the zero Measurement, which has no family.
func (m Measurement[U]) IsZero() bool { return m.family == nil }

// ValueIn converts the raw value into u. It panics with ErrUnsupportedUnit when u
// is not part of the family; unit enumerations are closed so this is a caller bug.
// The zero Measurement reads as 0 in every unit.
func (m Measurement[U]) ValueIn(u U) float64 {
	if m.family == nil {
		return 0
	}
	return m.family.lookup(u).fromBase(m.raw)
}

// Format renders the value in u, rounded to the family's precision, followed by
// the unit suffix: "22 °C", "0.4 in". The zero Measurement renders as "-- °C".
func (m Measurement[U]) Format(u U) string {
	if m.family == nil {
		return "-- " + u.Suffix()
	}
	v := round(m.ValueIn(u), m.family.decimals)
	return strconv.FormatFloat(v, 'f', m.family.decimals, 64) + " " + u.Suffix()
}

// String formats the measurement in its base unit.
func (m Measurement[U]) String() string {
	if m.family == nil {
		return "--"
	}
	return m.Format(m.family.base)
}

func round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	r := math.Round(v*p) / p
	if r == 0 {
		// avoid "-0"
		return 0
	}
	return r
}
