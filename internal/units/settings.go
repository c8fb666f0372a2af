package units

import (
	"fmt"
	"sync"
)

// SelectedUnits is the user's display unit choice, one per quantity kind.
type SelectedUnits struct {
	Temperature   TemperatureUnit   `json:"temperature"`
	Speed         SpeedUnit         `json:"speed"`
	Precipitation PrecipitationUnit `json:"precipitation"`
	Distance      DistanceUnit      `json:"distance"`
}

// DefaultSelectedUnits returns the base units of every family.
func DefaultSelectedUnits() SelectedUnits {
	return SelectedUnits{
		Temperature:   Fahrenheit,
		Speed:         MilesPerHour,
		Precipitation: Inches,
		Distance:      Miles,
	}
}

// Validate checks that every selection belongs to its family.
func (s SelectedUnits) Validate() error {
	switch {
	case !TemperatureFamily.Supports(s.Temperature):
		return fmt.Errorf("%w: temperature %q", ErrUnsupportedUnit, s.Temperature)
	case !SpeedFamily.Supports(s.Speed):
		return fmt.Errorf("%w: speed %q", ErrUnsupportedUnit, s.Speed)
	case !PrecipitationFamily.Supports(s.Precipitation):
		return fmt.Errorf("%w: precipitation %q", ErrUnsupportedUnit, s.Precipitation)
	case !DistanceFamily.Supports(s.Distance):
		return fmt.Errorf("%w: distance %q", ErrUnsupportedUnit, s.Distance)
	}
	return nil
}

// Settings is the process-wide unit selection. It is created once by the
// application root and passed by reference; readers get a copy.
type Settings struct {
	mu      sync.RWMutex
	current SelectedUnits
}

// NewSettings creates Settings holding initial. Invalid selections fall back to
// the defaults.
func NewSettings(initial SelectedUnits) *Settings {
	if initial.Validate() != nil {
		initial = DefaultSelectedUnits()
	}
	return &Settings{current: initial}
}

// Get returns a snapshot of the current selection.
func (s *Settings) Get() SelectedUnits {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Set replaces the whole selection.
func (s *Settings) Set(u SelectedUnits) error {
	if err := u.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.current = u
	s.mu.Unlock()
	return nil
}

// Update applies fn to a copy of the selection and stores the result if it is valid.
func (s *Settings) Update(fn func(*SelectedUnits)) (SelectedUnits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current
	fn(&next)
	if err := next.Validate(); err != nil {
		return s.current, err
	}
	s.current = next
	return next, nil
}
