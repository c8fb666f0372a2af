package icons

import "math"

// SynodicMonth is the mean length of a lunar cycle in days.
const SynodicMonth = 29.530588853

const (
	IconMoonNew            IconKey = "moonphase.new.moon.inverse"
	IconMoonWaxingCrescent IconKey = "moonphase.waxing.crescent.inverse"
	IconMoonFirstQuarter   IconKey = "moonphase.first.quarter.inverse"
	IconMoonWaxingGibbous  IconKey = "moonphase.waxing.gibbous.inverse"
	IconMoonFull           IconKey = "moonphase.full.moon.inverse"
	IconMoonWaningGibbous  IconKey = "moonphase.waning.gibbous.inverse"
	IconMoonLastQuarter    IconKey = "moonphase.last.quarter.inverse"
	IconMoonWaningCrescent IconKey = "moonphase.waning.crescent.inverse"
)

// MoonPhase describes the moon on one day.
type MoonPhase struct {
	Name string  `json:"name"`
	Icon IconKey `json:"icon"`
	// DaysToFullMoon and DaysToNewMoon are 0 on the day itself.
	DaysToFullMoon int `json:"daysToFullMoon"`
	DaysToNewMoon  int `json:"daysToNewMoon"`
}

type majorPhase struct {
	age  float64
	name string
	icon IconKey
}

var majorPhases = [...]majorPhase{
	{0, "New Moon", IconMoonNew},
	{SynodicMonth / 4, "First Quarter", IconMoonFirstQuarter},
	{SynodicMonth / 2, "Full Moon", IconMoonFull},
	{SynodicMonth * 3 / 4, "Last Quarter", IconMoonLastQuarter},
}

// Moon resolves a lunation fraction as reported by the provider: 0 and 1 are
// new moon, 0.25 first quarter, 0.5 full moon and 0.75 last quarter. A major
// phase covers the half day on either side of its exact moment. ok is false
// for values outside [0, 1].
func Moon(fraction float64) (MoonPhase, bool) {
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		return MoonPhase{}, false
	}
	age := math.Mod(fraction, 1) * SynodicMonth

	m := MoonPhase{
		DaysToFullMoon: daysUntil(age, SynodicMonth/2),
		DaysToNewMoon:  daysUntil(age, 0),
	}
	for _, p := range majorPhases {
		if daysUntil(age, p.age) == 0 {
			m.Name, m.Icon = p.name, p.icon
			return m, true
		}
	}

	switch {
	case age < SynodicMonth/4:
		m.Name, m.Icon = "Waxing Crescent", IconMoonWaxingCrescent
	case age < SynodicMonth/2:
		m.Name, m.Icon = "Waxing Gibbous", IconMoonWaxingGibbous
	case age < SynodicMonth*3/4:
		m.Name, m.Icon = "Waning Gibbous", IconMoonWaningGibbous
	default:
		m.Name, m.Icon = "Waning Crescent", IconMoonWaningCrescent
	}
	return m, true
}

// daysUntil counts whole days from age until the cycle next reaches target.
func daysUntil(age, target float64) int {
	d := math.Mod(target-age+SynodicMonth, SynodicMonth)
	if d < 0.5 || SynodicMonth-d < 0.5 {
		return 0
	}
	return int(math.Round(d))
}
