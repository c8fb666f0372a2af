package view

import (
	"fmt"
	"math"
	"time"

	"github.com/i474232898/weather-location-tracker/internal/forecast"
	"github.com/i474232898/weather-location-tracker/internal/icons"
	"github.com/i474232898/weather-location-tracker/internal/localtime"
	"github.com/i474232898/weather-location-tracker/internal/tracking"
	"github.com/i474232898/weather-location-tracker/internal/units"
)

// Placeholder is shown for values that are not known yet.
const Placeholder = "--"

const (
	maxHours = 24
	maxDays  = 8

	// OpenWeather sends 61 minutely points starting at the current minute.
	maxMinutes = 60
)

// LocationView is the read-only projection of one tracked location with its
// latest forecast, formatted for the selected units.
type LocationView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AdminArea string `json:"adminArea,omitempty"`
	Country   string `json:"country,omitempty"`
	IsPrimary bool   `json:"isPrimary"`
	ListIndex int    `json:"listIndex"`

	TimeZone  string `json:"timeZone,omitempty"`
	LocalTime string `json:"localTime"`

	Condition string        `json:"condition"`
	Icon      icons.IconKey `json:"icon"`

	Temperature string `json:"temperature"`
	High        string `json:"high"`
	Low         string `json:"low"`
	FeelsLike   string `json:"feelsLike"`

	Wind          string `json:"wind"`
	WindGust      string `json:"windGust"`
	WindDirection string `json:"windDirection"`

	PrecipitationChance string `json:"precipitationChance"`
	Precipitation       string `json:"precipitation"`
	Humidity            string `json:"humidity"`
	Pressure            string `json:"pressure"`
	Visibility          string `json:"visibility"`
	UVIndex             string `json:"uvIndex"`
	Sunrise             string `json:"sunrise"`
	Sunset              string `json:"sunset"`

	// Moon is today's moon phase; NextHour is set when the provider sends
	// minute-by-minute precipitation.
	Moon     *icons.MoonPhase `json:"moon,omitempty"`
	NextHour *NextHourView    `json:"nextHour,omitempty"`

	Hourly []HourView  `json:"hourly"`
	Daily  []DayView   `json:"daily"`
	Alerts []AlertView `json:"alerts"`

	Stale         bool       `json:"stale"`
	LastError     string     `json:"lastError,omitempty"`
	LastFetchedAt *time.Time `json:"lastFetchedAt,omitempty"`
}

type HourView struct {
	Time                string        `json:"time"`
	Temperature         string        `json:"temperature"`
	Icon                icons.IconKey `json:"icon"`
	PrecipitationChance string        `json:"precipitationChance"`
}

type DayView struct {
	Day                 string           `json:"day"`
	High                string           `json:"high"`
	Low                 string           `json:"low"`
	Icon                icons.IconKey    `json:"icon"`
	PrecipitationChance string           `json:"precipitationChance"`
	Precipitation       string           `json:"precipitation"`
	Summary             string           `json:"summary,omitempty"`
	Moon                *icons.MoonPhase `json:"moon,omitempty"`
}

// NextHourView summarizes precipitation over the coming hour.
type NextHourView struct {
	Summary string       `json:"summary"`
	Minutes []MinuteView `json:"minutes"`
}

// MinuteView is the precipitation rate expected in one minute, per hour.
type MinuteView struct {
	Time          string `json:"time"`
	Precipitation string `json:"precipitation"`
}

type AlertView struct {
	Event       string `json:"event"`
	Sender      string `json:"sender"`
	Start       string `json:"start"`
	End         string `json:"end"`
	Description string `json:"description"`
	Active      bool   `json:"active"`
}

// Build projects loc and its cached forecast. entry may be nil when the
// location was never refreshed.
func Build(loc tracking.Location, entry *forecast.Entry, selected units.SelectedUnits, f *localtime.Formatter, now time.Time) LocationView {
	v := LocationView{
		ID:        loc.ID,
		Name:      loc.DisplayName,
		AdminArea: loc.AdminArea,
		Country:   loc.Country,
		IsPrimary: loc.IsPrimary,
		ListIndex: loc.ListIndex,
		TimeZone:  loc.TimeZoneID,

		Condition:           Placeholder,
		Icon:                icons.IconUnknown,
		Temperature:         Placeholder,
		High:                Placeholder,
		Low:                 Placeholder,
		FeelsLike:           Placeholder,
		Wind:                Placeholder,
		WindGust:            Placeholder,
		WindDirection:       Placeholder,
		PrecipitationChance: Placeholder,
		Precipitation:       Placeholder,
		Humidity:            Placeholder,
		Pressure:            Placeholder,
		Visibility:          Placeholder,
		UVIndex:             Placeholder,
		Sunrise:             Placeholder,
		Sunset:              Placeholder,

		Hourly: []HourView{},
		Daily:  []DayView{},
		Alerts: []AlertView{},
	}

	if entry != nil {
		v.Stale = entry.Stale
		v.LastError = entry.LastError
		if v.TimeZone == "" {
			v.TimeZone = entry.Payload.TimeZone
		}
	}
	if !loc.LastFetchedAt.IsZero() {
		at := loc.LastFetchedAt
		v.LastFetchedAt = &at
	}

	v.LocalTime = f.FormatWallClock(now.Unix(), v.TimeZone, localtime.DefaultLayout)

	if entry == nil || !entry.HasPayload() {
		return v
	}

	p := entry.Payload
	cur := p.Current

	if c, ok := cur.Condition(); ok {
		v.Condition = c.Title()
		v.Icon = c.Key()
	}

	v.Temperature = format(cur.Temperature, units.TemperatureFamily, selected.Temperature)
	v.FeelsLike = format(cur.FeelsLike, units.TemperatureFamily, selected.Temperature)
	v.Wind = format(cur.WindSpeed, units.SpeedFamily, selected.Speed)
	if cur.WindGust > 0 {
		v.WindGust = format(cur.WindGust, units.SpeedFamily, selected.Speed)
	}
	v.WindDirection = Compass(cur.WindDegrees)
	v.Humidity = fmt.Sprintf("%d%%", cur.Humidity)
	v.Pressure = fmt.Sprintf("%d hPa", cur.Pressure)
	v.Visibility = format(cur.Visibility, units.DistanceFamily, selected.Distance)
	v.UVIndex = fmt.Sprintf("%.0f", cur.UVIndex)
	if cur.Sunrise != 0 {
		v.Sunrise = f.FormatWallClock(cur.Sunrise, v.TimeZone, localtime.DefaultLayout)
	}
	if cur.Sunset != 0 {
		v.Sunset = f.FormatWallClock(cur.Sunset, v.TimeZone, localtime.DefaultLayout)
	}

	if len(p.Daily) > 0 {
		today := p.Daily[0]
		v.High = format(today.Temperature.Max, units.TemperatureFamily, selected.Temperature)
		v.Low = format(today.Temperature.Min, units.TemperatureFamily, selected.Temperature)
		v.Precipitation = format(today.Rain+today.Snow, units.PrecipitationFamily, selected.Precipitation)
		v.PrecipitationChance = percent(today.PrecipitationChance)
		if m, ok := icons.Moon(today.MoonPhase); ok {
			v.Moon = &m
		}
	}
	if len(p.Hourly) > 0 {
		v.PrecipitationChance = percent(p.Hourly[0].PrecipitationChance)
	}

	for i, h := range p.Hourly {
		if i == maxHours {
			break
		}
		hv := HourView{
			Time:                f.FormatWallClock(h.Time, v.TimeZone, "3 PM"),
			Temperature:         format(h.Temperature, units.TemperatureFamily, selected.Temperature),
			Icon:                icons.IconUnknown,
			PrecipitationChance: percent(h.PrecipitationChance),
		}
		if i == 0 {
			hv.Time = "Now"
		}
		if c, ok := h.Condition(); ok {
			hv.Icon = c.Key()
		}
		v.Hourly = append(v.Hourly, hv)
	}

	for i, d := range p.Daily {
		if i == maxDays {
			break
		}
		dv := DayView{
			Day:                 f.FormatWallClock(d.Time, v.TimeZone, "Mon"),
			High:                format(d.Temperature.Max, units.TemperatureFamily, selected.Temperature),
			Low:                 format(d.Temperature.Min, units.TemperatureFamily, selected.Temperature),
			Icon:                icons.IconUnknown,
			PrecipitationChance: percent(d.PrecipitationChance),
			Precipitation:       format(d.Rain+d.Snow, units.PrecipitationFamily, selected.Precipitation),
			Summary:             d.Summary,
		}
		if i == 0 {
			dv.Day = "Today"
		}
		if c, ok := d.Condition(); ok {
			dv.Icon = c.Key()
		}
		if m, ok := icons.Moon(d.MoonPhase); ok {
			dv.Moon = &m
		}
		v.Daily = append(v.Daily, dv)
	}

	v.NextHour = nextHour(p.Minutely, selected.Precipitation, f, v.TimeZone)

	for _, a := range p.Alerts {
		v.Alerts = append(v.Alerts, AlertView{
			Event:       a.Event,
			Sender:      a.Sender,
			Start:       f.FormatWallClock(a.Start, v.TimeZone, "Mon 3:04 PM"),
			End:         f.FormatWallClock(a.End, v.TimeZone, "Mon 3:04 PM"),
			Description: a.Description,
			Active:      a.Active(now),
		})
	}

	return v
}

func nextHour(points []forecast.MinutelyPoint, u units.PrecipitationUnit, f *localtime.Formatter, zone string) *NextHourView {
	if len(points) == 0 {
		return nil
	}
	if len(points) > maxMinutes {
		points = points[:maxMinutes]
	}

	nh := &NextHourView{Minutes: make([]MinuteView, 0, len(points))}
	for _, pt := range points {
		nh.Minutes = append(nh.Minutes, MinuteView{
			Time:          f.FormatWallClock(pt.Time, zone, localtime.DefaultLayout),
			Precipitation: format(pt.Precipitation, units.PrecipitationFamily, u),
		})
	}

	wet := points[0].Precipitation > 0
	nh.Summary = "No precipitation expected in the next hour"
	if wet {
		nh.Summary = "Precipitation continuing for the next hour"
	}
	for _, pt := range points[1:] {
		if (pt.Precipitation > 0) == wet {
			continue
		}
		minutes := (pt.Time - points[0].Time) / 60
		if wet {
			nh.Summary = fmt.Sprintf("Precipitation ending in %d min", minutes)
		} else {
			nh.Summary = fmt.Sprintf("Precipitation starting in %d min", minutes)
		}
		break
	}
	return nh
}

var compassPoints = [...]string{"N", "NE", "E", "SE", "S", "SW", "W", "NW"}

// Compass names the 45° sector a bearing in degrees falls into.
func Compass(degrees int) string {
	d := math.Mod(float64(degrees), 360)
	if d < 0 {
		d += 360
	}
	return compassPoints[int((d+22.5)/45)%len(compassPoints)]
}

func format[U units.Unit](v float64, family *units.Family[U], u U) string {
	m, err := units.New(v, family)
	if err != nil {
		return Placeholder
	}
	return m.Format(u)
}

func percent(p float64) string {
	if math.IsNaN(p) {
		return Placeholder
	}
	return fmt.Sprintf("%.0f%%", math.Round(p*100))
}
