package icons

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Condition is one weather condition as reported in a forecast item.
type Condition struct {
	Code        int    `json:"code"`
	Category    string `json:"category"`
	Description string `json:"description,omitempty"`
	// Icon is the provider icon id, e.g. "10d"; the trailing letter marks day or night.
	Icon string `json:"icon"`
}

// IsDaytime reports whether the icon id carries the day marker.
func (c Condition) IsDaytime() bool {
	return strings.HasSuffix(c.Icon, "d")
}

// Key resolves the condition to an icon.
func (c Condition) Key() IconKey {
	return Resolve(c.Code, c.Category, c.IsDaytime())
}

// Title returns the description with each word capitalized ("light rain" ->
// "Light Rain"), falling back to the category.
func (c Condition) Title() string {
	text := c.Description
	if text == "" {
		text = c.Category
	}
	// A Caser keeps state between calls, so each call gets its own.
	return cases.Title(language.Und, cases.NoLower).String(strings.Join(strings.Fields(text), " "))
}

var descriptions = map[IconKey]string{
	IconSun:           "Clear",
	IconMoonStars:     "Clear",
	IconCloudBolt:     "Thunderstorm",
	IconCloudBoltRain: "Thunderstorm with rain",
	IconCloudSunRain:  "Light rain",
	IconCloudMoonRain: "Light rain",
	IconCloudDrizzle:  "Drizzle",
	IconCloudRain:     "Rain",
	IconCloudHeavy:    "Heavy rain",
	IconCloudSleet:    "Sleet",
	IconSunSnow:       "Light snow",
	IconCloudSnow:     "Snow",
	IconSmoke:         "Smoke",
	IconSunHaze:       "Haze",
	IconMoonHaze:      "Haze",
	IconSunDust:       "Dust",
	IconMoonDust:      "Dust",
	IconCloudFog:      "Fog",
	IconWind:          "Squalls",
	IconTornado:       "Tornado",
	IconCloudSun:      "Partly cloudy",
	IconCloudMoon:     "Partly cloudy",
	IconCloud:         "Overcast",
	IconUnknown:       "Unknown",
}

// Description returns a short human-readable label for an icon.
func Description(k IconKey) string {
	if d, ok := descriptions[k]; ok {
		return d
	}
	return descriptions[IconUnknown]
}
