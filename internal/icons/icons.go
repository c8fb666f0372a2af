package icons

import "strings"

// IconKey identifies a presentation icon (SF Symbol style names).
type IconKey string

const (
	IconSun           IconKey = "sun.max.fill"
	IconMoonStars     IconKey = "moon.stars.fill"
	IconCloudBolt     IconKey = "cloud.bolt.fill"
	IconCloudBoltRain IconKey = "cloud.bolt.rain.fill"
	IconCloudSunRain  IconKey = "cloud.sun.rain.fill"
	IconCloudMoonRain IconKey = "cloud.moon.rain.fill"
	IconCloudDrizzle  IconKey = "cloud.drizzle.fill"
	IconCloudRain     IconKey = "cloud.rain.fill"
	IconCloudHeavy    IconKey = "cloud.heavyrain.fill"
	IconCloudSleet    IconKey = "cloud.sleet.fill"
	IconSunSnow       IconKey = "sun.snow.fill"
	IconCloudSnow     IconKey = "cloud.snow.fill"
	IconSmoke         IconKey = "smoke.fill"
	IconSunHaze       IconKey = "sun.haze.fill"
	IconMoonHaze      IconKey = "moon.haze.fill"
	IconSunDust       IconKey = "sun.dust.fill"
	IconMoonDust      IconKey = "moon.dust.fill"
	IconCloudFog      IconKey = "cloud.fog.fill"
	IconWind          IconKey = "wind"
	IconTornado       IconKey = "tornado"
	IconCloudSun      IconKey = "cloud.sun.fill"
	IconCloudMoon     IconKey = "cloud.moon.fill"
	IconCloud         IconKey = "cloud.fill"
	IconUnknown       IconKey = "questionmark.circle"
)

// ClearSkyCode bypasses the category tables.
const ClearSkyCode = 800

// Category names as reported by the forecast provider.
const (
	CategoryThunderstorm = "Thunderstorm"
	CategoryDrizzle      = "Drizzle"
	CategoryRain         = "Rain"
	CategorySnow         = "Snow"
	CategoryAtmosphere   = "Atmosphere"
	CategoryClouds       = "Clouds"
	CategoryClear        = "Clear"
)

// variants holds the day and night icon for one condition code.
type variants struct {
	day, night IconKey
}

func both(k IconKey) variants { return variants{day: k, night: k} }

type table struct {
	min, max int
	icons    map[int]variants
}

var thunderstorm = table{200, 232, map[int]variants{
	200: both(IconCloudBoltRain),
	201: both(IconCloudBoltRain),
	202: both(IconCloudBoltRain),
	210: both(IconCloudBoltRain),
	211: both(IconCloudBolt),
	212: both(IconCloudBolt),
	221: both(IconCloudBolt),
	230: both(IconCloudBoltRain),
	231: both(IconCloudBoltRain),
	232: both(IconCloudBoltRain),
}}

var drizzle = table{300, 321, map[int]variants{
	300: {IconCloudSunRain, IconCloudMoonRain},
	301: both(IconCloudDrizzle),
	302: both(IconCloudDrizzle),
	310: {IconCloudSunRain, IconCloudMoonRain},
	311: both(IconCloudDrizzle),
	312: both(IconCloudDrizzle),
	313: both(IconCloudDrizzle),
	314: both(IconCloudDrizzle),
	321: both(IconCloudDrizzle),
}}

var rain = table{500, 531, map[int]variants{
	500: {IconCloudSunRain, IconCloudMoonRain},
	501: both(IconCloudRain),
	502: both(IconCloudHeavy),
	503: both(IconCloudHeavy),
	504: both(IconCloudHeavy),
	511: both(IconCloudSleet),
	520: {IconCloudSunRain, IconCloudMoonRain},
	521: both(IconCloudRain),
	522: both(IconCloudHeavy),
	531: both(IconCloudHeavy),
}}

var snow = table{600, 622, map[int]variants{
	600: {IconSunSnow, IconCloudSnow},
	601: both(IconCloudSnow),
	602: both(IconCloudSnow),
	611: both(IconCloudSleet),
	612: both(IconCloudSleet),
	613: both(IconCloudSleet),
	615: both(IconCloudSnow),
	616: both(IconCloudSnow),
	620: both(IconCloudSnow),
	621: both(IconCloudSnow),
	622: both(IconCloudSnow),
}}

var atmosphere = table{701, 781, map[int]variants{
	701: both(IconCloudFog),
	711: both(IconSmoke),
	721: {IconSunHaze, IconMoonHaze},
	731: {IconSunDust, IconMoonDust},
	741: both(IconCloudFog),
	751: {IconSunDust, IconMoonDust},
	761: {IconSunDust, IconMoonDust},
	762: both(IconSmoke),
	771: both(IconWind),
	781: both(IconTornado),
}}

var clouds = table{801, 804, map[int]variants{
	801: {IconCloudSun, IconCloudMoon},
	802: {IconCloudSun, IconCloudMoon},
	803: {IconCloudSun, IconCloudMoon},
	804: both(IconCloud),
}}

// clearSky only ever holds the 800 sentinel, which Resolve handles before lookup.
var clearSky = table{800, 800, map[int]variants{
	800: {IconSun, IconMoonStars},
}}

var tables = map[string]table{
	strings.ToLower(CategoryThunderstorm): thunderstorm,
	strings.ToLower(CategoryDrizzle):      drizzle,
	strings.ToLower(CategoryRain):         rain,
	strings.ToLower(CategorySnow):         snow,
	strings.ToLower(CategoryAtmosphere):   atmosphere,
	strings.ToLower(CategoryClouds):       clouds,
	strings.ToLower(CategoryClear):        clearSky,
}

// atmosphereAliases are the per-phenomenon "main" values some payloads report
// for 7xx codes instead of the group name.
var atmosphereAliases = map[string]struct{}{
	"mist": {}, "smoke": {}, "haze": {}, "dust": {}, "fog": {},
	"sand": {}, "ash": {}, "squall": {}, "tornado": {},
}

// Resolve maps a condition code, its category and the day/night state to an icon.
// It is total: unknown combinations and codes outside every range yield IconUnknown.
func Resolve(code int, category string, isDaytime bool) IconKey {
	if code == ClearSkyCode {
		if isDaytime {
			return IconSun
		}
		return IconMoonStars
	}

	t, ok := tableFor(code, category)
	if !ok || code < t.min || code > t.max {
		return IconUnknown
	}

	v, ok := t.icons[code]
	if !ok {
		return IconUnknown
	}
	if isDaytime {
		return v.day
	}
	return v.night
}

func tableFor(code int, category string) (table, bool) {
	key := strings.ToLower(strings.TrimSpace(category))
	if key == "" {
		return tableForCode(code)
	}
	if _, ok := atmosphereAliases[key]; ok {
		key = strings.ToLower(CategoryAtmosphere)
	}
	t, ok := tables[key]
	return t, ok
}

func tableForCode(code int) (table, bool) {
	for _, t := range tables {
		if code >= t.min && code <= t.max {
			return t, true
		}
	}
	return table{}, false
}

// CategoryForCode returns the category whose range contains code, or "" when
// no range does.
func CategoryForCode(code int) string {
	for _, name := range []string{
		CategoryThunderstorm, CategoryDrizzle, CategoryRain, CategorySnow,
		CategoryAtmosphere, CategoryClear, CategoryClouds,
	} {
		t := tables[strings.ToLower(name)]
		if code >= t.min && code <= t.max {
			return name
		}
	}
	return ""
}
