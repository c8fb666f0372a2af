package localtime

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"code.cloudfoundry.org/clock"
)

// DefaultLayout renders hour and minute with an AM/PM marker ("4:07 PM").
const DefaultLayout = "3:04 PM"

// ZoneInfo describes a time zone at a particular instant.
type ZoneInfo struct {
	// Name is the IANA identifier, e.g. "America/New_York".
	Name string `json:"name"`
	// Abbreviation is the zone abbreviation in effect, e.g. "EDT".
	Abbreviation string `json:"abbreviation"`
	// Offset is the UTC offset formatted as "+09:00" or "-05:00".
	Offset        string `json:"offset"`
	OffsetSeconds int    `json:"offsetSeconds"`
	IsDST         bool   `json:"isDst"`
}

// Formatter renders timestamps in a location's own time zone, independent of
// the device zone. Unknown zone identifiers are logged and degrade gracefully.
type Formatter struct {
	device *time.Location
	clock  clock.Clock

	mu    sync.RWMutex
	zones map[string]*time.Location
}

// NewFormatter creates a Formatter for the given device zone. A nil device
// zone means time.Local.
func NewFormatter(device *time.Location, clk clock.Clock) *Formatter {
	if device == nil {
		device = time.Local
	}
	if clk == nil {
		clk = clock.NewClock()
	}
	return &Formatter{
		device: device,
		clock:  clk,
		zones:  make(map[string]*time.Location),
	}
}

// Device returns the device zone.
func (f *Formatter) Device() *time.Location {
	return f.device
}

// Zone resolves an IANA identifier, caching successful lookups.
func (f *Formatter) Zone(id string) (*time.Location, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("empty time zone identifier")
	}

	f.mu.RLock()
	loc, ok := f.zones[id]
	f.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.zones[id] = loc
	f.mu.Unlock()
	return loc, nil
}

// FormatWallClock renders epochSeconds with layout using the named zone's
// offset at that instant. An unknown zone falls back to the device zone.
func (f *Formatter) FormatWallClock(epochSeconds int64, zoneID, layout string) string {
	if layout == "" {
		layout = DefaultLayout
	}

	loc, err := f.Zone(zoneID)
	if err != nil {
		log.Printf("localtime: invalid time zone %q, using device zone: %v", zoneID, err)
		loc = f.device
	}
	return time.Unix(epochSeconds, 0).In(loc).Format(layout)
}

// AdjustToZone shifts epochSeconds by the difference between the target zone's
// offset and the device zone's offset, both evaluated at that instant, so that
// device-local formatting of the result shows the location's wall clock.
// An unknown zone returns the input unchanged.
func (f *Formatter) AdjustToZone(epochSeconds int64, zoneID string) int64 {
	loc, err := f.Zone(zoneID)
	if err != nil {
		log.Printf("localtime: invalid time zone %q, timestamp left unadjusted: %v", zoneID, err)
		return epochSeconds
	}

	instant := time.Unix(epochSeconds, 0)
	_, target := instant.In(loc).Zone()
	_, device := instant.In(f.device).Zone()

	return epochSeconds + int64(target-device)
}

// Now renders the current wall clock of the named zone.
func (f *Formatter) Now(zoneID, layout string) string {
	return f.FormatWallClock(f.clock.Now().Unix(), zoneID, layout)
}

// ZoneInfo describes the named zone at the given instant.
func (f *Formatter) ZoneInfo(zoneID string, at time.Time) (ZoneInfo, error) {
	loc, err := f.Zone(zoneID)
	if err != nil {
		return ZoneInfo{}, err
	}

	local := at.In(loc)
	abbr, offset := local.Zone()
	return ZoneInfo{
		Name:          loc.String(),
		Abbreviation:  abbr,
		Offset:        local.Format("-07:00"),
		OffsetSeconds: offset,
		IsDST:         local.IsDST(),
	}, nil
}
