// internal/app/system/timezones/timezones.go
package timezones

import (
	"sync"
	"time"
)

// Loaded locations are cached: the close job resolves the same handful of
// zones every minute and time.LoadLocation reads the zone database.
var cache sync.Map // id -> *time.Location

// Location returns the IANA location for id, or an error if the zone
// database does not know it.
func Location(id string) (*time.Location, error) {
	if loc, ok := cache.Load(id); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(id)
	if err != nil {
		return nil, err
	}
	cache.Store(id, loc)
	return loc, nil
}

// LocationOrDefault resolves id, falling back to def when id is empty or
// unknown. An unset tenant timezone is a valid state, not an error.
func LocationOrDefault(id string, def *time.Location) *time.Location {
	if id == "" {
		return def
	}
	loc, err := Location(id)
	if err != nil {
		return def
	}
	return loc
}

// Valid reports whether id names a known IANA zone.
func Valid(id string) bool {
	_, err := Location(id)
	return err == nil
}
