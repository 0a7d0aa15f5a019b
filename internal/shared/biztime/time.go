// Package biztime keeps every stored and transported time in UTC. The
// display timezone only affects how times are printed to operators.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone is used when no display timezone is configured.
const DefaultTimezone = "UTC"

var (
	displayLocation *time.Location
	locationMu      sync.RWMutex
)

// Init sets the display timezone. An empty tz keeps UTC.
func Init(tz string) error {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}

	locationMu.Lock()
	displayLocation = loc
	locationMu.Unlock()
	return nil
}

// Location returns the display timezone, UTC until Init is called.
func Location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	if displayLocation == nil {
		return time.UTC
	}
	return displayLocation
}

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// FromUnix converts a unix timestamp in seconds to UTC.
func FromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// Format renders t in the display timezone.
func Format(t time.Time, layout string) string {
	return t.In(Location()).Format(layout)
}
