package timezone

import (
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

var currentLocation *time.Location

// Initialize sets the process-wide timezone used for attendance dates. The
// configured name wins; an empty name falls back to the TZ environment
// variable and finally to UTC. The attendance ledger keys its daily files by
// calendar date in this zone, so it must be set before the first write.
func Initialize(name string) {
	if name == "" {
		name = os.Getenv("TZ")
	}
	if name == "" {
		name = "UTC"
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.WithError(err).Warnf("Failed to load timezone %q, falling back to UTC", name)
		currentLocation = time.UTC
		return
	}

	log.Infof("Timezone initialized to %s", name)
	currentLocation = loc
}

// Now returns the current time in the configured zone.
func Now() time.Time {
	return time.Now().In(Location())
}

// Location returns the configured location, initializing to the environment
// default on first use.
func Location() *time.Location {
	if currentLocation == nil {
		Initialize("")
	}
	return currentLocation
}

// Format renders t in the configured zone with the given layout.
func Format(t time.Time, layout string) string {
	return t.In(Location()).Format(layout)
}
