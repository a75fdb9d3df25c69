package session

import "time"

// DefaultCooldown is the minimum interval before the same identity is
// processed again by the recognition pipeline.
const DefaultCooldown = 5 * time.Second

// Debouncer throttles per-identity processing. It gates the whole
// downstream pipeline (matcher bookkeeping, ledger lookups), not just
// ledger writes: a continuously visible face resets its cooldown on every
// accepted sighting even when attendance for the day is already recorded.
//
// The debouncer is owned by the orchestrator and only touched under its
// lock, so it carries no synchronization of its own.
type Debouncer struct {
	cooldown time.Duration
	lastSeen map[string]time.Time
}

// NewDebouncer creates a debouncer; cooldown <= 0 selects DefaultCooldown.
func NewDebouncer(cooldown time.Duration) *Debouncer {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Debouncer{
		cooldown: cooldown,
		lastSeen: make(map[string]time.Time),
	}
}

// ShouldProcess reports whether the identity is outside its cooldown
// window. It does not record the sighting; callers that proceed must call
// Touch, which records the attempt regardless of the downstream outcome.
func (d *Debouncer) ShouldProcess(name string, now time.Time) bool {
	last, ok := d.lastSeen[name]
	if !ok {
		return true
	}
	return now.Sub(last) > d.cooldown
}

// Touch records now as the identity's last processed time.
func (d *Debouncer) Touch(name string, now time.Time) {
	d.lastSeen[name] = now
}
