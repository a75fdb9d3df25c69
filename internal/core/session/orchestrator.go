package session

import (
	"image"
	"sync"
	"time"

	"smart-attendance-go/internal/attendance"
	"smart-attendance-go/internal/core/gallery"
	"smart-attendance-go/internal/core/matcher"

	log "github.com/sirupsen/logrus"
)

// Observation is the per-face outcome of one pipeline pass, used for frame
// annotation and for notifying downstream consumers (sighting store, SSE,
// MQTT).
type Observation struct {
	Name      string          `json:"name"`
	Score     float64         `json:"score"`
	Box       image.Rectangle `json:"-"`
	Face      image.Image     `json:"-"`
	Processed bool            `json:"processed"`
	Recorded  bool            `json:"recorded"`
	At        time.Time       `json:"at"`
}

// Known reports whether the face matched an enrolled identity.
func (o Observation) Known() bool {
	return o.Name != matcher.Unknown
}

// Observer receives every observation that passed the debounce gate.
type Observer interface {
	ObservationProcessed(obs Observation)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(obs Observation)

func (f ObserverFunc) ObservationProcessed(obs Observation) { f(obs) }

// Orchestrator ties matcher, debouncer and ledger together for each
// detected face. It owns the "recognized today" cache: a set of identities
// whose ledger write already succeeded this run, kept purely to skip
// redundant ledger lookups. The ledger's own idempotence check remains the
// source of truth.
type Orchestrator struct {
	matcher   *matcher.Matcher
	gallery   *gallery.Store
	ledger    *attendance.Ledger
	debouncer *Debouncer

	mu              sync.Mutex
	recognizedToday map[string]struct{}
	observers       []Observer
}

// NewOrchestrator wires the recognition pipeline.
func NewOrchestrator(m *matcher.Matcher, g *gallery.Store, l *attendance.Ledger, d *Debouncer) *Orchestrator {
	return &Orchestrator{
		matcher:         m,
		gallery:         g,
		ledger:          l,
		debouncer:       d,
		recognizedToday: make(map[string]struct{}),
	}
}

// AddObserver registers a consumer of processed observations. Observers are
// invoked synchronously from the processing loop and should hand off
// long-running work themselves.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// ProcessFace runs one cropped face through the pipeline: identify, debounce,
// record. Unknown faces and debounced sightings return early with Processed
// false; the caller still gets the observation for display purposes.
func (o *Orchestrator) ProcessFace(face image.Image, box image.Rectangle, now time.Time) Observation {
	res := o.matcher.Identify(face, o.gallery.Entries())

	obs := Observation{
		Name:  res.Name,
		Score: res.Score,
		Box:   box,
		Face:  face,
		At:    now,
	}
	if !res.Known() {
		return obs
	}

	o.mu.Lock()

	if !o.debouncer.ShouldProcess(res.Name, now) {
		o.mu.Unlock()
		return obs
	}
	// The attempt counts against the cooldown whether or not the ledger
	// write below happens or succeeds.
	o.debouncer.Touch(res.Name, now)
	obs.Processed = true

	_, alreadyToday := o.recognizedToday[res.Name]
	if !alreadyToday {
		switch o.ledger.MarkPresent(res.Name, now) {
		case attendance.Recorded:
			o.recognizedToday[res.Name] = struct{}{}
			obs.Recorded = true
		case attendance.AlreadyRecorded:
			// Recorded in an earlier run; the cache only holds writes from
			// this session, so the ledger keeps answering for this name.
		case attendance.Unavailable:
			log.Warnf("Attendance write for %s failed, will retry on next sighting", res.Name)
		}
	}

	observers := make([]Observer, len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	for _, watcher := range observers {
		watcher.ObservationProcessed(obs)
	}
	return obs
}

// Reset clears the "recognized today" cache. Debouncer state and the ledger
// are deliberately untouched: the cache is an optimization, not a record.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recognizedToday = make(map[string]struct{})
	log.Info("Session recognition cache cleared")
}

// RecognizedToday returns the identities recorded by this run so far.
func (o *Orchestrator) RecognizedToday() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	names := make([]string, 0, len(o.recognizedToday))
	for name := range o.recognizedToday {
		names = append(names, name)
	}
	return names
}
