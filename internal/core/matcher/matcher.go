package matcher

import (
	"image"

	"smart-attendance-go/internal/core/gallery"
	"smart-attendance-go/internal/core/imaging"

	log "github.com/sirupsen/logrus"
)

// Unknown is the identity reported when no gallery entry scores below the
// threshold (or the gallery is empty).
const Unknown = "Unknown"

// DefaultThreshold is the mean-intensity-difference cutoff on the 0-255
// scale. Lower is stricter. 30 works for the template-matching metric in
// typical indoor lighting.
const DefaultThreshold = 30.0

// Result carries the outcome of one identification.
type Result struct {
	// Name is the best-matching identity, or Unknown.
	Name string
	// Score is the mean absolute pixel difference of the best match. For an
	// empty gallery there is no score and Score is 0 with Name == Unknown.
	Score float64
}

// Known reports whether the probe matched an enrolled identity.
func (r Result) Known() bool {
	return r.Name != Unknown
}

// Matcher identifies probe faces against a gallery using mean absolute
// pixel difference over normalized templates. This is deliberately crude
// template matching, not a learned embedding: the galleries it serves hold
// tens of faces, so an exhaustive linear scan is the right tool.
type Matcher struct {
	threshold float64
}

// New creates a matcher with the given threshold; values <= 0 fall back to
// DefaultThreshold.
func New(threshold float64) *Matcher {
	if threshold <= 0 {
		log.Warnf("Invalid matcher threshold %v, using default %v", threshold, DefaultThreshold)
		threshold = DefaultThreshold
	}
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured cutoff.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Identify normalizes the probe image and matches it against the gallery.
func (m *Matcher) Identify(probe image.Image, entries []gallery.Entry) Result {
	return m.IdentifyTemplate(imaging.Normalize(probe), entries)
}

// IdentifyTemplate matches an already-normalized probe template against the
// gallery entries. The scan is exhaustive and keeps the first entry with the
// minimum score, so ties resolve to the earliest-enrolled identity. Accepts
// strictly below the threshold; raising the threshold can therefore only
// grow the set of accepted probes.
func (m *Matcher) IdentifyTemplate(probe *imaging.Template, entries []gallery.Entry) Result {
	if len(entries) == 0 {
		return Result{Name: Unknown}
	}

	best := Result{Name: Unknown}
	first := true
	for _, e := range entries {
		score := probe.MeanAbsDiff(e.Template)
		if first || score < best.Score {
			best = Result{Name: e.Name, Score: score}
			first = false
		}
	}

	if best.Score < m.threshold {
		log.Debugf("Probe matched %s (score %.2f < %.2f)", best.Name, best.Score, m.threshold)
		return best
	}
	log.Debugf("Probe rejected as unknown (best %s at %.2f >= %.2f)", best.Name, best.Score, m.threshold)
	return Result{Name: Unknown, Score: best.Score}
}
