package services

import (
	"encoding/json"
	"fmt"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"

	"smart-attendance-go/internal/core/models"
	"smart-attendance-go/internal/core/session"
	"smart-attendance-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// SightingRecorder persists processed observations: one database row per
// sighting plus a snapshot JPEG of the face crop.
type SightingRecorder struct {
	sightings   repository.SightingRepository
	snapshotDir string
}

// NewSightingRecorder creates a recorder writing snapshots into snapshotDir.
func NewSightingRecorder(sightings repository.SightingRepository, snapshotDir string) *SightingRecorder {
	return &SightingRecorder{sightings: sightings, snapshotDir: snapshotDir}
}

// ObservationProcessed implements session.Observer.
func (r *SightingRecorder) ObservationProcessed(obs session.Observation) {
	snapshotPath := r.saveSnapshot(obs)

	box, err := json.Marshal(map[string]int{
		"x":      obs.Box.Min.X,
		"y":      obs.Box.Min.Y,
		"width":  obs.Box.Dx(),
		"height": obs.Box.Dy(),
	})
	if err != nil {
		log.WithError(err).Warn("Failed to encode sighting box")
		box = []byte("{}")
	}

	sighting := models.Sighting{
		Name:         obs.Name,
		Score:        obs.Score,
		Box:          datatypes.JSON(box),
		Recorded:     obs.Recorded,
		SnapshotPath: snapshotPath,
		CapturedAt:   obs.At,
	}
	if err := r.sightings.Save(&sighting); err != nil {
		log.WithError(err).Errorf("Failed to save sighting for %s", obs.Name)
	}
}

// saveSnapshot writes the face crop as JPEG and returns the path relative
// to the snapshot directory. Failures only cost the snapshot, not the row.
func (r *SightingRecorder) saveSnapshot(obs session.Observation) string {
	if obs.Face == nil {
		return ""
	}

	filename := fmt.Sprintf("%s_%s.jpg", slugify(obs.Name), obs.At.Format("20060102_150405.000"))
	path := filepath.Join(r.snapshotDir, filename)

	if err := os.MkdirAll(r.snapshotDir, 0755); err != nil {
		log.WithError(err).Warn("Failed to create snapshot directory")
		return ""
	}

	f, err := os.Create(path)
	if err != nil {
		log.WithError(err).Warnf("Failed to create snapshot file %s", path)
		return ""
	}
	defer f.Close()

	if err := jpeg.Encode(f, obs.Face, &jpeg.Options{Quality: 85}); err != nil {
		log.WithError(err).Warnf("Failed to encode snapshot %s", path)
		os.Remove(path)
		return ""
	}
	return filename
}

func slugify(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.ReplaceAll(slug, " ", "_")
	var b strings.Builder
	for _, r := range slug {
		if r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "sighting"
	}
	return b.String()
}
