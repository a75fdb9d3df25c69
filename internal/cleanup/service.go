package cleanup

import (
	"os"
	"path/filepath"
	"time"

	"smart-attendance-go/internal/core/models"
	"smart-attendance-go/internal/db/repository"

	log "github.com/sirupsen/logrus"
)

// Service removes sightings and their snapshot files once they fall out of
// the retention window. Attendance CSV files are the system of record and
// are never touched by cleanup.
type Service struct {
	sightings     repository.SightingRepository
	retentionDays int
	snapshotDir   string
	checkInterval time.Duration
	stopChan      chan struct{}
}

// NewService creates a cleanup service. Returns nil when cleanup is
// disabled via retentionDays <= 0.
func NewService(sightings repository.SightingRepository, retentionDays int, snapshotDir string, checkInterval time.Duration) *Service {
	if retentionDays <= 0 {
		log.Info("Automatic cleanup disabled (retention_days <= 0)")
		return nil
	}
	if sightings == nil {
		log.Error("Cannot initialize cleanup service: sighting repository is nil")
		return nil
	}
	log.Infof("Initializing cleanup service: RetentionDays=%d, SnapshotDir='%s', CheckInterval=%s",
		retentionDays, snapshotDir, checkInterval)
	return &Service{
		sightings:     sightings,
		retentionDays: retentionDays,
		snapshotDir:   snapshotDir,
		checkInterval: checkInterval,
		stopChan:      make(chan struct{}),
	}
}

// StartBackgroundCleanup runs an immediate cycle and then one per interval.
func (s *Service) StartBackgroundCleanup() {
	if s == nil {
		return
	}
	log.Info("Starting background cleanup routine")

	go func() {
		s.RunCleanupCycle()

		ticker := time.NewTicker(s.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunCleanupCycle()
			case <-s.stopChan:
				log.Info("Stopping background cleanup routine")
				return
			}
		}
	}()
}

// StopBackgroundCleanup signals the background routine to stop.
func (s *Service) StopBackgroundCleanup() {
	if s == nil || s.stopChan == nil {
		return
	}
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
}

// RunCleanupCycle deletes sightings older than the retention period along
// with their snapshot files.
func (s *Service) RunCleanupCycle() {
	if s == nil || s.retentionDays <= 0 {
		return
	}

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	log.Infof("Cleanup: deleting sightings older than %s", cutoff.Format(time.RFC3339))

	old, err := s.sightings.OlderThan(cutoff)
	if err != nil {
		log.Errorf("Cleanup: failed to find old sightings: %v", err)
		return
	}
	if len(old) == 0 {
		log.Debug("Cleanup: nothing to delete")
		return
	}

	removed := 0
	for _, sighting := range old {
		s.removeSnapshot(sighting)
		removed++
	}

	deleted, err := s.sightings.DeleteOlderThan(cutoff)
	if err != nil {
		log.Errorf("Cleanup: failed to delete old sightings: %v", err)
		return
	}

	log.Infof("Cleanup cycle finished: %d sighting(s) deleted, %d snapshot file(s) checked", deleted, removed)
}

func (s *Service) removeSnapshot(sighting models.Sighting) {
	if sighting.SnapshotPath == "" {
		return
	}
	path := filepath.Join(s.snapshotDir, sighting.SnapshotPath)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warnf("Cleanup: failed to delete snapshot file '%s': %v", path, err)
	}
}
