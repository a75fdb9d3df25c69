package repository

import (
	"fmt"
	"time"

	"smart-attendance-go/internal/core/models"

	"gorm.io/gorm"
)

// SightingRepository is the persistence interface for recognition sightings.
type SightingRepository interface {
	Save(sighting *models.Sighting) error
	Recent(limit int) ([]models.Sighting, error)
	ByName(name string, limit int) ([]models.Sighting, error)
	Summaries() ([]models.SightingSummary, error)
	OlderThan(cutoff time.Time) ([]models.Sighting, error)
	DeleteOlderThan(cutoff time.Time) (int64, error)
}

// SQLiteRepository implements SightingRepository on GORM/SQLite.
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository wraps a GORM connection.
func NewSQLiteRepository(db *gorm.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Save persists a sighting.
func (r *SQLiteRepository) Save(sighting *models.Sighting) error {
	return r.db.Save(sighting).Error
}

// Recent returns the newest sightings, most recent first.
func (r *SQLiteRepository) Recent(limit int) ([]models.Sighting, error) {
	if limit <= 0 {
		limit = 50
	}
	var sightings []models.Sighting
	err := r.db.Order("captured_at DESC").Limit(limit).Find(&sightings).Error
	return sightings, err
}

// ByName returns the newest sightings of one identity.
func (r *SQLiteRepository) ByName(name string, limit int) ([]models.Sighting, error) {
	if limit <= 0 {
		limit = 50
	}
	var sightings []models.Sighting
	err := r.db.Where("name = ?", name).Order("captured_at DESC").Limit(limit).Find(&sightings).Error
	return sightings, err
}

// Summaries aggregates sighting counts and last-seen times per identity.
// MAX() strips the declared column type, so the driver returns last_seen as
// text; scan it as a string and parse it back into a time.Time.
func (r *SQLiteRepository) Summaries() ([]models.SightingSummary, error) {
	var rows []struct {
		Name     string
		Count    int64
		LastSeen string
	}
	err := r.db.Model(&models.Sighting{}).
		Select("name, COUNT(*) AS count, MAX(captured_at) AS last_seen").
		Group("name").
		Order("last_seen DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	summaries := make([]models.SightingSummary, 0, len(rows))
	for _, row := range rows {
		lastSeen, err := parseStoredTime(row.LastSeen)
		if err != nil {
			return nil, fmt.Errorf("parsing last_seen for %s: %w", row.Name, err)
		}
		summaries = append(summaries, models.SightingSummary{
			Name:     row.Name,
			Count:    row.Count,
			LastSeen: lastSeen,
		})
	}
	return summaries, nil
}

// Timestamp layouts the pure-Go SQLite driver writes for TEXT-encoded times.
var storedTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	time.RFC3339Nano,
}

func parseStoredTime(value string) (time.Time, error) {
	for _, layout := range storedTimeLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// OlderThan returns sightings captured before the cutoff. The cleanup
// service uses it to delete snapshot files before dropping the rows.
func (r *SQLiteRepository) OlderThan(cutoff time.Time) ([]models.Sighting, error) {
	var sightings []models.Sighting
	err := r.db.Where("captured_at < ?", cutoff).Find(&sightings).Error
	return sightings, err
}

// DeleteOlderThan removes sightings captured before the cutoff and returns
// the number of rows deleted. Used by the retention cleanup.
func (r *SQLiteRepository) DeleteOlderThan(cutoff time.Time) (int64, error) {
	result := r.db.Unscoped().Where("captured_at < ?", cutoff).Delete(&models.Sighting{})
	return result.RowsAffected, result.Error
}
