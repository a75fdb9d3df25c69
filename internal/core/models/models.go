package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Sighting is one ledger-relevant recognition event: a face that matched an
// enrolled identity and passed the debounce gate. Sightings exist for
// operator review and statistics; the CSV attendance ledger stays the
// authoritative attendance record.
type Sighting struct {
	gorm.Model
	Name         string         `gorm:"index;not null" json:"name"`
	Score        float64        `json:"score"`
	Box          datatypes.JSON `gorm:"type:json" json:"box"` // {"x":..,"y":..,"width":..,"height":..}
	Recorded     bool           `gorm:"index" json:"recorded"`
	SnapshotPath string         `json:"snapshot_path,omitempty"` // cropped face JPEG, relative to the snapshot dir
	CapturedAt   time.Time      `gorm:"index" json:"captured_at"`
}

// SightingSummary aggregates sightings per identity for the review UI.
type SightingSummary struct {
	Name     string    `json:"name"`
	Count    int64     `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}
