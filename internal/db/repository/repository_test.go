package repository

import (
	"testing"
	"time"

	"smart-attendance-go/internal/core/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestRepository(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&models.Sighting{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return NewSQLiteRepository(db)
}

func saveSighting(t *testing.T, repo *SQLiteRepository, name string, capturedAt time.Time, recorded bool) {
	t.Helper()
	s := models.Sighting{Name: name, Score: 12.5, Recorded: recorded, CapturedAt: capturedAt}
	if err := repo.Save(&s); err != nil {
		t.Fatalf("failed to save sighting for %s: %v", name, err)
	}
}

func TestRecentOrdersNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	saveSighting(t, repo, "alice", base, true)
	saveSighting(t, repo, "bob", base.Add(time.Minute), false)
	saveSighting(t, repo, "carol", base.Add(2*time.Minute), true)

	got, err := repo.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 sightings, got %d", len(got))
	}
	want := []string{"carol", "bob", "alice"}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("position %d: expected %s, got %s", i, name, got[i].Name)
		}
	}
}

func TestRecentAppliesLimit(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		saveSighting(t, repo, "alice", base.Add(time.Duration(i)*time.Minute), false)
	}

	got, err := repo.Recent(2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("expected 2 sightings, got %d", len(got))
	}
}

func TestByNameFilters(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	saveSighting(t, repo, "alice", base, true)
	saveSighting(t, repo, "bob", base.Add(time.Minute), true)
	saveSighting(t, repo, "alice", base.Add(2*time.Minute), false)

	got, err := repo.ByName("alice", 10)
	if err != nil {
		t.Fatalf("ByName failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 sightings for alice, got %d", len(got))
	}
	for _, s := range got {
		if s.Name != "alice" {
			t.Errorf("expected only alice, got %s", s.Name)
		}
	}
}

func TestSummariesAggregatePerIdentity(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	saveSighting(t, repo, "alice", base, true)
	saveSighting(t, repo, "alice", base.Add(time.Minute), false)
	saveSighting(t, repo, "bob", base.Add(2*time.Minute), true)

	summaries, err := repo.Summaries()
	if err != nil {
		t.Fatalf("Summaries failed: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}

	if summaries[0].Name != "bob" {
		t.Errorf("expected bob first (newest last_seen), got %s", summaries[0].Name)
	}

	counts := make(map[string]int64)
	lastSeen := make(map[string]time.Time)
	for _, s := range summaries {
		counts[s.Name] = s.Count
		lastSeen[s.Name] = s.LastSeen
	}
	if counts["alice"] != 2 {
		t.Errorf("expected 2 sightings for alice, got %d", counts["alice"])
	}
	if counts["bob"] != 1 {
		t.Errorf("expected 1 sighting for bob, got %d", counts["bob"])
	}
	if !lastSeen["alice"].Equal(base.Add(time.Minute)) {
		t.Errorf("alice last seen %v, want %v", lastSeen["alice"], base.Add(time.Minute))
	}
	if !lastSeen["bob"].Equal(base.Add(2 * time.Minute)) {
		t.Errorf("bob last seen %v, want %v", lastSeen["bob"], base.Add(2*time.Minute))
	}
}

func TestRetentionCutoff(t *testing.T) {
	repo := newTestRepository(t)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	saveSighting(t, repo, "old", base.AddDate(0, 0, -40), true)
	saveSighting(t, repo, "recent", base.Add(-time.Hour), true)

	cutoff := base.AddDate(0, 0, -30)

	old, err := repo.OlderThan(cutoff)
	if err != nil {
		t.Fatalf("OlderThan failed: %v", err)
	}
	if len(old) != 1 || old[0].Name != "old" {
		t.Fatalf("expected only the old sighting, got %+v", old)
	}

	deleted, err := repo.DeleteOlderThan(cutoff)
	if err != nil {
		t.Fatalf("DeleteOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted row, got %d", deleted)
	}

	remaining, err := repo.Recent(10)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Name != "recent" {
		t.Errorf("expected only the recent sighting to remain, got %+v", remaining)
	}
}
