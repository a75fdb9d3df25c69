package services

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"smart-attendance-go/internal/core/models"
	"smart-attendance-go/internal/core/session"
)

type fakeRepository struct {
	saved []models.Sighting
	err   error
}

func (f *fakeRepository) Save(s *models.Sighting) error {
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, *s)
	return nil
}

func (f *fakeRepository) Recent(int) ([]models.Sighting, error)          { return nil, nil }
func (f *fakeRepository) ByName(string, int) ([]models.Sighting, error)  { return nil, nil }
func (f *fakeRepository) Summaries() ([]models.SightingSummary, error)   { return nil, nil }
func (f *fakeRepository) OlderThan(time.Time) ([]models.Sighting, error) { return nil, nil }
func (f *fakeRepository) DeleteOlderThan(time.Time) (int64, error)       { return 0, nil }

func testFace() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	for y := 0; y < 40; y++ {
		for x := 0; x < 40; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 180, B: 160, A: 255})
		}
	}
	return img
}

func TestRecorderSavesRowAndSnapshot(t *testing.T) {
	repo := &fakeRepository{}
	dir := t.TempDir()
	recorder := NewSightingRecorder(repo, dir)

	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	recorder.ObservationProcessed(session.Observation{
		Name:      "Alice Smith",
		Score:     12.3,
		Box:       image.Rect(10, 20, 30, 40),
		Face:      testFace(),
		Processed: true,
		Recorded:  true,
		At:        at,
	})

	if len(repo.saved) != 1 {
		t.Fatalf("expected 1 saved sighting, got %d", len(repo.saved))
	}
	saved := repo.saved[0]
	if saved.Name != "Alice Smith" {
		t.Errorf("expected name Alice Smith, got %s", saved.Name)
	}
	if !saved.Recorded {
		t.Error("expected Recorded true")
	}
	if saved.SnapshotPath == "" {
		t.Fatal("expected a snapshot path")
	}

	path := filepath.Join(dir, saved.SnapshotPath)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("snapshot file missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("snapshot file is empty")
	}
}

func TestRecorderWithoutFaceSkipsSnapshot(t *testing.T) {
	repo := &fakeRepository{}
	recorder := NewSightingRecorder(repo, t.TempDir())

	recorder.ObservationProcessed(session.Observation{
		Name:     "Bob",
		Score:    5.0,
		Recorded: false,
		At:       time.Now(),
	})

	if len(repo.saved) != 1 {
		t.Fatalf("expected 1 saved sighting, got %d", len(repo.saved))
	}
	if repo.saved[0].SnapshotPath != "" {
		t.Errorf("expected empty snapshot path, got %s", repo.saved[0].SnapshotPath)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Alice Smith", "alice_smith"},
		{"  Bob  ", "bob"},
		{"Jörg", "jrg"},
		{"!!!", "sighting"},
		{"A-B 3", "a-b_3"},
	}
	for _, tt := range tests {
		if got := slugify(tt.in); got != tt.want {
			t.Errorf("slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
