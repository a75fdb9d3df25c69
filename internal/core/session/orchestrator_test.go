package session

import (
	"image"
	"path/filepath"
	"testing"
	"time"

	"smart-attendance-go/internal/attendance"
	"smart-attendance-go/internal/core/gallery"
	"smart-attendance-go/internal/core/matcher"
)

func grayFrame(v uint8, w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = v
	}
	return img
}

func testPipeline(t *testing.T) (*Orchestrator, *gallery.Store, *attendance.Ledger) {
	t.Helper()
	dir := t.TempDir()

	g := gallery.NewStore(filepath.Join(dir, "gallery.gob"), filepath.Join(dir, "references"))
	g.Load()

	l, err := attendance.NewLedger(filepath.Join(dir, "attendance"))
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}

	o := NewOrchestrator(matcher.New(30), g, l, NewDebouncer(5*time.Second))
	return o, g, l
}

func TestProcessFace_UnknownIsSkipped(t *testing.T) {
	o, g, l := testPipeline(t)
	g.Add("Alice", grayFrame(90, 100, 100), nil)

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	obs := o.ProcessFace(grayFrame(255, 100, 100), image.Rect(0, 0, 100, 100), now)

	if obs.Known() {
		t.Fatalf("all-white probe matched %q", obs.Name)
	}
	if obs.Processed || obs.Recorded {
		t.Error("unknown face must not touch debouncer or ledger")
	}
	if len(l.Day("2026-03-02")) != 0 {
		t.Error("ledger written for unknown face")
	}
}

func TestProcessFace_RecordsOnce(t *testing.T) {
	o, g, l := testPipeline(t)
	face := grayFrame(90, 100, 100)
	g.Add("Alice", face, nil)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	obs := o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0)
	if !obs.Known() || obs.Name != "Alice" {
		t.Fatalf("got %q, want Alice", obs.Name)
	}
	if !obs.Processed || !obs.Recorded {
		t.Fatalf("first sighting: processed=%v recorded=%v, want both true", obs.Processed, obs.Recorded)
	}

	// Within cooldown: nothing processed.
	obs = o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(2*time.Second))
	if obs.Processed {
		t.Error("sighting inside cooldown was processed")
	}

	// Past cooldown: processed again, but attendance already recorded.
	obs = o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(10*time.Second))
	if !obs.Processed {
		t.Error("sighting past cooldown not processed")
	}
	if obs.Recorded {
		t.Error("second ledger write for the same day")
	}

	if got := len(l.Day("2026-03-02")); got != 1 {
		t.Errorf("day has %d records, want 1", got)
	}
}

func TestProcessFace_CacheSkipsLedgerButLedgerStaysAuthoritative(t *testing.T) {
	o, g, l := testPipeline(t)
	face := grayFrame(90, 100, 100)
	g.Add("Alice", face, nil)

	// Attendance already recorded by a previous run of the process.
	t0 := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if got := l.MarkPresent("Alice", t0); got != attendance.Recorded {
		t.Fatalf("seed MarkPresent = %v", got)
	}

	obs := o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(time.Hour))
	if !obs.Processed {
		t.Fatal("sighting not processed")
	}
	if obs.Recorded {
		t.Error("ledger idempotence check failed across process restarts")
	}
	if got := len(l.Day("2026-03-02")); got != 1 {
		t.Errorf("day has %d records, want 1", got)
	}
}

func TestReset_ClearsCacheOnly(t *testing.T) {
	o, g, _ := testPipeline(t)
	face := grayFrame(90, 100, 100)
	g.Add("Alice", face, nil)

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0)

	if got := o.RecognizedToday(); len(got) != 1 {
		t.Fatalf("recognized today = %v, want [Alice]", got)
	}

	o.Reset()

	if got := o.RecognizedToday(); len(got) != 0 {
		t.Errorf("cache not cleared: %v", got)
	}

	// Debouncer state survives the reset: the next sighting inside the
	// cooldown is still suppressed.
	obs := o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(2*time.Second))
	if obs.Processed {
		t.Error("reset must not clear debouncer state")
	}

	// Past the cooldown the ledger still refuses a duplicate for the day.
	obs = o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(10*time.Second))
	if obs.Recorded {
		t.Error("reset must not allow a second attendance record for the day")
	}
}

func TestObservers_NotifiedOnProcessedSightings(t *testing.T) {
	o, g, _ := testPipeline(t)
	face := grayFrame(90, 100, 100)
	g.Add("Alice", face, nil)

	var seen []Observation
	o.AddObserver(ObserverFunc(func(obs Observation) {
		seen = append(seen, obs)
	}))

	t0 := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0)
	o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(time.Second)) // debounced
	o.ProcessFace(face, image.Rect(0, 0, 100, 100), t0.Add(10*time.Second))

	if len(seen) != 2 {
		t.Fatalf("observer saw %d observations, want 2 (debounced sighting excluded)", len(seen))
	}
	if !seen[0].Recorded || seen[1].Recorded {
		t.Errorf("recorded flags = %v, %v; want true, false", seen[0].Recorded, seen[1].Recorded)
	}
}
