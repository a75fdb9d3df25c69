package attendance

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testLedger(t *testing.T) *Ledger {
	t.Helper()
	l, err := NewLedger(t.TempDir())
	if err != nil {
		t.Fatalf("NewLedger: %v", err)
	}
	return l
}

func at(date, clock string) time.Time {
	ts, err := time.Parse("2006-01-02 15:04:05", date+" "+clock)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestMarkPresent_OncePerDay(t *testing.T) {
	l := testLedger(t)

	if got := l.MarkPresent("Alice", at("2026-03-02", "10:00:00")); got != Recorded {
		t.Fatalf("first MarkPresent = %v, want Recorded", got)
	}
	if got := l.MarkPresent("Alice", at("2026-03-02", "14:30:00")); got != AlreadyRecorded {
		t.Fatalf("second MarkPresent = %v, want AlreadyRecorded", got)
	}

	records := l.Day("2026-03-02")
	count := 0
	for _, r := range records {
		if r.Name == "Alice" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Alice has %d records for the day, want 1", count)
	}
}

func TestMarkPresent_DailyReset(t *testing.T) {
	l := testLedger(t)

	if got := l.MarkPresent("Alice", at("2026-03-02", "10:00:00")); got != Recorded {
		t.Fatalf("day one = %v, want Recorded", got)
	}
	if got := l.MarkPresent("Alice", at("2026-03-03", "10:00:00")); got != Recorded {
		t.Fatalf("day two = %v, want Recorded", got)
	}
}

func TestDay_RecordContents(t *testing.T) {
	l := testLedger(t)
	l.MarkPresent("Bob", at("2026-03-02", "10:00:00"))

	records := l.Day("2026-03-02")
	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	want := Record{Name: "Bob", Date: "2026-03-02", Time: "10:00:00"}
	if records[0] != want {
		t.Errorf("record = %+v, want %+v", records[0], want)
	}
}

func TestDay_MissingLog(t *testing.T) {
	l := testLedger(t)
	if records := l.Day("1999-01-01"); len(records) != 0 {
		t.Errorf("missing day returned %d records, want 0", len(records))
	}
}

func TestDailyFileFormat(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLedger(dir)
	l.MarkPresent("Alice", at("2026-03-02", "09:15:00"))
	l.MarkPresent("Bob", at("2026-03-02", "09:16:30"))

	f, err := os.Open(filepath.Join(dir, "attendance_2026-03-02.csv"))
	if err != nil {
		t.Fatalf("daily file not created: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("daily file is not valid CSV: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want header + 2 records", len(rows))
	}
	if strings.Join(rows[0], ",") != "Name,Date,Time" {
		t.Errorf("header = %v, want Name,Date,Time", rows[0])
	}
	if rows[1][0] != "Alice" || rows[2][0] != "Bob" {
		t.Errorf("records out of append order: %v", rows)
	}
}

func TestHistory(t *testing.T) {
	l := testLedger(t)
	l.MarkPresent("Alice", at("2026-03-01", "09:00:00"))
	l.MarkPresent("Bob", at("2026-03-01", "09:05:00"))
	l.MarkPresent("Alice", at("2026-03-02", "09:10:00"))
	l.MarkPresent("Alice", at("2026-03-03", "09:20:00"))

	history := l.History("Alice", 0)
	if len(history) != 3 {
		t.Fatalf("unlimited history has %d records, want 3", len(history))
	}
	// Newest day first.
	wantDates := []string{"2026-03-03", "2026-03-02", "2026-03-01"}
	for i, want := range wantDates {
		if history[i].Date != want {
			t.Errorf("history[%d].Date = %s, want %s", i, history[i].Date, want)
		}
	}

	limited := l.History("Alice", 2)
	if len(limited) != 2 {
		t.Fatalf("history limited to 2 days has %d records", len(limited))
	}
	if limited[0].Date != "2026-03-03" || limited[1].Date != "2026-03-02" {
		t.Errorf("limited history = %v", limited)
	}

	if got := l.History("Ghost", 0); len(got) != 0 {
		t.Errorf("history of unknown identity has %d records, want 0", len(got))
	}
}

func TestGetStatistics(t *testing.T) {
	l := testLedger(t)
	l.MarkPresent("Alice", at("2026-03-01", "09:00:00"))
	l.MarkPresent("Bob", at("2026-03-01", "09:05:00"))
	l.MarkPresent("Alice", at("2026-03-02", "09:10:00"))

	stats := l.GetStatistics()
	if stats.TotalDays != 2 {
		t.Errorf("TotalDays = %d, want 2", stats.TotalDays)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("TotalRecords = %d, want 3", stats.TotalRecords)
	}
	if stats.UniqueIdentities != 2 {
		t.Errorf("UniqueIdentities = %d, want 2", stats.UniqueIdentities)
	}
	if stats.DailyCounts["2026-03-01"] != 2 || stats.DailyCounts["2026-03-02"] != 1 {
		t.Errorf("DailyCounts = %v", stats.DailyCounts)
	}
}

func TestGetStatistics_Empty(t *testing.T) {
	l := testLedger(t)
	stats := l.GetStatistics()
	if stats.TotalDays != 0 || stats.TotalRecords != 0 || stats.UniqueIdentities != 0 {
		t.Errorf("empty ledger stats = %+v", stats)
	}
}

func TestStatistics_CorruptDayIsolated(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLedger(dir)
	l.MarkPresent("Alice", at("2026-03-01", "09:00:00"))

	// A day whose file cannot be parsed must not poison the aggregation.
	bad := filepath.Join(dir, "attendance_2026-03-02.csv")
	if err := os.WriteFile(bad, []byte("Name,Date,Time\n\"unterminated"), 0640); err != nil {
		t.Fatal(err)
	}

	stats := l.GetStatistics()
	if stats.TotalRecords != 1 {
		t.Errorf("TotalRecords = %d, want 1 (corrupt day contributes zero)", stats.TotalRecords)
	}
	if stats.DailyCounts["2026-03-02"] != 0 {
		t.Errorf("corrupt day count = %d, want 0", stats.DailyCounts["2026-03-02"])
	}
}

func TestExport(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLedger(dir)
	l.MarkPresent("Alice", at("2026-03-01", "09:00:00"))
	l.MarkPresent("Bob", at("2026-03-02", "09:05:00"))
	l.MarkPresent("Carol", at("2026-03-05", "09:10:00"))

	exportDir := t.TempDir()
	path, err := l.Export(exportDir, "", "", at("2026-03-05", "12:00:00"))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("export not valid CSV: %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("export has %d rows, want header + 3", len(rows))
	}
}

func TestExport_DateRange(t *testing.T) {
	dir := t.TempDir()
	l, _ := NewLedger(dir)
	l.MarkPresent("Alice", at("2026-03-01", "09:00:00"))
	l.MarkPresent("Bob", at("2026-03-02", "09:05:00"))
	l.MarkPresent("Carol", at("2026-03-05", "09:10:00"))

	exportDir := t.TempDir()
	path, err := l.Export(exportDir, "2026-03-02", "2026-03-04", at("2026-03-05", "12:00:00"))
	if err != nil {
		t.Fatalf("Export: %v", err)
	}

	f, _ := os.Open(path)
	defer f.Close()
	rows, _ := csv.NewReader(f).ReadAll()
	if len(rows) != 2 {
		t.Fatalf("filtered export has %d rows, want header + 1", len(rows))
	}
	if rows[1][0] != "Bob" {
		t.Errorf("filtered export kept %q, want Bob", rows[1][0])
	}
}

func TestExport_Empty(t *testing.T) {
	l := testLedger(t)
	if _, err := l.Export(t.TempDir(), "", "", time.Now()); !errors.Is(err, ErrNoRecords) {
		t.Errorf("empty export = %v, want ErrNoRecords", err)
	}
}
