package attendance

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
	filePrefix = "attendance_"
	fileSuffix = ".csv"
)

// header is the column order of every daily file. New files get it written
// before the first data row.
var header = []string{"Name", "Date", "Time"}

// Record is one attendance entry: an identity seen on a calendar date at a
// time of day. At most one record exists per (identity, date) pair.
type Record struct {
	Name string `json:"name"`
	Date string `json:"date"`
	Time string `json:"time"`
}

// MarkResult is the outcome of a MarkPresent call.
type MarkResult int

const (
	// Recorded means a new attendance record was appended.
	Recorded MarkResult = iota
	// AlreadyRecorded means the identity already has a record for the day.
	AlreadyRecorded
	// Unavailable means the ledger storage failed; nothing was written.
	Unavailable
)

func (r MarkResult) String() string {
	switch r {
	case Recorded:
		return "recorded"
	case AlreadyRecorded:
		return "already_recorded"
	default:
		return "unavailable"
	}
}

// Statistics aggregates the whole ledger in one scan.
type Statistics struct {
	TotalDays        int            `json:"total_days"`
	TotalRecords     int            `json:"total_records"`
	UniqueIdentities int            `json:"unique_identities"`
	DailyCounts      map[string]int `json:"daily_counts"`
}

// Ledger is the durable per-day attendance store: one append-only CSV per
// calendar date under a single directory. The active file is recomputed
// from the supplied clock on every write, never cached, so a session
// running across midnight starts a fresh file on its own.
//
// Reads never fail past this boundary: an unreadable day contributes an
// empty result and a log line instead of aborting the aggregation.
type Ledger struct {
	dir string
	mu  sync.Mutex
}

// NewLedger creates the ledger directory if needed and returns the ledger.
func NewLedger(dir string) (*Ledger, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("creating attendance directory: %w", err)
	}
	return &Ledger{dir: dir}, nil
}

// DateOf formats a timestamp into the ledger's date key.
func DateOf(t time.Time) string {
	return t.Format(dateLayout)
}

func (l *Ledger) fileForDate(date string) string {
	return filepath.Join(l.dir, filePrefix+date+fileSuffix)
}

// MarkPresent records attendance for name at the given time. The whole
// check-then-append runs under the ledger lock, so a retried sighting from
// the processing loop can never double-write. Concurrent writers from other
// processes are out of scope (single-writer deployment).
func (l *Ledger) MarkPresent(name string, now time.Time) MarkResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := now.Format(dateLayout)

	records, err := l.readDay(date)
	if err != nil && !os.IsNotExist(err) {
		log.WithError(err).Errorf("Failed to read attendance log for %s", date)
		return Unavailable
	}
	for _, r := range records {
		if r.Name == name {
			log.Debugf("%s already marked present on %s", name, date)
			return AlreadyRecorded
		}
	}

	path := l.fileForDate(date)
	_, statErr := os.Stat(path)
	isNew := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		log.WithError(err).Errorf("Failed to open attendance log for %s", date)
		return Unavailable
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if isNew {
		if err := w.Write(header); err != nil {
			log.WithError(err).Errorf("Failed to write attendance header for %s", date)
			return Unavailable
		}
	}
	if err := w.Write([]string{name, date, now.Format(timeLayout)}); err != nil {
		log.WithError(err).Errorf("Failed to append attendance record for %s", name)
		return Unavailable
	}
	w.Flush()
	if err := w.Error(); err != nil {
		log.WithError(err).Errorf("Failed to flush attendance record for %s", name)
		return Unavailable
	}

	log.Infof("Attendance recorded for %s at %s", name, now.Format(timeLayout))
	return Recorded
}

// Day returns the records of one calendar date in file order. A missing or
// unreadable log yields an empty slice.
func (l *Ledger) Day(date string) []Record {
	records, err := l.readDay(date)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithError(err).Warnf("Failed to read attendance log for %s", date)
		}
		return []Record{}
	}
	return records
}

// History returns the records of one identity across the most recent
// maxDays logs, newest day first. maxDays <= 0 means unlimited.
func (l *Ledger) History(name string, maxDays int) []Record {
	dates := l.listDates()

	// listDates is ascending; walk newest-first.
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))
	if maxDays > 0 && len(dates) > maxDays {
		dates = dates[:maxDays]
	}

	history := []Record{}
	for _, date := range dates {
		records, err := l.readDay(date)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable attendance log for %s", date)
			continue
		}
		for _, r := range records {
			if r.Name == name {
				history = append(history, r)
			}
		}
	}
	return history
}

// GetStatistics scans every daily log once and aggregates totals. Days that
// fail to read count toward TotalDays but contribute zero records.
func (l *Ledger) GetStatistics() Statistics {
	stats := Statistics{DailyCounts: map[string]int{}}
	unique := map[string]struct{}{}

	dates := l.listDates()
	stats.TotalDays = len(dates)

	for _, date := range dates {
		records, err := l.readDay(date)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable attendance log for %s", date)
			stats.DailyCounts[date] = 0
			continue
		}
		stats.DailyCounts[date] = len(records)
		stats.TotalRecords += len(records)
		for _, r := range records {
			unique[r.Name] = struct{}{}
		}
	}

	stats.UniqueIdentities = len(unique)
	return stats
}

// listDates returns the date keys of all daily logs, ascending.
func (l *Ledger) listDates() []string {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		log.WithError(err).Warn("Failed to list attendance directory")
		return nil
	}

	var dates []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		dates = append(dates, strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix))
	}
	sort.Strings(dates)
	return dates
}

// readDay parses one daily log. Rows with fewer than three columns are
// skipped rather than failing the whole file.
func (l *Ledger) readDay(date string) ([]Record, error) {
	f, err := os.Open(l.fileForDate(date))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", l.fileForDate(date), err)
	}

	records := make([]Record, 0, len(rows))
	for i, row := range rows {
		if i == 0 {
			// Header row.
			continue
		}
		if len(row) < 3 {
			continue
		}
		records = append(records, Record{Name: row[0], Date: row[1], Time: row[2]})
	}
	return records, nil
}
