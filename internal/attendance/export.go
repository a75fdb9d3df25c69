package attendance

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// ErrNoRecords is returned by Export when no record falls in the requested
// range (or the ledger is empty).
var ErrNoRecords = errors.New("no attendance records to export")

// Export flattens all daily logs into one CSV file under destDir, distinct
// from the per-day logs. start and end are optional inclusive date bounds in
// YYYY-MM-DD form; an empty bound is open. Returns the path of the written
// file. Unreadable days are skipped, consistent with the read policy of the
// rest of the ledger.
func (l *Ledger) Export(destDir, start, end string, now time.Time) (string, error) {
	var all []Record
	for _, date := range l.listDates() {
		if start != "" && date < start {
			continue
		}
		if end != "" && date > end {
			continue
		}
		records, err := l.readDay(date)
		if err != nil {
			log.WithError(err).Warnf("Skipping unreadable attendance log for %s during export", date)
			continue
		}
		all = append(all, records...)
	}

	if len(all) == 0 {
		return "", ErrNoRecords
	}

	if err := os.MkdirAll(destDir, 0750); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := filepath.Join(destDir, fmt.Sprintf("attendance_export_%s.csv", now.Format("20060102_150405")))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return "", fmt.Errorf("writing export header: %w", err)
	}
	for _, r := range all {
		if err := w.Write([]string{r.Name, r.Date, r.Time}); err != nil {
			return "", fmt.Errorf("writing export record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing export file: %w", err)
	}

	log.Infof("Exported %d attendance records to %s", len(all), path)
	return path, nil
}
