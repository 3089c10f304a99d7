package notes

import (
	"path/filepath"
	"time"
)

// DayKey formats a timestamp as the YYYYMMDD day key used by cache
// directories and the deletion log.
func DayKey(t time.Time) string {
	return t.Format("20060102")
}

// HourNotePath returns notes/YYYY/MM/DD/hour-YYYYMMDD-HH.md for the window
// starting at start.
func HourNotePath(notesDir string, start time.Time) string {
	return filepath.Join(
		notesDir,
		start.Format("2006"), start.Format("01"), start.Format("02"),
		"hour-"+start.Format("20060102-15")+".md",
	)
}

// DayNotePath returns notes/YYYY/MM/DD/day-YYYYMMDD.md for the given day.
func DayNotePath(notesDir string, day time.Time) string {
	return filepath.Join(
		notesDir,
		day.Format("2006"), day.Format("01"), day.Format("02"),
		"day-"+day.Format("20060102")+".md",
	)
}
