package roster

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/hudoor/hudoor/core"
)

// Status is the attendance state of a roster row.
type Status int

const (
	StatusUnset Status = iota
	StatusPresent
	StatusAbsent
)

func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "present"
	case StatusAbsent:
		return "absent"
	default:
		return "unset"
	}
}

// Authorized is the authorized-absence flag of a roster row.
type Authorized int

const (
	AuthorizedUnset Authorized = iota
	AuthorizedYes
	AuthorizedNo
)

// Row is one student's expected attendance for one scheduled lecture date.
type Row struct {
	Index         int // zero-based data record index (header excluded)
	FullName      string
	StudentID     string
	Date          time.Time // UTC midnight; zero when the cell could not be parsed
	Status        Status
	ExpectedHours string
	ActualHours   string
	AbsenceHours  string
	Authorized    Authorized
	LectureName   string
	Section       string
}

func (r Row) HasDate() bool { return !r.Date.IsZero() }

// On reports whether the row is scheduled on the same calendar day as `date`.
func (r Row) On(date time.Time) bool {
	return r.HasDate() && r.Date.Equal(DateOf(date))
}

// Key identifies a row in the present-set.
type Key struct {
	FullName  string
	StudentID string
	Date      time.Time
}

func (r Row) key() Key {
	return Key{FullName: core.CollapseSpaces(r.FullName), StudentID: r.StudentID, Date: r.Date}
}

// Summary counts the rows of one lecture date by status.
type Summary struct {
	Date    time.Time
	Total   int
	Present int
	Absent  int
	Unset   int
}

// DateOf truncates `t` to its calendar day, as UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// spreadsheetEpoch is day zero of spreadsheet serial dates.
var spreadsheetEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	"01/02/2006",
	"1/2/06",
	"01/02/06",
	"1-2-2006",
	"01-02-2006",
	"2006/01/02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"1/2/2006 15:04",
	"1/2/2006 15:04:05",
	"1/2/2006 3:04 PM",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	time.RFC3339,
}

// ParseDate normalizes a raw date cell. Numeric values are spreadsheet serial days
// since 1899-12-30, text values are parsed with the known layouts.
func ParseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil {
		if serial < 0 || math.IsNaN(serial) || math.IsInf(serial, 0) {
			return time.Time{}, false
		}
		return spreadsheetEpoch.AddDate(0, 0, int(math.Floor(serial))), true
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return DateOf(t), true
		}
	}
	return time.Time{}, false
}

// SerialDate is the inverse of ParseDate for numeric cells.
func SerialDate(date time.Time) float64 {
	return math.Round(DateOf(date).Sub(spreadsheetEpoch).Hours() / 24)
}
