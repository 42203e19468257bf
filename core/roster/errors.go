package roster

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrNoLecture is returned when no roster row is scheduled on the requested day.
	ErrNoLecture = errors.New("no lecture scheduled for this date")
	ErrNotLoaded = errors.New("roster must be loaded first")
)

// FileFormatError reports required roster columns that are missing from the sheet header.
type FileFormatError struct {
	Missing []string
}

func (e *FileFormatError) Error() string {
	return "roster is missing required columns: " + strings.Join(e.Missing, ", ")
}

// NotEnrolledError means no roster row has the submitted student id on the lecture date.
// SuggestedName is set when the submitted name matches another student of that date.
type NotEnrolledError struct {
	StudentID     string
	Date          time.Time
	SuggestedName string
}

func (e *NotEnrolledError) Error() string {
	if e.SuggestedName != "" {
		return fmt.Sprintf("student id %q incorrect, did you mean %s?", e.StudentID, e.SuggestedName)
	}
	return fmt.Sprintf("student %q not registered for the lecture of %s", e.StudentID, e.Date.Format("2006-01-02"))
}

// NameMismatchError means the student id was found but the submitted name is too different
// from the roster name.
type NameMismatchError struct {
	Submitted string
	Suggested string
	Ratio     float64
}

func (e *NameMismatchError) Error() string {
	return fmt.Sprintf("student name %q does not match, did you mean %s?", e.Submitted, e.Suggested)
}

// SaveError is a total failure to persist the roster: both the formatted write and the
// plain fallback failed.
type SaveError struct {
	Err error
}

func (e *SaveError) Error() string { return "saving roster: " + e.Err.Error() }
func (e *SaveError) Unwrap() error { return e.Err }
