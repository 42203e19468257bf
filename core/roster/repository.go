package roster

import (
	"context"
	"time"
)

type (
	// Table is the raw content of the roster sheet. Records exclude the header row;
	// numeric cells (dates included) hold their raw stored value.
	Table struct {
		Header  []string
		Records [][]string
	}

	// Snapshot is the roster state handed to a Repository for writing.
	Snapshot struct {
		Table
		Dates       []time.Time // per record; zero when the record has no date
		Dirty       []bool      // per record; attendance cells changed since Read
		TextColumns []int       // attendance & hour columns, always written with text format
		DateColumn  int
	}

	SaveResult struct {
		Path     string
		Backup   string // empty when there was no previous file
		Fallback bool   // the plain dump was used instead of the formatted write
	}

	// Repository reads and writes one roster file.
	Repository interface {
		Read(ctx context.Context) (Table, error)
		// Write backs the previous file up, then writes the snapshot preserving formatting,
		// falling back to a plain dump. An error means neither write succeeded.
		Write(ctx context.Context, snap Snapshot) (SaveResult, error)
	}
)

// Cell returns the record value at `col`, or "" when the record is short.
func (t Table) Cell(record, col int) string {
	if record < 0 || record >= len(t.Records) || col < 0 || col >= len(t.Records[record]) {
		return ""
	}
	return t.Records[record][col]
}
