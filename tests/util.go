package testutil

import (
	"io"
	"log"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/hudoor/hudoor/core"
	logsvc "github.com/hudoor/hudoor/services/logger"
)

// Logger returns a logger that discards everything.
func Logger() core.Logger {
	return logsvc.NewRollbarLogger(log.New(io.Discard, "", 0), &core.Config{TestMode: true})
}

// RosterConfig is a roster configuration using the default sheet headers and labels.
func RosterConfig() core.RosterConfig {
	return core.NewConfig().Roster
}

// CreateRoster writes a workbook with `header` and `records` to a new file under t.TempDir().
// Record values that parse as numbers are stored as numbers, like a portal export does.
func CreateRoster(t *testing.T, header []string, records [][]string) string {
	t.Helper()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)

	rows := append([][]string{header}, records...)
	for r, row := range rows {
		for c, val := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatalf("CreateRoster() failed: %v", err)
			}
			var v interface{} = val
			if r > 0 {
				if n, err := strconv.ParseFloat(val, 64); err == nil {
					v = n
				}
			}
			if err = f.SetCellValue(sheet, cell, v); err != nil {
				t.Fatalf("CreateRoster() failed: %v", err)
			}
		}
	}

	path := filepath.Join(t.TempDir(), "roster.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("CreateRoster() failed: %v", err)
	}
	return path
}
