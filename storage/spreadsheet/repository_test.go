package spreadsheet

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/hudoor/hudoor/core/roster"
	testutil "github.com/hudoor/hudoor/tests"
)

var lectureDay = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

func createTestRoster(t *testing.T) string {
	cols := testutil.RosterConfig().Columns
	header := []string{cols.LectureName, cols.StudentID, cols.FullName, cols.Date, cols.Attendance,
		cols.ExpectedHours, cols.ActualHours, cols.AbsenceHours, cols.AuthorizedAbsence, "ملاحظات"}
	return testutil.CreateRoster(t, header, [][]string{
		{"CS101", "441001", "محمد العتيبي", "45355", "", "2", "", "", "", "note"},
		{"CS101", "441002", "سارة القحطاني", "45355", "", "2", "", "", "", ""},
		{"CS101", "441003", "أحمد الحربي", "2024-03-05", "", "2", "", "", "", ""},
	})
}

func cellStyle(t *testing.T, f *excelize.File, cell string) *excelize.Style {
	t.Helper()
	id, err := f.GetCellStyle("Sheet1", cell)
	require.NoError(t, err)
	style, err := f.GetStyle(id)
	require.NoError(t, err)
	return style
}

func TestRepository_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := createTestRoster(t)
	repo := NewRepository(path, testutil.RosterConfig(), testutil.Logger())
	ledger := roster.NewLedger(repo, testutil.RosterConfig())
	require.NoError(t, ledger.Load(ctx))

	rows, err := ledger.LecturesScheduled(lectureDay)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "441001", rows[0].StudentID)
	assert.Equal(t, "CS101", rows[0].LectureName)

	_, err = ledger.MarkPresent("محمد العتيبي", "441001", lectureDay)
	require.NoError(t, err)
	_, err = ledger.MarkAllAbsent(lectureDay)
	require.NoError(t, err)

	res, err := ledger.Save(ctx)
	require.NoError(t, err)
	assert.False(t, res.Fallback)
	assert.Equal(t, path+".bak", res.Backup)
	_, err = os.Stat(res.Backup)
	assert.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	labels := testutil.RosterConfig().Labels
	for cell, want := range map[string]string{
		"E2": labels.Present,
		"G2": "2",
		"E3": labels.Absent,
		"H3": "2",
		"I3": labels.AuthorizedNo,
		"J2": "note",
		"E4": "",
	} {
		got, err := f.GetCellValue("Sheet1", cell)
		require.NoError(t, err)
		assert.Equal(t, want, got, cell)
	}

	assert.Equal(t, textNumFmt, cellStyle(t, f, "E2").NumFmt)
	assert.Equal(t, textNumFmt, cellStyle(t, f, "F3").NumFmt)
	style := cellStyle(t, f, "D4")
	assert.True(t, style.CustomNumFmt != nil || style.NumFmt != 0, "date column has a date format")
	raw, err := f.GetCellValue("Sheet1", "D4", excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	assert.Equal(t, "45356", raw, "text dates are rewritten as serial dates")

	// the saved workbook loads back to the same rows
	reloaded := roster.NewLedger(NewRepository(path, testutil.RosterConfig(), testutil.Logger()), testutil.RosterConfig())
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, ledger.Rows(), reloaded.Rows())
}

func TestRepository_Fallback(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "roster.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a workbook"), 0o644))

	repo := NewRepository(path, testutil.RosterConfig(), testutil.Logger())
	snap := roster.Snapshot{
		Table: roster.Table{
			Header:  []string{"id", "date", "attendance"},
			Records: [][]string{{"1", "45355", "P"}},
		},
		Dates:      []time.Time{lectureDay},
		Dirty:      []bool{true},
		DateColumn: 1,
	}

	res, err := repo.Write(ctx, snap)
	require.NoError(t, err)
	assert.True(t, res.Fallback)

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "not a workbook", string(backup))

	tbl, err := repo.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "date", "attendance"}, tbl.Header)
	require.Len(t, tbl.Records, 1)
	assert.Equal(t, "2024-03-04", tbl.Records[0][1])
}

func TestRepository_Errors(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "missing", "roster.xlsx")
	repo := NewRepository(path, testutil.RosterConfig(), testutil.Logger())

	_, err := repo.Read(ctx)
	assert.Error(t, err)

	_, err = repo.Write(ctx, roster.Snapshot{Table: roster.Table{Header: []string{"id"}}})
	assert.Error(t, err)

	conf := testutil.RosterConfig()
	conf.Sheet = "Attendance"
	_, err = NewRepository(createTestRoster(t), conf, testutil.Logger()).Read(ctx)
	assert.Error(t, err)
}
