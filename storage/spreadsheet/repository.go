// Package spreadsheet reads and writes roster workbooks exported by the university portal.
package spreadsheet

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/roster"
)

const (
	textNumFmt = 49 // "@"
	dateNumFmt = "m/d/yyyy"
	isoDate    = "2006-01-02"
)

type repository struct {
	path  string
	sheet string
	log   core.Logger
}

// NewRepository returns a roster.Repository for the workbook at `path`.
func NewRepository(path string, conf core.RosterConfig, log core.Logger) roster.Repository {
	return &repository{path: path, sheet: conf.Sheet, log: log}
}

func (repo *repository) sheetName(f *excelize.File) (string, error) {
	if repo.sheet != "" {
		if idx, err := f.GetSheetIndex(repo.sheet); err != nil || idx < 0 {
			return "", errors.Errorf("sheet %q not found", repo.sheet)
		}
		return repo.sheet, nil
	}
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", errors.New("workbook has no sheets")
	}
	return sheets[0], nil
}

func (repo *repository) Read(ctx context.Context) (roster.Table, error) {
	if err := ctx.Err(); err != nil {
		return roster.Table{}, err
	}

	f, err := excelize.OpenFile(repo.path)
	if err != nil {
		return roster.Table{}, errors.Wrapf(err, "opening %s", repo.path)
	}
	defer func() { _ = f.Close() }()

	sheet, err := repo.sheetName(f)
	if err != nil {
		return roster.Table{}, err
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return roster.Table{}, errors.Wrapf(err, "reading sheet %q", sheet)
	}
	if len(rows) == 0 {
		return roster.Table{}, nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	return roster.Table{Header: header, Records: rows[1:]}, nil
}

func (repo *repository) Write(ctx context.Context, snap roster.Snapshot) (roster.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return roster.SaveResult{}, err
	}

	res := roster.SaveResult{Path: repo.path}
	if data, err := os.ReadFile(repo.path); err == nil {
		res.Backup = repo.path + ".bak"
		if err = os.WriteFile(res.Backup, data, 0o644); err != nil {
			repo.log.Warn(fmt.Sprintf("could not back up roster: %v", err), err)
			res.Backup = ""
		}
	}

	err := repo.writeFormatted(snap)
	if err == nil {
		return res, nil
	}
	repo.log.Error(fmt.Sprintf("formatted roster write failed, writing plain copy: %v", err), err)

	if ferr := repo.writePlain(snap); ferr != nil {
		return roster.SaveResult{}, errors.Wrapf(ferr, "plain roster write (after %v)", err)
	}
	res.Fallback = true
	return res, nil
}

// styler derives number-format variants of existing cell styles, keeping fonts, fills and borders.
type styler struct {
	f     *excelize.File
	cache map[string]int
}

func (s *styler) apply(sheet, cell string, numFmt int, customFmt string) error {
	id, err := s.f.GetCellStyle(sheet, cell)
	if err != nil {
		return err
	}
	key := fmt.Sprintf("%d/%d/%s", id, numFmt, customFmt)
	newID, ok := s.cache[key]
	if !ok {
		style, err := s.f.GetStyle(id)
		if err != nil || style == nil {
			style = &excelize.Style{}
		}
		style.NumFmt = numFmt
		style.CustomNumFmt = nil
		if customFmt != "" {
			style.CustomNumFmt = &customFmt
		}
		if newID, err = s.f.NewStyle(style); err != nil {
			return err
		}
		s.cache[key] = newID
	}
	return s.f.SetCellStyle(sheet, cell, cell, newID)
}

// writeFormatted updates the workbook in place: only changed cells are rewritten, hour and
// attendance columns get the text format and the date column a date format.
func (repo *repository) writeFormatted(snap roster.Snapshot) error {
	f, err := excelize.OpenFile(repo.path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", repo.path)
	}
	defer func() { _ = f.Close() }()

	sheet, err := repo.sheetName(f)
	if err != nil {
		return err
	}
	current, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return errors.Wrapf(err, "reading sheet %q", sheet)
	}
	existing := roster.Table{Records: current}
	if len(current) > 0 {
		existing.Records = current[1:]
	}

	textCols := make(map[int]bool, len(snap.TextColumns))
	for _, c := range snap.TextColumns {
		textCols[c] = true
	}
	st := &styler{f: f, cache: make(map[string]int)}

	for i, rec := range snap.Records {
		row := i + 2
		for c, val := range rec {
			cell, err := excelize.CoordinatesToCellName(c+1, row)
			if err != nil {
				return err
			}

			switch {
			case c == snap.DateColumn:
				if i >= len(snap.Dates) || snap.Dates[i].IsZero() {
					continue
				}
				serial := roster.SerialDate(snap.Dates[i])
				if existing.Cell(i, c) != strconv.FormatFloat(serial, 'f', -1, 64) {
					if err = f.SetCellValue(sheet, cell, serial); err != nil {
						return err
					}
				}
				if err = st.apply(sheet, cell, 0, dateNumFmt); err != nil {
					return err
				}

			case textCols[c]:
				if i < len(snap.Dirty) && snap.Dirty[i] && existing.Cell(i, c) != val {
					if err = f.SetCellStr(sheet, cell, val); err != nil {
						return err
					}
				}
				if err = st.apply(sheet, cell, textNumFmt, ""); err != nil {
					return err
				}

			default:
				if i < len(snap.Dirty) && snap.Dirty[i] && existing.Cell(i, c) != val {
					if err = f.SetCellStr(sheet, cell, val); err != nil {
						return err
					}
				}
			}
		}
	}

	if err = f.Save(); err != nil {
		return errors.Wrapf(err, "saving %s", repo.path)
	}
	return nil
}

// writePlain replaces the file with a new workbook holding the data only.
func (repo *repository) writePlain(snap roster.Snapshot) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := repo.sheet
	if sheet == "" {
		sheet = "Sheet1"
	}
	if def := f.GetSheetName(0); def != sheet {
		if err := f.SetSheetName(def, sheet); err != nil {
			return err
		}
	}

	header := make([]interface{}, len(snap.Header))
	for i, h := range snap.Header {
		header[i] = h
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, rec := range snap.Records {
		vals := make([]interface{}, len(rec))
		for c, v := range rec {
			vals[c] = v
		}
		if c := snap.DateColumn; c >= 0 && c < len(vals) && i < len(snap.Dates) && !snap.Dates[i].IsZero() {
			vals[c] = snap.Dates[i].Format(isoDate)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err = f.SetSheetRow(sheet, cell, &vals); err != nil {
			return err
		}
	}
	return f.SaveAs(repo.path)
}
