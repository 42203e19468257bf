package roster

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/namematch"
)

// layout maps roster fields to sheet column indices; optional columns are -1 when absent.
type layout struct {
	date, fullName, studentID             int
	attendance, expected, actual, absence int
	authorized, lectureName, section      int
}

// Ledger holds one roster spreadsheet for one term: rows, attendance state and the present-set
// of the running session. All methods are safe for concurrent use.
type Ledger struct {
	repo   Repository
	cols   core.Columns
	labels core.Labels

	mu      sync.Mutex
	loaded  bool
	table   Table
	layout  layout
	rows    []Row
	dirty   []bool
	present map[Key]struct{}
}

func NewLedger(repo Repository, conf core.RosterConfig) *Ledger {
	return &Ledger{
		repo:    repo,
		cols:    conf.Columns,
		labels:  conf.Labels,
		present: make(map[Key]struct{}),
	}
}

// Load reads the roster and normalizes its rows. It fails with a *FileFormatError when
// required columns are missing.
func (l *Ledger) Load(ctx context.Context) error {
	tbl, err := l.repo.Read(ctx)
	if err != nil {
		return errors.Wrap(err, "reading roster")
	}
	lay, err := l.resolveLayout(tbl.Header)
	if err != nil {
		return err
	}

	rows := make([]Row, len(tbl.Records))
	for i := range tbl.Records {
		rows[i] = l.parseRow(tbl, lay, i)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.table = tbl
	l.layout = lay
	l.rows = rows
	l.dirty = make([]bool, len(rows))
	l.present = make(map[Key]struct{})
	l.loaded = true
	return nil
}

func (l *Ledger) resolveLayout(header []string) (layout, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if _, ok := idx[h]; !ok {
			idx[h] = i
		}
	}
	var missing []string
	find := func(name string, required bool) int {
		if i, ok := idx[strings.TrimSpace(name)]; ok && name != "" {
			return i
		}
		if required {
			missing = append(missing, name)
		}
		return -1
	}

	lay := layout{
		studentID:   find(l.cols.StudentID, true),
		fullName:    find(l.cols.FullName, true),
		date:        find(l.cols.Date, true),
		attendance:  find(l.cols.Attendance, true),
		expected:    find(l.cols.ExpectedHours, true),
		actual:      find(l.cols.ActualHours, true),
		absence:     find(l.cols.AbsenceHours, true),
		authorized:  find(l.cols.AuthorizedAbsence, true),
		lectureName: find(l.cols.LectureName, false),
		section:     find(l.cols.Section, false),
	}
	if len(missing) > 0 {
		return layout{}, &FileFormatError{Missing: missing}
	}
	return lay, nil
}

func (l *Ledger) parseRow(tbl Table, lay layout, i int) Row {
	date, _ := ParseDate(tbl.Cell(i, lay.date))
	row := Row{
		Index:         i,
		FullName:      strings.TrimSpace(tbl.Cell(i, lay.fullName)),
		StudentID:     strings.TrimSpace(tbl.Cell(i, lay.studentID)),
		Date:          date,
		ExpectedHours: tbl.Cell(i, lay.expected),
		ActualHours:   tbl.Cell(i, lay.actual),
		AbsenceHours:  tbl.Cell(i, lay.absence),
		LectureName:   strings.TrimSpace(tbl.Cell(i, lay.lectureName)),
		Section:       strings.TrimSpace(tbl.Cell(i, lay.section)),
	}
	switch strings.TrimSpace(tbl.Cell(i, lay.attendance)) {
	case l.labels.Present:
		row.Status = StatusPresent
	case l.labels.Absent:
		row.Status = StatusAbsent
	}
	switch strings.TrimSpace(tbl.Cell(i, lay.authorized)) {
	case l.labels.AuthorizedYes:
		row.Authorized = AuthorizedYes
	case l.labels.AuthorizedNo:
		row.Authorized = AuthorizedNo
	}
	return row
}

// Rows returns a copy of every roster row.
func (l *Ledger) Rows() []Row {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Row(nil), l.rows...)
}

// LecturesScheduled returns the rows scheduled on `today`, or ErrNoLecture.
func (l *Ledger) LecturesScheduled(today time.Time) ([]Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return nil, ErrNotLoaded
	}

	var rows []Row
	for _, r := range l.rows {
		if r.On(today) {
			rows = append(rows, r)
		}
	}
	if len(rows) == 0 {
		return nil, ErrNoLecture
	}
	return rows, nil
}

// Reset clears the attendance, absence, authorized and actual-hours fields of every row on
// `date` and forgets the date's present-set entries. It returns the number of rows on `date`.
func (l *Ledger) Reset(date time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return 0, ErrNotLoaded
	}

	date = DateOf(date)
	var n int
	for i := range l.rows {
		r := &l.rows[i]
		if !r.On(date) {
			continue
		}
		r.Status = StatusUnset
		r.AbsenceHours = ""
		r.Authorized = AuthorizedUnset
		r.ActualHours = ""
		l.dirty[i] = true
		n++
	}
	for k := range l.present {
		if k.Date.Equal(date) {
			delete(l.present, k)
		}
	}
	return n, nil
}

// CheckEnrolled returns the first row of `studentID` on `date` without changing anything. It
// fails like MarkPresent: a *NotEnrolledError for an unknown (`studentID`, `date`), suggesting a
// roster name when `name` matches another student of that date, or a *NameMismatchError when
// `name` is too different from the roster name.
func (l *Ledger) CheckEnrolled(name, studentID string, date time.Time) (Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return Row{}, ErrNotLoaded
	}

	name = namematch.Normalize(name)
	studentID = strings.TrimSpace(studentID)
	for _, r := range l.rows {
		if r.StudentID == studentID && r.On(date) {
			if err := nameMatches(name, r); err != nil {
				return Row{}, err
			}
			return r, nil
		}
	}
	return Row{}, l.notEnrolled(name, studentID, DateOf(date))
}

func nameMatches(name string, r Row) *NameMismatchError {
	rosterName := namematch.Normalize(r.FullName)
	if ratio := namematch.Ratio(name, rosterName); ratio < namematch.Threshold {
		return &NameMismatchError{Submitted: name, Suggested: rosterName, Ratio: ratio}
	}
	return nil
}

// notEnrolled builds the error for an unknown (`studentID`, `date`). Callers hold l.mu.
func (l *Ledger) notEnrolled(name, studentID string, date time.Time) *NotEnrolledError {
	var names []string
	for _, r := range l.rows {
		if r.On(date) {
			names = append(names, r.FullName)
		}
	}
	nerr := &NotEnrolledError{StudentID: studentID, Date: date}
	if best, _, ok := namematch.Best(name, names); ok {
		nerr.SuggestedName = best
	}
	return nerr
}

// MarkPresent marks the rows of (`studentID`, `date`) present, provided `name` is similar
// enough to the roster name. It only changes in-memory state.
func (l *Ledger) MarkPresent(name, studentID string, date time.Time) (Row, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return Row{}, ErrNotLoaded
	}

	name = namematch.Normalize(name)
	studentID = strings.TrimSpace(studentID)
	date = DateOf(date)

	var matched []int
	for i, r := range l.rows {
		if r.On(date) && r.StudentID == studentID {
			matched = append(matched, i)
		}
	}
	if len(matched) == 0 {
		return Row{}, l.notEnrolled(name, studentID, date)
	}

	if err := nameMatches(name, l.rows[matched[0]]); err != nil {
		return Row{}, err
	}

	for _, i := range matched {
		r := &l.rows[i]
		r.Status = StatusPresent
		r.ActualHours = r.ExpectedHours
		r.AbsenceHours = ""
		l.dirty[i] = true
		l.present[r.key()] = struct{}{}
	}
	return l.rows[matched[0]], nil
}

// IsPresent reports whether `studentID` was marked present on `date` during this session.
func (l *Ledger) IsPresent(studentID string, date time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	studentID = strings.TrimSpace(studentID)
	for k := range l.present {
		if k.StudentID == studentID && k.Date.Equal(DateOf(date)) {
			return true
		}
	}
	return false
}

// MarkAllAbsent marks every row on `date` that is not in the present-set as absent and
// returns how many rows it marked.
func (l *Ledger) MarkAllAbsent(date time.Time) (int, error) {
	return l.markAbsent(date, func(r Row) bool {
		_, ok := l.present[r.key()]
		return !ok
	})
}

// MarkUnmarkedAbsent marks the rows on `date` that have no attendance status yet as absent.
// Unlike MarkAllAbsent it keeps statuses read from the file.
func (l *Ledger) MarkUnmarkedAbsent(date time.Time) (int, error) {
	return l.markAbsent(date, func(r Row) bool { return r.Status == StatusUnset })
}

func (l *Ledger) markAbsent(date time.Time, absent func(Row) bool) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return 0, ErrNotLoaded
	}

	date = DateOf(date)
	var n int
	for i := range l.rows {
		r := &l.rows[i]
		if !r.On(date) || !absent(*r) {
			continue
		}
		r.Status = StatusAbsent
		r.AbsenceHours = r.ExpectedHours
		r.ActualHours = ""
		r.Authorized = AuthorizedNo
		l.dirty[i] = true
		n++
	}
	return n, nil
}

// Summary counts the rows of `date` by status.
func (l *Ledger) Summary(date time.Time) Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	sum := Summary{Date: DateOf(date)}
	for _, r := range l.rows {
		if !r.On(date) {
			continue
		}
		sum.Total++
		switch r.Status {
		case StatusPresent:
			sum.Present++
		case StatusAbsent:
			sum.Absent++
		default:
			sum.Unset++
		}
	}
	return sum
}

// Save writes the current rows back to the roster file. A *SaveError is returned only when
// the repository could write neither the formatted file nor the plain fallback.
func (l *Ledger) Save(ctx context.Context) (SaveResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return SaveResult{}, ErrNotLoaded
	}

	res, err := l.repo.Write(ctx, l.snapshot())
	if err != nil {
		return res, &SaveError{Err: err}
	}
	return res, nil
}

func (l *Ledger) statusLabel(s Status) string {
	switch s {
	case StatusPresent:
		return l.labels.Present
	case StatusAbsent:
		return l.labels.Absent
	}
	return ""
}

func (l *Ledger) authorizedLabel(a Authorized) string {
	switch a {
	case AuthorizedYes:
		return l.labels.AuthorizedYes
	case AuthorizedNo:
		return l.labels.AuthorizedNo
	}
	return ""
}

// snapshot copies the table with dirty rows applied. Callers hold l.mu.
func (l *Ledger) snapshot() Snapshot {
	lay := l.layout
	records := make([][]string, len(l.table.Records))
	dates := make([]time.Time, len(l.rows))
	for i, rec := range l.table.Records {
		width := len(l.table.Header)
		if len(rec) > width {
			width = len(rec)
		}
		cp := make([]string, width)
		copy(cp, rec)
		if l.dirty[i] {
			r := l.rows[i]
			cp[lay.attendance] = l.statusLabel(r.Status)
			cp[lay.actual] = r.ActualHours
			cp[lay.absence] = r.AbsenceHours
			cp[lay.authorized] = l.authorizedLabel(r.Authorized)
			l.table.Records[i] = append([]string(nil), cp...)
		}
		records[i] = cp
		dates[i] = l.rows[i].Date
	}

	return Snapshot{
		Table:       Table{Header: append([]string(nil), l.table.Header...), Records: records},
		Dates:       dates,
		Dirty:       append([]bool(nil), l.dirty...),
		TextColumns: []int{lay.attendance, lay.expected, lay.actual, lay.absence},
		DateColumn:  lay.date,
	}
}
