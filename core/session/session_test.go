package session_test

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
	"github.com/hudoor/hudoor/core/session"
	emailsvc "github.com/hudoor/hudoor/services/email"
	"github.com/hudoor/hudoor/storage/inmem"
	testutil "github.com/hudoor/hudoor/tests"
)

var (
	lectureDay = time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)
	header     = []string{"lecture", "section", "id", "name", "date", "attendance", "expected", "actual", "absence", "authorized"}
)

func testConfig() *core.Config {
	return &core.Config{
		AppName:  "Hudoor",
		TestMode: true,
		Session:  core.SessionConfig{Duration: time.Minute, SaveOnSubmit: true},
		Roster: core.RosterConfig{
			Columns: core.Columns{
				Date:              "date",
				FullName:          "name",
				StudentID:         "id",
				Attendance:        "attendance",
				ExpectedHours:     "expected",
				ActualHours:       "actual",
				AbsenceHours:      "absence",
				AuthorizedAbsence: "authorized",
				LectureName:       "lecture",
				Section:           "section",
			},
			Labels: core.Labels{Present: "P", Absent: "A", AuthorizedYes: "Y", AuthorizedNo: "N"},
		},
		Operator: core.OperatorConfig{Email: "Lecturer <lecturer@example.com>"},
	}
}

type fixture struct {
	conf   *core.Config
	repo   *inmem.RosterRepository
	ledger *roster.Ledger
	mailer *emailsvc.Recorder
	opts   session.Options
}

func newFixture(t *testing.T, records ...[]string) *fixture {
	t.Helper()
	if len(records) == 0 {
		records = [][]string{
			{"CS101", "S1", "1001", "Mohammed Al-Otaibi", "45355", "A", "2", "", "2", "N"},
			{"CS101", "S1", "1002", "Sara Al-Qahtani", "45355", "", "2", "", "", ""},
			{"CS101", "S1", "1003", "Ahmed Al-Harbi", "45355", "", "2", "", "", ""},
			{"CS101", "S1", "1001", "Mohammed Al-Otaibi", "45356", "", "2", "", "", ""},
		}
	}
	conf := testConfig()
	repo := inmem.NewRosterRepository(header, records...)
	ledger := roster.NewLedger(repo, conf.Roster)
	require.NoError(t, ledger.Load(context.Background()))
	mailer := emailsvc.NewRecorder(conf, testutil.Logger())

	return &fixture{
		conf:   conf,
		repo:   repo,
		ledger: ledger,
		mailer: mailer,
		opts: session.Options{
			Ledger:   ledger,
			Registry: device.NewRegistry(inmem.NewDeviceStore()),
			Mailer:   mailer,
			Logger:   testutil.Logger(),
			Config:   conf,
		},
	}
}

func (f *fixture) start(t *testing.T) *session.Session {
	t.Helper()
	s, err := session.Start(context.Background(), f.opts, lectureDay)
	require.NoError(t, err)
	return s
}

func deviceOf(n int) device.Attributes {
	return device.Attributes{
		UserAgent:     "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/120.0 Mobile Safari/537.36",
		Platform:      "Linux armv81",
		WebGLRenderer: "Mali-G715 #" + strconv.Itoa(n),
		WebGLVendor:   "ARM",
		ScreenWidth:   412,
		ScreenHeight:  915,
		ColorDepth:    24,
		PixelRatio:    2.625,
		Language:      "ar",
		Timezone:      "Asia/Riyadh",
		IPAddress:     fmt.Sprintf("10.0.0.%d", n),
	}
}

func TestStart(t *testing.T) {
	t.Run("no lecture", func(t *testing.T) {
		f := newFixture(t)
		_, err := session.Start(context.Background(), f.opts, lectureDay.AddDate(0, 0, 7))
		assert.Equal(t, roster.ErrNoLecture, err)
	})

	t.Run("resets the day", func(t *testing.T) {
		f := newFixture(t)
		s := f.start(t)

		assert.Len(t, s.Code, 8)
		assert.Equal(t, "CS101", s.Lecture)
		assert.Equal(t, lectureDay, s.Date)
		assert.Equal(t, 1, f.repo.Writes())
		assert.Equal(t, roster.StatusUnset, f.ledger.Rows()[0].Status)
		assert.True(t, s.Valid(" "+s.Code))
		assert.False(t, s.Valid("nope"))
	})

	t.Run("lecture name fallbacks", func(t *testing.T) {
		f := newFixture(t, []string{"", "S7", "1001", "Mohammed Al-Otaibi", "45355", "", "2", "", "", ""})
		assert.Equal(t, "S7", f.start(t).Lecture)

		f = newFixture(t, []string{"", "", "1001", "Mohammed Al-Otaibi", "45355", "", "2", "", "", ""})
		assert.Equal(t, "Unknown Lecture", f.start(t).Lecture)
	})
}

func TestSession_Submit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.start(t)

	submit := func(name, id string, dev int) (session.Attendee, error) {
		return s.Submit(ctx, session.Submission{Code: s.Code, StudentName: name, StudentID: id, Device: deviceOf(dev)})
	}

	att, err := submit("mohamed alotaibi", "1001", 1)
	require.NoError(t, err)
	assert.Equal(t, "Mohammed Al-Otaibi", att.Name)
	assert.Equal(t, "registered", att.Match)
	assert.Equal(t, "Mobile", att.Device.Type)
	assert.Equal(t, "412x915", att.Device.Screen)
	assert.True(t, f.ledger.IsPresent("1001", lectureDay))

	// same student, same device
	att, err = submit("Mohammed Al-Otaibi", "1001", 1)
	require.NoError(t, err)
	assert.Equal(t, "primary", att.Match)
	assert.Len(t, s.Status().Attendees, 1)

	_, err = s.Submit(ctx, session.Submission{Code: "deadbeef", StudentName: "Sara Al-Qahtani", StudentID: "1002"})
	assert.Equal(t, session.ErrInvalidSession, err)

	_, err = submit("Sara Al-Qahtani", "2002", 2)
	var nerr *roster.NotEnrolledError
	require.True(t, errors.As(err, &nerr), "want *NotEnrolledError, got %v", err)
	assert.Equal(t, "Sara Al-Qahtani", nerr.SuggestedName)

	_, err = submit("Ali Al-Harbi", "1003", 3)
	var merr *roster.NameMismatchError
	require.True(t, errors.As(err, &merr), "want *NameMismatchError, got %v", err)
	assert.Equal(t, "Ahmed Al-Harbi", merr.Suggested)

	// Sara borrows Mohammed's phone
	_, err = submit("Sara Al-Qahtani", "1002", 1)
	var derr *device.DeviceMismatchError
	require.True(t, errors.As(err, &derr), "want *DeviceMismatchError, got %v", err)
	assert.Equal(t, "Mohammed Al-Otaibi", derr.Bound)

	// and is not allowed to retry, even from her own phone
	_, err = submit("Sara Al-Qahtani", "1002", 2)
	assert.Same(t, derr, err)
	assert.False(t, f.ledger.IsPresent("1002", lectureDay))

	// the name mismatch did not burn Ahmed's device
	_, err = submit("Ahmed Al-Harbi", "1003", 3)
	require.NoError(t, err)

	st := s.Status()
	assert.False(t, st.Ended)
	assert.Len(t, st.Attendees, 2)
	assert.Equal(t, "2024-03-04", st.Date)
}

func TestSession_SubmitWrongIDThenCorrected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.start(t)

	// Sara types Ahmed's id from her own phone
	_, err := s.Submit(ctx, session.Submission{Code: s.Code, StudentName: "Sara Al-Qahtani", StudentID: "1003", Device: deviceOf(2)})
	var merr *roster.NameMismatchError
	require.True(t, errors.As(err, &merr), "want *NameMismatchError, got %v", err)
	assert.Equal(t, "Ahmed Al-Harbi", merr.Suggested)

	bindings, err := f.opts.Registry.Bindings(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, bindings, "a rejected name binds no device")

	// and corrects it from the same phone
	att, err := s.Submit(ctx, session.Submission{Code: s.Code, StudentName: "Sara Al-Qahtani", StudentID: "1002", Device: deviceOf(2)})
	require.NoError(t, err)
	assert.Equal(t, "registered", att.Match)
	assert.True(t, f.ledger.IsPresent("1002", lectureDay))

	// Ahmed keeps his own device
	_, err = s.Submit(ctx, session.Submission{Code: s.Code, StudentName: "Ahmed Al-Harbi", StudentID: "1003", Device: deviceOf(3)})
	require.NoError(t, err)

	bindings, err = f.opts.Registry.Bindings(ctx, "")
	require.NoError(t, err)
	require.Len(t, bindings, 2)
	assert.Equal(t, "Ahmed Al-Harbi", bindings[0].Student)
	assert.Equal(t, "Sara Al-Qahtani", bindings[1].Student)
}

func TestSession_SubmitSaveError(t *testing.T) {
	f := newFixture(t)
	s := f.start(t)
	f.repo.WriteErr = errors.New("disk full")

	_, err := s.Submit(context.Background(), session.Submission{
		Code: s.Code, StudentName: "Sara Al-Qahtani", StudentID: "1002", Device: deviceOf(2),
	})
	var serr *roster.SaveError
	require.True(t, errors.As(err, &serr), "want *SaveError, got %v", err)
	assert.True(t, f.ledger.IsPresent("1002", lectureDay), "attendance is kept in memory")
}

func TestSession_End(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.start(t)

	_, err := s.Submit(ctx, session.Submission{Code: s.Code, StudentName: "Sara Al-Qahtani", StudentID: "1002", Device: deviceOf(2)})
	require.NoError(t, err)

	rep, err := s.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Swept)
	assert.Equal(t, roster.Summary{Date: lectureDay, Total: 3, Present: 1, Absent: 2}, rep.Summary)
	require.Len(t, rep.Attendees, 1)
	assert.Equal(t, "1002", rep.Attendees[0].StudentID)

	select {
	case <-s.Done():
	default:
		t.Fatal("Done() is not closed after End()")
	}

	// later calls share the first outcome
	writes := f.repo.Writes()
	again, err := s.End(ctx)
	require.NoError(t, err)
	assert.Equal(t, rep, again)
	assert.Equal(t, writes, f.repo.Writes())

	runRep, err := s.Run(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, rep, runRep)

	_, err = s.Submit(ctx, session.Submission{Code: s.Code, StudentName: "Ahmed Al-Harbi", StudentID: "1003", Device: deviceOf(3)})
	assert.Equal(t, session.ErrInvalidSession, err)
	assert.True(t, s.Status().Ended)

	rows := f.ledger.Rows()
	assert.Equal(t, roster.StatusAbsent, rows[0].Status)
	assert.Equal(t, roster.StatusPresent, rows[1].Status)
	assert.Equal(t, roster.StatusAbsent, rows[2].Status)
	assert.Equal(t, roster.StatusUnset, rows[3].Status)

	sent := f.mailer.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "lecturer@example.com", sent[0].To[0].Address)
	assert.Contains(t, sent[0].TextContent, "Sara Al-Qahtani (1002)")
	assert.Contains(t, sent[0].TextContent, "Absent:   2")
}

func TestSession_Run(t *testing.T) {
	t.Run("timer", func(t *testing.T) {
		f := newFixture(t)
		s := f.start(t)

		rep, err := s.Run(context.Background(), 10*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, 3, rep.Swept)
		assert.True(t, s.Status().Ended)
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t)
		s := f.start(t)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		rep, err := s.Run(ctx, time.Hour)
		require.NoError(t, err, "the final save ignores the cancellation")
		assert.Equal(t, 3, rep.Swept)
	})

	t.Run("ended elsewhere", func(t *testing.T) {
		f := newFixture(t)
		s := f.start(t)

		done := make(chan session.Report)
		go func() {
			rep, _ := s.Run(context.Background(), time.Hour)
			done <- rep
		}()
		for s.Status().EndsAt == nil {
			time.Sleep(time.Millisecond)
		}

		rep, err := s.End(context.Background())
		require.NoError(t, err)
		select {
		case runRep := <-done:
			assert.Equal(t, rep, runRep)
		case <-time.After(5 * time.Second):
			t.Fatal("Run() did not return after End()")
		}
	})
}

func TestSession_ConcurrentEnd(t *testing.T) {
	ctx := context.Background()
	const students = 40

	records := make([][]string, students)
	for i := range records {
		records[i] = []string{"CS101", "S1", strconv.Itoa(5000 + i), fmt.Sprintf("Student Number %03d", i), "45355", "", "2", "", "", ""}
	}
	f := newFixture(t, records...)
	f.conf.Session.SaveOnSubmit = false
	s := f.start(t)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = make(map[string]bool)
	)
	for i := 0; i < students; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := strconv.Itoa(5000 + i)
			_, err := s.Submit(ctx, session.Submission{
				Code: s.Code, StudentName: fmt.Sprintf("Student Number %03d", i), StudentID: id, Device: deviceOf(i),
			})
			if err == nil {
				mu.Lock()
				accepted[id] = true
				mu.Unlock()
				return
			}
			assert.Equal(t, session.ErrInvalidSession, err)
		}(i)
		if i == students/2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.End(ctx)
				assert.NoError(t, err)
			}()
		}
	}
	wg.Wait()

	// every submission was either counted present or rejected, never lost
	for _, r := range f.ledger.Rows() {
		if accepted[r.StudentID] {
			assert.Equal(t, roster.StatusPresent, r.Status, r.StudentID)
		} else {
			assert.Equal(t, roster.StatusAbsent, r.Status, r.StudentID)
		}
	}
}
