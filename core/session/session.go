// Package session runs one attendance session: it accepts student submissions while open, then
// sweeps the students who did not show up and persists the roster exactly once.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
)

const unknownLecture = "Unknown Lecture"

// ErrInvalidSession is returned for submissions with a wrong code or after the session ended.
var ErrInvalidSession = errors.New("invalid or expired session")

type (
	Options struct {
		Ledger   *roster.Ledger
		Registry *device.Registry
		Mailer   core.EmailService // optional
		Logger   core.Logger
		Config   *core.Config
	}

	Session struct {
		Code      string
		Lecture   string
		Date      time.Time
		StartedAt time.Time

		ledger   *roster.Ledger
		registry *device.Registry
		mailer   core.EmailService
		log      core.Logger
		conf     *core.Config
		now      func() time.Time

		mu        sync.Mutex
		ended     bool
		endsAt    time.Time
		attendees []Attendee
		failures  map[string]error // device rejections by student id

		endOnce sync.Once
		done    chan struct{}
		report  Report
		endErr  error
	}
)

// Start opens the session of `today`. The roster must be loaded; its rows of the day are reset
// and saved before any submission is accepted. It returns roster.ErrNoLecture when nothing is
// scheduled.
func Start(ctx context.Context, opts Options, today time.Time) (*Session, error) {
	rows, err := opts.Ledger.LecturesScheduled(today)
	if err != nil {
		return nil, err
	}
	if _, err = opts.Ledger.Reset(today); err != nil {
		return nil, errors.Wrap(err, "resetting attendance")
	}
	if _, err = opts.Ledger.Save(ctx); err != nil {
		return nil, errors.Wrap(err, "saving reset roster")
	}

	s := &Session{
		Code:     newCode(),
		Lecture:  lectureName(rows),
		Date:     roster.DateOf(today),
		ledger:   opts.Ledger,
		registry: opts.Registry,
		mailer:   opts.Mailer,
		log:      opts.Logger,
		conf:     opts.Config,
		now:      time.Now,
		failures: make(map[string]error),
		done:     make(chan struct{}),
	}
	s.StartedAt = s.now()
	s.log.Info(fmt.Sprintf("session %s started for %q", s.Code, s.Lecture), map[string]interface{}{
		"date":     s.Date.Format("2006-01-02"),
		"students": len(rows),
	})
	return s, nil
}

func newCode() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func lectureName(rows []roster.Row) string {
	for _, r := range rows {
		if r.LectureName != "" {
			return r.LectureName
		}
	}
	for _, r := range rows {
		if r.Section != "" {
			return r.Section
		}
	}
	return unknownLecture
}

func studentKey(id string) string {
	return strings.ToLower(core.CollapseSpaces(id))
}

// Valid reports whether `code` opens this session's form.
func (s *Session) Valid(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.ended && strings.TrimSpace(code) == s.Code
}

// Submit records the attendance of one student. It fails with ErrInvalidSession,
// *roster.NotEnrolledError, *roster.NameMismatchError, *device.DeviceMismatchError,
// *device.DeviceAlreadyBoundError or *roster.SaveError; any other error is internal.
func (s *Session) Submit(ctx context.Context, sub Submission) (Attendee, error) {
	if !s.Valid(sub.Code) {
		return Attendee{}, ErrInvalidSession
	}
	name := core.CollapseSpaces(sub.StudentName)
	id := strings.TrimSpace(sub.StudentID)
	person := core.Person{ID: id, Name: name}

	enrolled, err := s.ledger.CheckEnrolled(name, id, s.Date)
	if err != nil {
		return Attendee{}, err
	}

	s.mu.Lock()
	cached := s.failures[studentKey(id)]
	s.mu.Unlock()
	if cached != nil {
		return Attendee{}, cached
	}

	// devices are bound to the roster name, so spelling variants stay the same student
	fps := device.Derive(sub.Device)
	match, err := s.checkDevice(ctx, enrolled.FullName, fps)
	if err != nil {
		if isDeviceRejection(err) {
			s.mu.Lock()
			s.failures[studentKey(id)] = err
			s.mu.Unlock()
			s.log.Warn(fmt.Sprintf("device rejected for %s: %v", id, err), person)
		}
		return Attendee{}, err
	}

	att, err := s.markPresent(name, id, sub.Device, match)
	if err != nil {
		return Attendee{}, err
	}

	if s.conf.Session.SaveOnSubmit {
		res, err := s.ledger.Save(ctx)
		if err != nil {
			s.log.Error(fmt.Sprintf("saving roster after %s: %v", id, err), err, person)
			return att, err
		}
		if res.Fallback {
			s.log.Warn("roster saved without formatting", map[string]interface{}{"path": res.Path}, person)
		}
	}
	return att, nil
}

// checkDevice verifies the device, registering it when nobody owns it yet.
func (s *Session) checkDevice(ctx context.Context, name string, fps device.Fingerprints) (string, error) {
	v, err := s.registry.Verify(ctx, name, fps)
	if err != nil {
		return "", err
	}
	if v.Outcome == device.Verified {
		return v.Tier.String(), nil
	}
	if err = s.registry.Register(ctx, name, fps); err != nil {
		return "", err
	}
	return "registered", nil
}

func isDeviceRejection(err error) bool {
	switch err.(type) {
	case *device.DeviceMismatchError, *device.DeviceAlreadyBoundError:
		return true
	}
	return false
}

// markPresent updates the ledger unless the session was swept in the meantime.
func (s *Session) markPresent(name, id string, attrs device.Attributes, match string) (Attendee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return Attendee{}, ErrInvalidSession
	}

	already := s.ledger.IsPresent(id, s.Date)
	row, err := s.ledger.MarkPresent(name, id, s.Date)
	if err != nil {
		return Attendee{}, err
	}

	att := Attendee{
		Name:      row.FullName,
		StudentID: row.StudentID,
		At:        s.now(),
		Match:     match,
		Device:    Summarize(attrs),
	}
	if !already {
		s.attendees = append(s.attendees, att)
	}
	return att, nil
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Code:      s.Code,
		Lecture:   s.Lecture,
		Date:      s.Date.Format("2006-01-02"),
		StartedAt: s.StartedAt,
		Ended:     s.ended,
		Attendees: append([]Attendee{}, s.attendees...),
	}
	if !s.endsAt.IsZero() {
		endsAt := s.endsAt
		st.EndsAt = &endsAt
	}
	return st
}

// Done is closed once the session has ended.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Run keeps the session open for `duration`, then ends it. It returns early when `ctx` is
// cancelled or End is called.
func (s *Session) Run(ctx context.Context, duration time.Duration) (Report, error) {
	s.mu.Lock()
	s.endsAt = s.now().Add(duration)
	s.mu.Unlock()

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		s.log.Info(fmt.Sprintf("session %s time is up", s.Code))
	case <-ctx.Done():
		s.log.Info(fmt.Sprintf("session %s interrupted", s.Code))
	case <-s.done:
	}
	return s.End(ctx)
}

// End sweeps absent students and saves the roster. Only the first call does the work; every
// call returns the same report.
func (s *Session) End(ctx context.Context) (Report, error) {
	s.endOnce.Do(func() {
		s.report, s.endErr = s.finish(context.WithoutCancel(ctx))
		close(s.done)
	})
	return s.report, s.endErr
}

func (s *Session) finish(ctx context.Context) (Report, error) {
	s.mu.Lock()
	s.ended = true
	swept, err := s.ledger.MarkAllAbsent(s.Date)
	attendees := append([]Attendee(nil), s.attendees...)
	s.mu.Unlock()
	if err != nil {
		return Report{}, errors.Wrap(err, "marking absent students")
	}

	rep := Report{
		Code:      s.Code,
		Lecture:   s.Lecture,
		Date:      s.Date,
		StartedAt: s.StartedAt,
		EndedAt:   s.now(),
		Summary:   s.ledger.Summary(s.Date),
		Swept:     swept,
		Attendees: attendees,
	}

	rep.Save, err = s.ledger.Save(ctx)
	if err != nil {
		s.log.Error(fmt.Sprintf("final roster save failed: %v", err), err)
		return rep, err
	}
	s.log.Info(fmt.Sprintf("session %s ended", s.Code), map[string]interface{}{
		"present":  rep.Summary.Present,
		"absent":   rep.Summary.Absent,
		"swept":    rep.Swept,
		"fallback": rep.Save.Fallback,
	})

	s.mailReport(rep)
	return rep, nil
}
