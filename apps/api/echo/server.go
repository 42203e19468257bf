package echoapi

import (
	"context"
	"net/http"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/session"
)

type (
	// Attendance is the running attendance session.
	Attendance interface {
		Valid(code string) bool
		Submit(ctx context.Context, sub session.Submission) (session.Attendee, error)
		Status() session.Status
		End(ctx context.Context) (session.Report, error)
	}

	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Attendance Attendance
	}

	Server struct {
		app      *echo.Echo
		addr     string
		deps     *Deps
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(addr string, shutdown chan os.Signal, deps *Deps) *Server {
	if shutdown == nil {
		shutdown = make(chan os.Signal, 1)
	}
	s := &Server{
		app:      echo.New(),
		addr:     addr,
		deps:     deps,
		errors:   make(chan error, 1),
		shutdown: shutdown,
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator)
	s.app.Renderer = newRenderer()

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(middleware.RequestID())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.GET("/", home)
	registerAttendanceAPI(s.app, s.deps)
	registerOperatorAPI(s.app, s.deps)
}

// Start listens until the server is shut down; unexpected failures are sent to Errors().
func (s *Server) Start() {
	if err := s.app.Start(s.addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "QR Attendance System Server Running")
}

func (s *Server) Addr() string {
	return s.addr
}
