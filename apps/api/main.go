package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"go.uber.org/dig"

	dig_container "github.com/hudoor/hudoor/apps/api/di/dig"
	echoapi "github.com/hudoor/hudoor/apps/api/echo"
	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/roster"
	"github.com/hudoor/hudoor/core/session"
)

const (
	minDuration = 1
	maxDuration = 120
)

func main() {
	var (
		flags   dig_container.Flags
		minutes int
	)
	flag.StringVar(&flags.RosterPath, "file", "", "the roster workbook (.xlsx)")
	flag.IntVar(&minutes, "duration", 0, "session duration in minutes, 1 to 120 (default from config)")
	flag.StringVar(&flags.Addr, "addr", "", "listen address (default from config)")
	flag.Parse()

	if flags.RosterPath == "" {
		flag.Usage()
		os.Exit(2)
	}
	if minutes != 0 {
		if minutes < minDuration || minutes > maxDuration {
			log.Fatalf("-duration must be between %d and %d minutes", minDuration, maxDuration)
		}
		flags.Duration = time.Duration(minutes) * time.Minute
	}

	c := dig_container.New(flags)
	if err := c.Invoke(run); err != nil {
		if dig.RootCause(err) == roster.ErrNoLecture {
			log.Println("No lecture scheduled for today, nothing to do.")
			return
		}
		log.Fatal(err)
	}
}

func run(
	flags dig_container.Flags,
	conf *core.Config,
	logger core.Logger,
	sess *session.Session,
	server *echoapi.Server,
) {
	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	duration := flags.Duration
	if duration == 0 {
		duration = conf.Session.Duration
	}

	// =========================================================================
	// Start API Service

	go func() {
		server.Start()
	}()
	logger.Info(fmt.Sprintf("attendance form: %s", formURL(server.Addr(), sess.Code)))

	// =========================================================================
	// Start Session

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		rep session.Report
		err error
	}
	ended := make(chan result, 1)
	go func() {
		rep, err := sess.Run(ctx, duration)
		ended <- result{rep: rep, err: err}
	}()

	// =========================================================================
	// Shutdown

	var res result
	select {
	case err := <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)
		cancel()
		res = <-ended

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
		cancel()
		res = <-ended

	case res = <-ended:
	}

	if res.err != nil {
		logger.Error(fmt.Sprintf("session ended with error: %v", res.err), res.err)
	} else {
		logger.Info(fmt.Sprintf(
			"%s %s: %d present, %d absent",
			res.rep.Lecture, res.rep.Date.Format("2006-01-02"), res.rep.Summary.Present, res.rep.Summary.Absent,
		))
	}

	// give outstanding requests a deadline for completion
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancelShutdown()

	// asking listener to shut down and shed load
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}

// formURL is the address students open, usually through the session's QR code.
func formURL(addr, code string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host, port = addr, "80"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = localIP()
	}
	return fmt.Sprintf("http://%s/attendance?session=%s", net.JoinHostPort(host, port), code)
}

// localIP returns the outbound LAN address of this machine, or localhost.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "localhost"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "localhost"
}
