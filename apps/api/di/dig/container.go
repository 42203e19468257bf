package dig_container

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/hudoor/hudoor/apps/api/echo"
	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
	"github.com/hudoor/hudoor/core/session"
	emailsvc "github.com/hudoor/hudoor/services/email"
	logsvc "github.com/hudoor/hudoor/services/logger"
	"github.com/hudoor/hudoor/storage/devicefile"
	"github.com/hudoor/hudoor/storage/spreadsheet"
)

// Flags are the command line options of the server.
type Flags struct {
	RosterPath string
	Addr       string
	Duration   time.Duration // zero means the configured duration
}

type LedgerLoggerParam struct {
	dig.In
	Logger core.Logger `name:"ledgerLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	return logger
}

func newLedgerLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "LEDGER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	return logger
}

func newValidate(translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	return validate
}

func newRosterRepository(flags Flags, conf *core.Config, loggerParam LedgerLoggerParam) roster.Repository {
	return spreadsheet.NewRepository(flags.RosterPath, conf.Roster, loggerParam.Logger)
}

func newDeviceStore(conf *core.Config, loggerParam LedgerLoggerParam) device.Store {
	return devicefile.NewStore(conf.Devices.Path, loggerParam.Logger)
}

func newLedger(repo roster.Repository, conf *core.Config) (*roster.Ledger, error) {
	ledger := roster.NewLedger(repo, conf.Roster)
	if err := ledger.Load(context.Background()); err != nil {
		return nil, err
	}
	return ledger, nil
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newSession(
	conf *core.Config,
	logger core.Logger,
	ledger *roster.Ledger,
	registry *device.Registry,
	mailer core.EmailService,
) (*session.Session, error) {
	return session.Start(context.Background(), session.Options{
		Ledger:   ledger,
		Registry: registry,
		Mailer:   mailer,
		Logger:   logger,
		Config:   conf,
	}, time.Now())
}

func newShutdownChannel() chan os.Signal {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	return shutdown
}

func newServer(
	flags Flags,
	conf *core.Config,
	logger core.Logger,
	validate *validator.Validate,
	translator ut.Translator,
	sess *session.Session,
	shutdown chan os.Signal,
) *echoapi.Server {
	addr := flags.Addr
	if addr == "" {
		addr = conf.Server.Address
	}
	return echoapi.NewServer(addr, shutdown, &echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Attendance: sess,
	})
}

// New returns a new dependency injection dig.Container
func New(flags Flags) *dig.Container {
	c := dig.New()

	must(c.Provide(func() Flags { return flags }))
	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newLedgerLogger, dig.Name("ledgerLogger")))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidate))
	must(c.Provide(newRosterRepository))
	must(c.Provide(newDeviceStore))
	must(c.Provide(device.NewRegistry))
	must(c.Provide(newLedger))
	must(c.Provide(newEmailService))
	must(c.Provide(newSession))
	must(c.Provide(newShutdownChannel))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
