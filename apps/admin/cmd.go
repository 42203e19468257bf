package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
)

const dateLayout = "2006-01-02"

var (
	errHelp = errors.New("help provided")

	nowFunc = time.Now // mockable
)

type commandLine struct {
	out        io.Writer
	rosterConf core.RosterConfig
	openRoster func(path string) roster.Repository
	registry   *device.Registry
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  lectures -file PATH [-date YYYY-MM-DD] - list the students scheduled on a day")
	fmt.Fprintln(cli.out, "  reset -file PATH [-date YYYY-MM-DD]    - clear a day's attendance and save the roster")
	fmt.Fprintln(cli.out, "  sweep -file PATH [-date YYYY-MM-DD]    - mark a day's unmarked students absent and save the roster")
	fmt.Fprintln(cli.out, "  devices [-student NAME]                - list registered devices")
}

// rosterFlags are the flags shared by the roster subcommands.
type rosterFlags struct {
	set  *flag.FlagSet
	file *string
	date *string
}

func newRosterFlags(name string) rosterFlags {
	set := flag.NewFlagSet(name, flag.ExitOnError)
	return rosterFlags{
		set:  set,
		file: set.String("file", "", "The roster workbook (.xlsx)."),
		date: set.String("date", "", "The lecture day, YYYY-MM-DD. Defaults to today."),
	}
}

// parse returns the roster path and the day to work on.
func (f rosterFlags) parse(args []string) (string, time.Time, error) {
	if err := f.set.Parse(args); err != nil {
		return "", time.Time{}, err
	}
	if *f.file == "" {
		f.set.Usage()
		return "", time.Time{}, errHelp
	}
	if *f.date == "" {
		return *f.file, roster.DateOf(nowFunc()), nil
	}
	date, err := time.Parse(dateLayout, *f.date)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", *f.date)
	}
	return *f.file, date, nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	devicesCmd := flag.NewFlagSet("devices", flag.ExitOnError)
	devicesStudent := devicesCmd.String("student", "", "Only list the devices of this student.")

	switch args[1] {
	case "lectures", "reset", "sweep":
		path, date, err := newRosterFlags(args[1]).parse(args[2:])
		if err != nil {
			return err
		}
		ledger, err := cli.loadLedger(path)
		if err != nil {
			return err
		}
		switch args[1] {
		case "lectures":
			return cli.lectures(ledger, date)
		case "reset":
			return cli.reset(ledger, date)
		default:
			return cli.sweep(ledger, date)
		}
	case "devices":
		if err := devicesCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.devices(*devicesStudent)
	default:
		cli.printUsage()
		return errHelp
	}
}
