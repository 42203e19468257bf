package main

import (
	"log"
	"os"

	"github.com/hudoor/hudoor/core"
	"github.com/hudoor/hudoor/core/device"
	"github.com/hudoor/hudoor/core/roster"
	logsvc "github.com/hudoor/hudoor/services/logger"
	"github.com/hudoor/hudoor/storage/devicefile"
	"github.com/hudoor/hudoor/storage/spreadsheet"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.NewRollbarLogger(log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile), conf)

	// start CLI
	cli := commandLine{
		out:        os.Stdout,
		rosterConf: conf.Roster,
		openRoster: func(path string) roster.Repository {
			return spreadsheet.NewRepository(path, conf.Roster, logger)
		},
		registry: device.NewRegistry(devicefile.NewStore(conf.Devices.Path, logger)),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error(err.Error(), err)
		}
		os.Exit(1)
	}
}
