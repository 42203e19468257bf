package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/hudoor/hudoor/core/roster"
)

func (cli *commandLine) loadLedger(path string) (*roster.Ledger, error) {
	ledger := roster.NewLedger(cli.openRoster(path), cli.rosterConf)
	if err := ledger.Load(context.Background()); err != nil {
		return nil, err
	}
	return ledger, nil
}

func (cli *commandLine) lectures(ledger *roster.Ledger, date time.Time) error {
	rows, err := ledger.LecturesScheduled(date)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tLECTURE\tSECTION\tSTATUS")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.StudentID, r.FullName, r.LectureName, r.Section, r.Status)
	}
	if err = w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d student(s) scheduled on %s\n", len(rows), date.Format(dateLayout))
	return nil
}

func (cli *commandLine) reset(ledger *roster.Ledger, date time.Time) error {
	n, err := ledger.Reset(date)
	if err != nil {
		return err
	}
	if n == 0 {
		return roster.ErrNoLecture
	}
	if err = cli.save(ledger); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d row(s) reset for %s\n", n, date.Format(dateLayout))
	return nil
}

func (cli *commandLine) sweep(ledger *roster.Ledger, date time.Time) error {
	if _, err := ledger.LecturesScheduled(date); err != nil {
		return err
	}
	n, err := ledger.MarkUnmarkedAbsent(date)
	if err != nil {
		return err
	}
	if err = cli.save(ledger); err != nil {
		return err
	}
	sum := ledger.Summary(date)
	fmt.Fprintf(cli.out, "%d row(s) marked absent for %s: %d present, %d absent\n",
		n, date.Format(dateLayout), sum.Present, sum.Absent)
	return nil
}

func (cli *commandLine) save(ledger *roster.Ledger) error {
	res, err := ledger.Save(context.Background())
	if err != nil {
		return err
	}
	if res.Fallback {
		fmt.Fprintf(cli.out, "warning: formatting could not be kept, roster written as plain data to %s\n", res.Path)
	}
	return nil
}
