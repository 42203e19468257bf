package main

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"
)

func (cli *commandLine) devices(student string) error {
	bindings, err := cli.registry.Bindings(context.Background(), student)
	if err != nil {
		return err
	}
	if len(bindings) == 0 {
		fmt.Fprintln(cli.out, "no registered devices")
		return nil
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STUDENT\tPLATFORM\tRENDERER\tREGISTERED\tFINGERPRINT")
	for _, b := range bindings {
		fp := b.Primary
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			b.Student, b.Details.Platform, b.Details.WebGLRenderer, b.RegisteredAt.Format(time.RFC3339), fp)
	}
	return w.Flush()
}
