package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify connectivity and TLS settings against every endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.check(cmd.OutOrStdout())
		},
	}
}

func (c *cli) check(out io.Writer) error {
	ctx, cancel := c.signalContext()
	defer cancel()
	if c.cfg.RequestTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	d, err := c.newDocship(ctx)
	if err != nil {
		return err
	}

	infos, err := d.Check(ctx)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tCLUSTER\tNODE\tVERSION")
	for _, info := range infos {
		version := info.Version.Number
		if info.Version.Distribution != "" {
			version = info.Version.Distribution + " " + version
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Endpoint, info.ClusterName, info.Name, version)
	}
	if ferr := tw.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	return err
}
