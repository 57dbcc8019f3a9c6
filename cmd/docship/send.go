package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/bft-labs/docship/internal/adapters/ndjson"
	"github.com/bft-labs/docship/internal/app"
	"github.com/bft-labs/docship/pkg/docship"
	"github.com/bft-labs/docship/pkg/log"
)

func (c *cli) sendCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "send [file]",
		Short: "Write NDJSON operations from a file or stdin",
		Long: `Read one operation per line and write them in bulk:

  {"op":"index","index":"logs","id":"1","doc":{"msg":"hello"}}
  {"op":"upsert","id":"1","doc":{"level":"warn"}}
  {"op":"delete","id":"2"}

"op" defaults to index and "index" to --index. Reads stdin when no file or
"-" is given. Exits non-zero when any operation fails.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, name := cmd.InOrStdin(), "stdin"
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				in, name = f, filepath.Base(args[0])
			}
			return c.send(in, name, cmd.OutOrStdout())
		},
	}
}

// summary counts terminal outcomes and logs permanent failures.
// The source reports rejected lines from its own goroutine.
type summary struct {
	logger    log.Logger
	succeeded atomic.Int64
	failed    atomic.Int64
}

func (s *summary) OnOutcome(op docship.WriteOperation, out docship.Outcome) {
	if out.Class == docship.OutcomeSuccess {
		s.succeeded.Add(1)
		return
	}
	s.failed.Add(1)
	s.logger.Warn("operation failed",
		log.String("origin", op.Origin.String()),
		log.String("key", op.Key()),
		log.Int("status", out.Status),
		log.String("reason", out.Reason),
		log.Int("attempts", out.Attempts),
	)
}

func (c *cli) send(in io.Reader, name string, out io.Writer) error {
	ctx, cancel := c.signalContext()
	defer cancel()

	sum := &summary{logger: c.logger}
	source := ndjson.NewSource(name, in, c.cfg.Index, sum, c.logger)
	defer source.Close()

	d, err := c.newDocship(ctx, docship.WithResultHandler(sum))
	if err != nil {
		return err
	}
	start := time.Now()
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start docship: %w", err)
	}

	n, perr := app.NewPump(app.PumpConfig{}, source, d, c.logger).Run(ctx)
	serr := d.Stop()

	fmt.Fprintf(out, "%s submitted, %s succeeded, %s failed, %s lines skipped in %s\n",
		humanize.Comma(int64(n)),
		humanize.Comma(sum.succeeded.Load()),
		humanize.Comma(sum.failed.Load()-int64(source.Skipped())),
		humanize.Comma(int64(source.Skipped())),
		time.Since(start).Round(time.Millisecond),
	)

	if err := d.Err(); err != nil {
		return err
	}
	if perr != nil {
		if errors.Is(perr, ctx.Err()) {
			return errors.New("interrupted")
		}
		return perr
	}
	if serr != nil {
		return fmt.Errorf("stop docship: %w", serr)
	}
	if f := sum.failed.Load(); f > 0 {
		return fmt.Errorf("%d operations failed", f)
	}
	return nil
}
