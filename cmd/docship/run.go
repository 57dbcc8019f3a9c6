package main

import (
	"context"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/bft-labs/docship/internal/adapters/kafka"
	"github.com/bft-labs/docship/internal/app"
	"github.com/bft-labs/docship/pkg/docship"
	"github.com/bft-labs/docship/pkg/log"
	"github.com/bft-labs/docship/plugins/certwatcher"
)

func (c *cli) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Stream Kafka topics into Elasticsearch",
		Long: `Consume the configured topics and write every record to Elasticsearch.
Offsets are committed only once the record's write has a terminal outcome;
permanently failed records go to the dead-letter topic when one is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.run()
		},
	}
}

func (c *cli) run() error {
	if err := c.cfg.ValidateKafka(); err != nil {
		return err
	}

	ctx, cancel := c.signalContext()
	defer cancel()

	source, committer, err := kafka.New(c.cfg.Kafka(), c.logger)
	if err != nil {
		return fmt.Errorf("create kafka source: %w", err)
	}
	defer source.Close()
	defer committer.Close()

	d, err := c.newDocship(ctx,
		docship.WithResultHandler(committer),
		certwatcher.WithCertWatcher(certwatcher.DefaultConfig()),
	)
	if err != nil {
		return err
	}
	if err := d.Start(ctx); err != nil {
		return fmt.Errorf("start docship: %w", err)
	}

	// offsets keep committing until the sink has reported every outcome
	commitCtx, stopCommits := context.WithCancel(context.Background())
	commitDone := make(chan error, 1)
	go func() { commitDone <- committer.Run(commitCtx) }()

	// a failed sink cannot take more work; stop reading
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if d.Status() == docship.StateFailed {
					c.logger.Error("docship failed", log.Err(d.Err()))
					cancel()
					return
				}
			}
		}
	}()

	n, perr := app.NewPump(app.PumpConfig{}, source, d, c.logger).Run(ctx)

	serr := d.Stop()
	stopCommits()
	cerr := <-commitDone

	succeeded, failed := committer.Counts()
	c.logger.Info("stopped",
		log.Int("consumed", n),
		log.Int("succeeded", succeeded),
		log.Int("failed", failed),
	)

	if err := d.Err(); err != nil {
		return err
	}
	if perr != nil && !errors.Is(perr, context.Canceled) {
		return perr
	}
	if serr != nil {
		return fmt.Errorf("stop docship: %w", serr)
	}
	if cerr != nil {
		return fmt.Errorf("commit offsets: %w", cerr)
	}
	return nil
}
