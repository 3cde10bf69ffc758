package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/pipeline"
)

func newDaemonCommand(cc *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run the full pipeline on the schedule.cron expression",
		Args:  cobra.NoArgs,
		RunE: cc.withRunner(func(ctx context.Context, runner *pipeline.Runner) error {
			log := cc.logger

			parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
			c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
			_, err := c.AddFunc(cc.config.Schedule.Cron, func() {
				err := runner.Run(ctx, cc.sites, pipeline.AllStages)
				switch {
				case errors.Is(err, datadir.ErrLocked):
					log.Warn("daemon: data directory locked, skipping tick")
				case err != nil && ctx.Err() == nil:
					log.Error("daemon: run failed", "error", err)
				}
			})
			if err != nil {
				return fmt.Errorf("daemon: schedule %q: %w", cc.config.Schedule.Cron, err)
			}

			log.Info("daemon: started", "cron", cc.config.Schedule.Cron)
			c.Start()
			<-ctx.Done()
			<-c.Stop().Done()
			log.Info("daemon: stopped")
			return nil
		}),
	}
}
