package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/babelfeed/internal/migrate"
	"github.com/hazyhaar/babelfeed/pipeline"
)

func newRunCommand(cc *commandContext) *cobra.Command {
	var stages string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline stages in order",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := pipeline.ParseStages(stages)
			return err
		},
		RunE: cc.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
			list, err := pipeline.ParseStages(stages)
			if err != nil {
				return err
			}
			return r.Run(ctx, cc.sites, list)
		}),
	}
	cmd.Flags().StringVar(&stages, "stages", "", "Comma separated stages to run (default: all)")
	return cmd
}

var stageHelp = map[pipeline.Stage]string{
	pipeline.StageFetch:     "Fetch sources into raw captures",
	pipeline.StageFormat:    "Format raw captures into per-site items",
	pipeline.StageTranslate: "Translate formatted items",
	pipeline.StagePublish:   "Merge translated items into the site stores",
	pipeline.StageArchive:   "Move past weeks out of the site stores",
}

// newStageCommands returns one command per stage.
func newStageCommands(cc *commandContext) []*cobra.Command {
	var out []*cobra.Command
	for _, st := range pipeline.AllStages {
		out = append(out, &cobra.Command{
			Use:   string(st),
			Short: stageHelp[st],
			Args:  cobra.NoArgs,
			RunE: cc.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
				return r.Run(ctx, cc.sites, []pipeline.Stage{st})
			}),
		})
	}
	return out
}

func newFixIdentifiersCommand(cc *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fix-identifiers",
		Short: "Rewrite legacy identifiers in the site stores",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = cc.withRunner(func(ctx context.Context, r *pipeline.Runner) error {
		sites, err := cc.config.SelectSites(cc.sites)
		if err != nil {
			return err
		}
		unlock, err := r.Layout().Lock()
		if err != nil {
			return err
		}
		defer unlock()
		out := cmd.OutOrStdout()
		for _, site := range sites {
			path := r.Layout().Store(site)
			if !fileExists(path) {
				continue
			}
			n, err := migrate.UpgradeStoreFile(path, site, cc.logger)
			if err != nil {
				return fmt.Errorf("fix identifiers %s: %w", site, err)
			}
			fmt.Fprintf(out, "%s: %d identifiers upgraded\n", site, n)
		}
		return nil
	})
	return cmd
}
