package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cc := &commandContext{}

	root := &cobra.Command{
		Use:           "babelfeed",
		Short:         "Fetch, translate and publish news feeds",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			cc.stop = stop
			cmd.SetContext(ctx)
			return cc.ensureConfig()
		},
	}
	root.SetContext(context.Background())

	root.PersistentFlags().StringVarP(&cc.configPath, "config", "c", "babelfeed.yml", "Path to the configuration file")
	root.PersistentFlags().StringVar(&cc.logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")
	root.PersistentFlags().StringArrayVar(&cc.sites, "site", nil, "Restrict to a site (repeatable)")

	root.AddCommand(newRunCommand(cc))
	for _, c := range newStageCommands(cc) {
		root.AddCommand(c)
	}
	root.AddCommand(newStatusCommand(cc))
	root.AddCommand(newFixIdentifiersCommand(cc))
	root.AddCommand(newDaemonCommand(cc))
	return root
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		lvl = slog.LevelInfo
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, nil
}
