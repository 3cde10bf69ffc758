package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/babelfeed/config"
	"github.com/hazyhaar/babelfeed/internal/fetch"
	"github.com/hazyhaar/babelfeed/internal/runlog"
	"github.com/hazyhaar/babelfeed/metrics"
	"github.com/hazyhaar/babelfeed/pipeline"
	"github.com/hazyhaar/babelfeed/translate"
	"github.com/hazyhaar/babelfeed/translate/browser"
)

// commandContext holds the state shared by every subcommand: flags,
// the loaded config and the lazily built runner.
type commandContext struct {
	configPath string
	logLevel   string
	sites      []string

	configOnce sync.Once
	configErr  error
	config     *config.Config
	logger     *slog.Logger

	runnerOnce sync.Once
	runnerErr  error
	runner     *pipeline.Runner
	ledger     *runlog.Ledger

	stop func()
}

func (c *commandContext) ensureConfig() error {
	c.configOnce.Do(func() {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			c.configErr = err
			return
		}
		level := cfg.Log.Level
		if c.logLevel != "" {
			level = c.logLevel
		}
		logger, err := newLogger(level)
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.configErr
}

// ensureRunner builds the translation engine, ledger, metrics and runner.
// The browser session is only created when translation is not mocked; it
// launches Chrome lazily on the first item that needs it.
func (c *commandContext) ensureRunner() (*pipeline.Runner, error) {
	if err := c.ensureConfig(); err != nil {
		return nil, err
	}
	c.runnerOnce.Do(func() {
		cfg := c.config

		var session translate.Session
		if !cfg.Translation.Mock {
			session = browser.New(browser.Config{
				PageURL:     cfg.Translation.PageURL,
				RemoteURL:   cfg.Translation.Remote,
				Headless:    cfg.Translation.Headless,
				Timeout:     cfg.Translation.Timeout,
				MinInterval: cfg.Translation.MinInterval,
				Selectors:   cfg.Translation.Selectors,
				Logger:      c.logger,
			})
		}
		engine, err := pipeline.NewEngine(cfg, session, c.logger)
		if err != nil {
			c.runnerErr = err
			return
		}

		ledger, err := runlog.Open(cfg.RunlogPath())
		if err != nil {
			engine.Close()
			c.runnerErr = fmt.Errorf("open run ledger: %w", err)
			return
		}

		fetchCfg := fetch.Config{
			Timeout:   cfg.Fetch.Timeout,
			MaxBytes:  cfg.Fetch.MaxBytes,
			UserAgent: cfg.Fetch.UserAgent,
		}
		fetcher := fetch.New(fetchCfg)
		// Item page URLs come from third-party payloads.
		pageCfg := fetchCfg
		pageCfg.URLValidator = fetch.PublicURL
		runner, err := pipeline.NewRunner(pipeline.Options{
			Config:  cfg,
			Engine:  engine,
			Fetcher: fetcher,
			Images:  &pipeline.PageImages{Fetcher: fetch.New(pageCfg)},
			Ledger:  ledger,
			Metrics: metrics.New(),
			Logger:  c.logger,
		})
		if err != nil {
			engine.Close()
			ledger.Close()
			c.runnerErr = err
			return
		}
		c.runner = runner
		c.ledger = ledger
	})
	return c.runner, c.runnerErr
}

func (c *commandContext) close() error {
	if c.stop != nil {
		c.stop()
	}
	var errs []error
	if c.runner != nil {
		errs = append(errs, c.runner.Close())
	}
	if c.ledger != nil {
		errs = append(errs, c.ledger.Close())
	}
	return errors.Join(errs...)
}

// withRunner runs fn with the shared runner and releases it afterwards,
// including when fn fails.
func (c *commandContext) withRunner(fn func(ctx context.Context, r *pipeline.Runner) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		defer func() {
			if cerr := c.close(); err == nil {
				err = cerr
			}
		}()
		runner, err := c.ensureRunner()
		if err != nil {
			return err
		}
		return fn(cmd.Context(), runner)
	}
}
