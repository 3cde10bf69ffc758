// CLAUDE:SUMMARY Stage runner: wires config, fetcher, adapters, translation engine, archive and ledger; runs stages in order under the data-dir lock.
// Package pipeline runs the babelfeed stages over the data directory.
//
//	fetch → format → translate → publish → archive
//
// Every stage reads the files of the previous stage and writes its own
// before deleting them, so a run may stop between any two files and the
// next run picks up where it left off.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/babelfeed/archive"
	"github.com/hazyhaar/babelfeed/config"
	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/internal/fetch"
	"github.com/hazyhaar/babelfeed/internal/idgen"
	"github.com/hazyhaar/babelfeed/internal/runlog"
	"github.com/hazyhaar/babelfeed/metrics"
	"github.com/hazyhaar/babelfeed/source"
	"github.com/hazyhaar/babelfeed/translate"
)

// Stage names one pipeline step.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageFormat    Stage = "format"
	StageTranslate Stage = "translate"
	StagePublish   Stage = "publish"
	StageArchive   Stage = "archive"
)

// AllStages is the order of a full run.
var AllStages = []Stage{StageFetch, StageFormat, StageTranslate, StagePublish, StageArchive}

// ParseStages parses a comma separated stage list; empty means all.
func ParseStages(s string) ([]Stage, error) {
	if strings.TrimSpace(s) == "" {
		return AllStages, nil
	}
	var out []Stage
	for _, part := range strings.Split(s, ",") {
		st := Stage(strings.TrimSpace(part))
		switch st {
		case StageFetch, StageFormat, StageTranslate, StagePublish, StageArchive:
			out = append(out, st)
		default:
			return nil, fmt.Errorf("pipeline: unknown stage %q", part)
		}
	}
	return out, nil
}

// Options wires a Runner. Config and Engine are required.
type Options struct {
	Config   *config.Config
	Engine   *translate.Engine
	Registry *source.Registry
	Fetcher  *fetch.Fetcher
	// Images looks up item page images during format. Nil disables it.
	Images  ImageFinder
	Archive archive.Store
	Ledger  *runlog.Ledger
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	Now     func() time.Time
	NewID   idgen.Generator
}

// Runner executes stages. It is not safe for concurrent use; Run holds
// the data directory lock for its duration.
type Runner struct {
	cfg      *config.Config
	layout   datadir.Layout
	engine   *translate.Engine
	registry *source.Registry
	fetcher  *fetch.Fetcher
	images   ImageFinder
	archiver *archive.Archiver
	ledger   *runlog.Ledger
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
	newID    idgen.Generator
	cleaner  *cleaner

	closeArchive func() error

	runID    string
	recycles int
}

// NewRunner creates a Runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: config is required")
	}
	if opts.Engine == nil {
		return nil, errors.New("pipeline: translation engine is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Registry == nil {
		opts.Registry = source.NewRegistry()
	}
	if opts.Fetcher == nil {
		opts.Fetcher = fetch.New(fetch.Config{
			Timeout:   opts.Config.Fetch.Timeout,
			MaxBytes:  opts.Config.Fetch.MaxBytes,
			UserAgent: opts.Config.Fetch.UserAgent,
		})
	}
	closeArchive := func() error { return nil }
	if opts.Archive == nil {
		store, closer, err := OpenArchive(opts.Config)
		if err != nil {
			return nil, err
		}
		opts.Archive, closeArchive = store, closer
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = idgen.Default
	}
	for _, s := range opts.Config.Sources {
		if _, err := opts.Registry.Lookup(s.Type); err != nil {
			closeArchive()
			return nil, fmt.Errorf("pipeline: source %s: %w", s.ID, err)
		}
	}
	return &Runner{
		cfg:      opts.Config,
		layout:   datadir.New(opts.Config.DataDir),
		engine:   opts.Engine,
		registry: opts.Registry,
		fetcher:  opts.Fetcher,
		images:   opts.Images,
		archiver: archive.New(opts.Archive, opts.Logger),
		ledger:   opts.Ledger,
		metrics:  opts.Metrics,
		log:      opts.Logger,
		now:      opts.Now,
		newID:    opts.NewID,
		cleaner:  newCleaner(),

		closeArchive: closeArchive,
	}, nil
}

// OpenArchive opens the archive backend selected by archive.backend. The
// returned function closes it.
func OpenArchive(cfg *config.Config) (archive.Store, func() error, error) {
	if cfg.Archive.Backend == "sqlite" {
		s, err := archive.OpenSQLiteStore(cfg.ArchivePath())
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	return archive.NewFSStore(cfg.ArchivePath()), func() error { return nil }, nil
}

// Layout returns the data directory layout.
func (r *Runner) Layout() datadir.Layout { return r.layout }

// Close releases the translation session and the archive backend.
func (r *Runner) Close() error {
	return errors.Join(r.engine.Close(), r.closeArchive())
}

// Run takes the data directory lock and runs stages in order for the
// requested sites (all configured sites when empty). The first stage
// error stops the run.
func (r *Runner) Run(ctx context.Context, sites []string, stages []Stage) (err error) {
	unlock, err := r.layout.Lock()
	if err != nil {
		return err
	}
	defer unlock()

	r.runID = r.newID()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = string(s)
	}
	log := r.log.With("run_id", r.runID)
	log.Info("pipeline: run started", "stages", strings.Join(names, ","), "sites", sites)
	if r.ledger != nil {
		if err := r.ledger.StartRun(ctx, r.runID, strings.Join(names, ",")); err != nil {
			log.Warn("pipeline: ledger start", "error", err)
		}
	}
	start := r.now()
	defer func() {
		if cerr := r.engine.Close(); cerr != nil {
			log.Warn("pipeline: close translation session", "error", cerr)
		}
		if r.ledger != nil {
			// The run context may be cancelled; the ledger row still closes.
			if lerr := r.ledger.FinishRun(context.WithoutCancel(ctx), r.runID, err); lerr != nil {
				log.Warn("pipeline: ledger finish", "error", lerr)
			}
		}
		r.metrics.Recycles(r.engine.Recycles() - r.recycles)
		r.recycles = r.engine.Recycles()
		r.metrics.RunFinished(r.now())
		if merr := r.metrics.WriteTextfile(r.cfg.Metrics.Textfile); merr != nil {
			log.Warn("pipeline: metrics textfile", "error", merr)
		}
		if err != nil {
			log.Error("pipeline: run failed", "error", err, "duration", r.now().Sub(start))
			return
		}
		log.Info("pipeline: run finished", "duration", r.now().Sub(start))
	}()

	for _, st := range stages {
		t0 := r.now()
		if err = r.runStage(ctx, st, sites); err != nil {
			return fmt.Errorf("pipeline: %s: %w", st, err)
		}
		r.metrics.Stage(string(st), r.now().Sub(t0))
	}
	return nil
}

func (r *Runner) runStage(ctx context.Context, st Stage, sites []string) error {
	var err error
	switch st {
	case StageFetch:
		_, err = r.Fetch(ctx, sites)
	case StageFormat:
		_, err = r.Format(ctx, sites)
	case StageTranslate:
		_, err = r.Translate(ctx, sites)
	case StagePublish:
		_, err = r.Publish(ctx, sites)
	case StageArchive:
		_, err = r.Archive(ctx, sites)
	default:
		err = fmt.Errorf("unknown stage %q", st)
	}
	return err
}

// stageSites filters the sites present in a stage directory by the
// requested names.
func (r *Runner) stageSites(stage string, requested []string) ([]string, error) {
	present, err := r.layout.Sites(stage)
	if err != nil {
		return nil, err
	}
	if len(requested) == 0 {
		return present, nil
	}
	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	var out []string
	for _, s := range present {
		if want[s] {
			out = append(out, s)
		}
	}
	return out, nil
}
