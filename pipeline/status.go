package pipeline

import (
	"context"
	"path/filepath"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/internal/runlog"
)

// SiteStatus counts the files of one site in each stage.
type SiteStatus struct {
	Site       string
	Formatted  int
	Translated int
	Published  int
	Archived   int
}

// Status is a snapshot of the data directory and the last run.
type Status struct {
	Raw     int
	Sites   []SiteStatus
	LastRun *runlog.Run
	Fetches []runlog.Fetch
}

// Status counts stage files per configured site and reads the last run
// from the ledger when one is wired.
func (r *Runner) Status(ctx context.Context) (*Status, error) {
	raw, err := datadir.ListJSON(r.layout.Raw())
	if err != nil {
		return nil, err
	}
	st := &Status{Raw: len(raw)}
	for _, site := range r.cfg.SiteNames() {
		ss := SiteStatus{Site: site}
		if ss.Formatted, err = countJSON(r.layout.Formatted(site)); err != nil {
			return nil, err
		}
		if ss.Translated, err = countJSON(r.layout.Translated(site)); err != nil {
			return nil, err
		}
		store, err := r.loadStore(site)
		if err != nil {
			return nil, err
		}
		ss.Published = len(store.Items)
		windows, err := r.archiver.Index(ctx, site)
		if err != nil {
			return nil, err
		}
		ss.Archived = len(windows)
		st.Sites = append(st.Sites, ss)
	}
	if r.ledger != nil {
		if st.LastRun, err = r.ledger.LastRun(ctx); err != nil {
			return nil, err
		}
		if st.LastRun != nil {
			if st.Fetches, err = r.ledger.Fetches(ctx, st.LastRun.ID); err != nil {
				return nil, err
			}
		}
	}
	return st, nil
}

func countJSON(dir string) (int, error) {
	files, err := datadir.ListJSON(filepath.Clean(dir))
	return len(files), err
}
