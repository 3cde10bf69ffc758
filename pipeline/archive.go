package pipeline

import (
	"context"

	"github.com/hazyhaar/babelfeed/internal/datadir"
)

// ArchiveStats summarizes an archive stage.
type ArchiveStats struct {
	Sites   int
	Windows int
	Moved   int
}

// Archive moves published items of past ISO weeks from each selected
// site's live store to the archive. The live store is rewritten only
// after the archive buckets and index are written.
func (r *Runner) Archive(ctx context.Context, requested []string) (*ArchiveStats, error) {
	stats := &ArchiveStats{}
	sites, err := r.cfg.SelectSites(requested)
	if err != nil {
		return nil, err
	}
	now := r.now()
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if !fileExists(r.layout.Store(site)) {
			continue
		}
		live, err := r.loadStore(site)
		if err != nil {
			return stats, err
		}
		res, err := r.archiver.Sweep(ctx, site, live, now)
		if err != nil {
			return stats, err
		}
		stats.Sites++
		if res.Moved == 0 {
			continue
		}
		if err := datadir.WriteJSON(r.layout.Store(site), live); err != nil {
			return stats, err
		}
		stats.Windows += len(res.Windows)
		stats.Moved += res.Moved
		r.metrics.Archived(site, res.Moved)
		r.log.Info("archive: swept", "site", site, "windows", len(res.Windows), "moved", res.Moved, "live", len(live.Items))
	}
	r.log.Info("archive: done", "sites", stats.Sites, "moved", stats.Moved)
	return stats, nil
}
