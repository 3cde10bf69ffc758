package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/hazyhaar/babelfeed/config"
	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/internal/fetch"
	"github.com/hazyhaar/babelfeed/internal/runlog"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
	"github.com/hazyhaar/babelfeed/rules"
	"github.com/hazyhaar/babelfeed/source"
)

// FetchStats summarizes a fetch stage.
type FetchStats struct {
	Sources      int
	URLs         int
	Failed       int
	NotModified  int
	Candidates   int
	Captured     int
	Refreshed    int
	Skipped      int
	PrunedRaw    int
	SourceErrors []*SourceFetchError
}

// rawEntry is one raw capture on disk.
type rawEntry struct {
	path string
	name itemid.RawName
	hash string // loaded lazily
}

// fetchState is the key set one fetch stage deduplicates against.
type fetchState struct {
	progressed map[string]bool        // published, formatted or translated
	raw        map[string][]*rawEntry // cache key -> captures, newest first
	order      int
}

// Fetch runs the fetch and dedup stage for the requested sites.
func (r *Runner) Fetch(ctx context.Context, requested []string) (*FetchStats, error) {
	stats := &FetchStats{}
	sites, err := r.cfg.SelectSites(requested)
	if err != nil {
		return nil, err
	}
	pruned, err := r.PruneRaw()
	if err != nil {
		return nil, err
	}
	stats.PrunedRaw = pruned

	st, err := r.collectKeys(sites)
	if err != nil {
		return nil, err
	}

	sources, targets := r.cfg.SourcesFor(sites)
	stats.Sources = len(sources)
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		log := r.log.With("source_id", src.ID, "source_type", src.Type)
		log.Info("fetch: source", "order", i+1, "of", len(sources), "target_sites", targets[src.ID])
		for _, u := range src.URLs {
			stats.URLs++
			if err := r.fetchURL(ctx, src, u, targets[src.ID], st, stats); err != nil {
				if ctx.Err() != nil {
					return stats, ctx.Err()
				}
				var sfe *SourceFetchError
				if !errors.As(err, &sfe) {
					return stats, err
				}
				stats.Failed++
				stats.SourceErrors = append(stats.SourceErrors, sfe)
				r.metrics.SourceError(src.ID)
				log.Warn("fetch: source failed, skipping", "url", u, "error", sfe.Err)
			}
		}
	}
	r.log.Info("fetch: done", "sources", stats.Sources, "urls", stats.URLs, "captured", stats.Captured,
		"refreshed", stats.Refreshed, "skipped", stats.Skipped, "failed", stats.Failed)
	return stats, nil
}

// collectKeys gathers the cache keys already past the raw stage and the
// raw captures grouped by cache key.
func (r *Runner) collectKeys(sites []string) (*fetchState, error) {
	st := &fetchState{progressed: make(map[string]bool), raw: make(map[string][]*rawEntry)}
	for _, site := range sites {
		f, err := r.loadStore(site)
		if err != nil {
			return nil, err
		}
		for id := range f.Items {
			key, err := itemid.CacheKey(id)
			if err != nil {
				r.log.Warn("fetch: malformed published identifier", "site", site, "id", id)
				continue
			}
			st.progressed[key] = true
		}
	}
	for _, dir := range []string{datadir.FormattedDir, datadir.TranslatedDir} {
		files, err := datadir.ListJSON(filepath.Join(r.layout.Root, dir))
		if err != nil {
			return nil, err
		}
		for _, path := range files {
			key, err := itemid.CacheKey(filepath.Base(path))
			if err != nil {
				r.log.Warn("fetch: malformed stage file", "path", path)
				continue
			}
			st.progressed[key] = true
		}
	}
	groups, err := r.rawGroups()
	if err != nil {
		return nil, err
	}
	st.raw = groups
	return st, nil
}

// rawGroups lists raw captures by cache key, newest first.
func (r *Runner) rawGroups() (map[string][]*rawEntry, error) {
	files, err := datadir.ListJSON(r.layout.Raw())
	if err != nil {
		return nil, err
	}
	groups := make(map[string][]*rawEntry)
	for _, path := range files {
		name, err := itemid.ParseRawName(filepath.Base(path))
		if err != nil {
			r.log.Warn("fetch: malformed raw capture name", "path", path, "error", err)
			continue
		}
		groups[name.CacheKey] = append(groups[name.CacheKey], &rawEntry{path: path, name: name})
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].name.FetchedAt.Equal(g[j].name.FetchedAt) {
				return g[i].name.Order > g[j].name.Order
			}
			return g[i].name.FetchedAt.After(g[j].name.FetchedAt)
		})
	}
	return groups, nil
}

// PruneRaw keeps only the newest capture of every cache key and deletes
// captures older than the retention window. It returns how many files
// were removed.
func (r *Runner) PruneRaw() (int, error) {
	groups, err := r.rawGroups()
	if err != nil {
		return 0, err
	}
	cutoff := r.now().Add(-time.Duration(r.cfg.Raw.RetentionDays) * 24 * time.Hour)
	removed := 0
	for key, g := range groups {
		for i, e := range g {
			if i == 0 && !e.name.FetchedAt.Before(cutoff) {
				continue
			}
			if err := datadir.Remove(e.path); err != nil {
				return removed, err
			}
			removed++
			reason := "superseded"
			if e.name.FetchedAt.Before(cutoff) {
				reason = "expired"
			}
			r.log.Debug("fetch: removed raw capture", "cache_key", key, "path", e.path, "reason", reason)
		}
	}
	if removed > 0 {
		r.log.Info("fetch: pruned raw captures", "removed", removed)
	}
	return removed, nil
}

type candidate struct {
	item   *item.Normalized
	record json.RawMessage
}

func (r *Runner) fetchURL(ctx context.Context, src config.Source, u string, targets []string, st *fetchState, stats *FetchStats) error {
	log := r.log.With("source_id", src.ID, "url", u)
	adapter, err := r.registry.Lookup(src.Type)
	if err != nil {
		return &SourceFetchError{SourceID: src.ID, URL: u, Err: err}
	}

	var etag, lastMod string
	if r.ledger != nil {
		if etag, lastMod, err = r.ledger.Validators(ctx, u); err != nil {
			log.Warn("fetch: ledger validators", "error", err)
		}
	}
	row := runlog.Fetch{RunID: r.runID, SourceID: src.ID, URL: u, FetchedAt: r.now()}
	defer func() {
		if r.ledger == nil {
			return
		}
		if err := r.ledger.RecordFetch(context.WithoutCancel(ctx), row); err != nil {
			log.Warn("fetch: ledger record", "error", err)
		}
	}()

	res, err := r.fetcher.Fetch(ctx, u, etag, lastMod)
	if err != nil {
		row.Status, row.Error = runlog.StatusError, err.Error()
		return &SourceFetchError{SourceID: src.ID, URL: u, Err: err}
	}
	if res.NotModified {
		row.Status, row.ETag, row.LastModified = runlog.StatusNotModified, etag, lastMod
		stats.NotModified++
		log.Info("fetch: not modified")
		return nil
	}
	row.ETag, row.LastModified = res.ETag, res.LastMod

	fetchedAt := r.now().UTC()
	items, records, errs := source.Normalize(adapter, res.Body, src.ItemsPath, source.Meta{
		SourceID:  src.ID,
		FetchedAt: fetchedAt,
		Language:  src.Language,
	})
	if items == nil && records == nil && len(errs) > 0 {
		row.Status, row.Error = runlog.StatusError, errs[0].Error()
		return &SourceFetchError{SourceID: src.ID, URL: u, Err: errs[0]}
	}
	for _, e := range errs {
		log.Debug("fetch: record skipped", "error", e)
	}
	row.Records = len(items)
	r.metrics.Fetched(src.ID, len(items))

	var cands []candidate
	for i, n := range items {
		if rules.Accept(n, src.Rules) {
			cands = append(cands, candidate{item: n, record: records[i]})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].item.OriginalPublished.Before(cands[j].item.OriginalPublished)
	})
	log.Info("fetch: fetched", "records", len(items), "accepted", len(cands))
	stats.Candidates += len(cands)

	for _, c := range cands {
		captured, err := r.capture(c, src, targets, fetchedAt, st, stats)
		if err != nil {
			row.Status, row.Error = runlog.StatusError, err.Error()
			return err
		}
		if captured {
			row.Captured++
		}
	}
	row.Status = runlog.StatusOK
	return nil
}

// capture applies the dedup decision to one candidate.
func (r *Runner) capture(c candidate, src config.Source, targets []string, fetchedAt time.Time, st *fetchState, stats *FetchStats) (bool, error) {
	n := c.item
	fields := itemid.FromTime(n.OriginalPublished, n.Language, n.Type, targets[0], n.ID)
	if err := fields.Validate(); err != nil {
		r.log.Warn("fetch: item skipped", "source_id", src.ID, "id", n.ID, "error", err)
		stats.Skipped++
		return false, nil
	}
	key := fields.CacheKey()
	if st.progressed[key] {
		stats.Skipped++
		return false, nil
	}

	name := itemid.RawName{FetchedAt: fetchedAt, Order: st.order, CacheKey: key}
	path := r.layout.RawPath(name)
	if err := r.layout.Check(path); err != nil {
		r.log.Warn("fetch: item skipped", "source_id", src.ID, "id", n.ID, "error", err)
		stats.Skipped++
		return false, nil
	}
	hash, err := contentHash(c)
	if err != nil {
		r.log.Warn("fetch: item skipped", "source_id", src.ID, "id", n.ID, "error", err)
		stats.Skipped++
		return false, nil
	}
	refreshed := false
	if existing := st.raw[key]; len(existing) > 0 {
		cur, err := existing[0].contentHash()
		if err != nil {
			r.log.Warn("fetch: unreadable raw capture, replacing", "path", existing[0].path, "error", err)
		}
		if err == nil && cur == hash {
			stats.Skipped++
			return false, nil
		}
		for _, e := range existing {
			if err := datadir.Remove(e.path); err != nil {
				return false, err
			}
			r.log.Debug("fetch: replaced raw capture", "path", e.path)
		}
		delete(st.raw, key)
		refreshed = true
	}

	st.order++
	rc := &item.RawCapture{
		FetchedAt:   fetchedAt,
		SourceID:    src.ID,
		SourceType:  src.Type,
		TargetSites: append([]string(nil), targets...),
		ContentHash: hash,
		Item:        n,
		Record:      c.record,
	}
	if err := datadir.WriteJSON(path, rc); err != nil {
		return false, err
	}
	st.raw[key] = []*rawEntry{{path: path, name: name, hash: hash}}
	r.metrics.Captured(src.ID)
	if refreshed {
		stats.Refreshed++
	} else {
		stats.Captured++
	}
	return true, nil
}

func (e *rawEntry) contentHash() (string, error) {
	if e.hash != "" {
		return e.hash, nil
	}
	var rc item.RawCapture
	if err := datadir.ReadJSON(e.path, &rc); err != nil {
		return "", err
	}
	e.hash = rc.ContentHash
	return e.hash, nil
}

// contentHash hashes the source record, or the normalized item when the
// adapter kept no record.
func contentHash(c candidate) (string, error) {
	if len(c.record) > 0 {
		return fetch.Hash(c.record), nil
	}
	b, err := json.Marshal(c.item)
	if err != nil {
		return "", fmt.Errorf("pipeline: hash item %s: %w", c.item.ID, err)
	}
	return fetch.Hash(b), nil
}
