// CLAUDE:SUMMARY Weekly archive sweep: evicts items of past ISO weeks from a live site store into per-week buckets plus a sorted window index.
// Package archive moves items whose publication week has ended out of the
// live per-site store and into a durable archive:
//
//	<site>/<year>/<week>/items.json   one bucket per ISO week
//	<site>/archive.json               window paths, most recent first
//
// Buckets and the index are written before the caller rewrites the live
// store, so a crash in between only leaves items in both places.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/babelfeed/item"
)

// IndexFile is the per-site window index name.
const IndexFile = "archive.json"

// BucketKey returns the archive key of a site's window bucket.
func BucketKey(site string, w Window) string {
	return site + "/" + w.Path() + "/items.json"
}

// IndexKey returns the archive key of a site's window index.
func IndexKey(site string) string { return site + "/" + IndexFile }

// Archiver sweeps live stores into a Store.
type Archiver struct {
	store  Store
	logger *slog.Logger
}

// New creates an Archiver.
func New(store Store, logger *slog.Logger) *Archiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archiver{store: store, logger: logger}
}

// Result summarises one site sweep.
type Result struct {
	Windows []Window
	Moved   int
}

// Sweep moves every entry of live whose DatePublished falls in a window
// strictly older than the window of now. The buckets and the index are
// written first; on success the entries are removed from live and the
// caller must persist it.
func (a *Archiver) Sweep(ctx context.Context, site string, live *item.ItemsFile, now time.Time) (Result, error) {
	current := WindowOf(now)
	groups := make(map[Window][]*item.FormattedItem)
	for _, it := range live.Items {
		w := WindowOf(it.DatePublished)
		if w.Before(current) {
			groups[w] = append(groups[w], it)
		}
	}
	if len(groups) == 0 {
		return Result{}, nil
	}

	log := a.logger.With("site", site)
	var res Result
	for w, items := range groups {
		if err := w.Validate(); err != nil {
			return res, err
		}
		if err := a.putBucket(ctx, site, w, items); err != nil {
			return res, err
		}
		res.Windows = append(res.Windows, w)
		res.Moved += len(items)
		log.Info("archive: window written", "window", w.Path(), "items", len(items))
	}
	if err := a.updateIndex(ctx, site, res.Windows); err != nil {
		return res, err
	}
	for _, items := range groups {
		for _, it := range items {
			delete(live.Items, it.ID)
		}
	}
	res.Windows = SortDesc(res.Windows)
	return res, nil
}

func (a *Archiver) putBucket(ctx context.Context, site string, w Window, items []*item.FormattedItem) error {
	key := BucketKey(site, w)
	bucket := item.NewItemsFile()
	data, ok, err := a.store.Get(ctx, key)
	if err != nil {
		return err
	}
	if ok {
		if err := json.Unmarshal(data, bucket); err != nil {
			return fmt.Errorf("archive: decode %s: %w", key, err)
		}
		if bucket.Items == nil {
			bucket.Items = make(map[string]*item.FormattedItem)
		}
	}
	for _, it := range items {
		bucket.Put(it)
	}
	out, err := json.MarshalIndent(bucket, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode %s: %w", key, err)
	}
	return a.store.Put(ctx, key, out)
}

// Index returns the site's archived windows, most recent first.
func (a *Archiver) Index(ctx context.Context, site string) ([]Window, error) {
	data, ok, err := a.store.Get(ctx, IndexKey(site))
	if err != nil || !ok {
		return nil, err
	}
	var paths []string
	if err := json.Unmarshal(data, &paths); err != nil {
		return nil, fmt.Errorf("archive: decode index: %w", err)
	}
	out := make([]Window, 0, len(paths))
	for _, p := range paths {
		w, err := ParsePath(p)
		if err != nil {
			a.logger.Warn("archive: skip bad index entry", "site", site, "entry", p, "error", err)
			continue
		}
		out = append(out, w)
	}
	return SortDesc(out), nil
}

func (a *Archiver) updateIndex(ctx context.Context, site string, added []Window) error {
	existing, err := a.Index(ctx, site)
	if err != nil {
		return err
	}
	all := SortDesc(append(existing, added...))
	paths := make([]string, len(all))
	for i, w := range all {
		paths[i] = w.Path()
	}
	data, err := json.MarshalIndent(paths, "", "  ")
	if err != nil {
		return fmt.Errorf("archive: encode index: %w", err)
	}
	return a.store.Put(ctx, IndexKey(site), data)
}

// Bucket loads an archived window of a site.
func (a *Archiver) Bucket(ctx context.Context, site string, w Window) (*item.ItemsFile, bool, error) {
	data, ok, err := a.store.Get(ctx, BucketKey(site, w))
	if err != nil || !ok {
		return nil, ok, err
	}
	f := item.NewItemsFile()
	if err := json.Unmarshal(data, f); err != nil {
		return nil, false, fmt.Errorf("archive: decode bucket: %w", err)
	}
	return f, true, nil
}
