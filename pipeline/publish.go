package pipeline

import (
	"context"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/translate"
)

// PublishStats summarizes a publish stage.
type PublishStats struct {
	Sites     int
	Merged    int
	Fallbacks int
	Deferred  int
	Invalid   int
}

// Publish merges translated files into each site's live store. Pairs the
// session cannot translate fall back to the original text; items that
// still miss pairs for any other reason stay in the translated stage.
func (r *Runner) Publish(ctx context.Context, requested []string) (*PublishStats, error) {
	stats := &PublishStats{}
	sites, err := r.stageSites(datadir.TranslatedDir, requested)
	if err != nil {
		return nil, err
	}
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if err := r.publishSite(ctx, site, stats); err != nil {
			return stats, err
		}
		stats.Sites++
	}
	r.log.Info("publish: done", "sites", stats.Sites, "merged", stats.Merged,
		"fallbacks", stats.Fallbacks, "deferred", stats.Deferred)
	return stats, nil
}

func (r *Runner) publishSite(ctx context.Context, site string, stats *PublishStats) error {
	log := r.log.With("site", site)
	files, err := datadir.ListJSON(r.layout.Translated(site))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return nil
	}
	store, err := r.loadStore(site)
	if err != nil {
		return err
	}

	var merged []string
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := identifierOf(path); err != nil {
			log.Warn("publish: malformed identifier, skipping", "path", path, "error", err)
			stats.Invalid++
			continue
		}
		var fi item.FormattedItem
		if err := datadir.ReadJSON(path, &fi); err != nil {
			log.Warn("publish: unreadable translated file, skipping", "path", path, "error", err)
			stats.Invalid++
			continue
		}
		rep, err := r.engine.CompleteItem(ctx, &fi)
		r.countStates(rep)
		if err != nil {
			if fatalTranslation(ctx, err) {
				return err
			}
			stats.Deferred++
			log.Warn("publish: item left for next run", "id", fi.ID, "error", err)
			continue
		}
		n := r.fallback(&fi, rep)
		stats.Fallbacks += n
		if !fi.Complete(r.engine.Languages()) {
			stats.Deferred++
			log.Warn("publish: item incomplete, left for next run", "id", fi.ID)
			continue
		}
		store.Put(&fi)
		merged = append(merged, path)
	}
	if len(merged) == 0 {
		return nil
	}
	if err := datadir.WriteJSON(r.layout.Store(site), store); err != nil {
		return err
	}
	for _, path := range merged {
		if err := datadir.Remove(path); err != nil {
			return err
		}
	}
	stats.Merged += len(merged)
	r.metrics.Published(site, len(merged))
	log.Info("publish: merged", "items", len(merged), "total", len(store.Items))
	return nil
}

// fallback fills the pairs of unsupported languages with the original
// text and returns how many pairs it filled.
func (r *Runner) fallback(fi *item.FormattedItem, rep *translate.Report) int {
	orig, _ := fi.Original()
	n := 0
	for _, lang := range r.engine.Languages() {
		if lang == fi.OriginalLanguage || rep == nil || !rep.Unsupported(lang) {
			continue
		}
		for _, field := range fi.Translations.Missing(fi.OriginalLanguage, lang) {
			fi.Translations.Set(lang, field, orig[field])
			n++
		}
	}
	return n
}
