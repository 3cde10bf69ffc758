package pipeline

import (
	"context"
	"errors"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/translate"
)

// TranslateStats summarizes a translate stage.
type TranslateStats struct {
	Files      int
	Translated int
	Existing   int
	Failed     int
	Invalid    int
	States     map[translate.State]int
}

func (s *TranslateStats) add(rep *translate.Report) {
	if rep == nil {
		return
	}
	for _, st := range []translate.State{translate.StateLocal, translate.StateDerived, translate.StateExternal, translate.StateFailed} {
		s.States[st] += rep.Count(st)
	}
}

// Translate completes the translations of every formatted file and moves
// it to the translated stage.
func (r *Runner) Translate(ctx context.Context, requested []string) (*TranslateStats, error) {
	stats := &TranslateStats{States: make(map[translate.State]int)}
	sites, err := r.stageSites(datadir.FormattedDir, requested)
	if err != nil {
		return nil, err
	}
	pub := r.newPublished()
	limit := r.cfg.MaxFilesPerSite()

	for _, site := range sites {
		files, err := datadir.ListJSON(r.layout.Formatted(site))
		if err != nil {
			return stats, err
		}
		if limit > 0 && len(files) > limit {
			files = files[:limit]
		}
		log := r.log.With("site", site)
		log.Info("translate: site", "files", len(files))
		for _, path := range files {
			if err := ctx.Err(); err != nil {
				return stats, err
			}
			stats.Files++
			f, err := identifierOf(path)
			if err != nil {
				log.Warn("translate: malformed identifier, skipping", "path", path, "error", err)
				stats.Invalid++
				continue
			}
			id := f.String()
			done, err := pub.has(site, id)
			if err != nil {
				return stats, err
			}
			if done || fileExists(r.layout.TranslatedPath(f)) {
				stats.Existing++
				if err := datadir.Remove(path); err != nil {
					return stats, err
				}
				continue
			}
			var fi item.FormattedItem
			if err := datadir.ReadJSON(path, &fi); err != nil {
				log.Warn("translate: unreadable formatted file, skipping", "path", path, "error", err)
				stats.Invalid++
				continue
			}
			rep, err := r.engine.CompleteItem(ctx, &fi)
			stats.add(rep)
			r.countStates(rep)
			if err != nil {
				if fatalTranslation(ctx, err) {
					return stats, err
				}
				stats.Failed++
				log.Warn("translate: item left for next run", "id", id, "error", err)
				continue
			}
			out := r.layout.TranslatedPath(f)
			if err := r.layout.Check(out); err != nil {
				stats.Invalid++
				log.Warn("translate: unsafe identifier skipped", "id", id, "error", err)
				continue
			}
			if err := datadir.WriteJSON(out, &fi); err != nil {
				return stats, err
			}
			if err := datadir.Remove(path); err != nil {
				return stats, err
			}
			stats.Translated++
			log.Debug("translate: translated", "id", id)
		}
	}
	r.log.Info("translate: done", "files", stats.Files, "translated", stats.Translated,
		"existing", stats.Existing, "failed", stats.Failed, "recycles", r.engine.Recycles())
	return stats, nil
}

// fatalTranslation reports errors that stop the run rather than the item.
func fatalTranslation(ctx context.Context, err error) bool {
	var dep *translate.MissingDependencyError
	return ctx.Err() != nil ||
		errors.Is(err, translate.ErrFieldNotFound) ||
		errors.Is(err, translate.ErrNoSession) ||
		errors.As(err, &dep)
}

func (r *Runner) countStates(rep *translate.Report) {
	if rep == nil {
		return
	}
	for _, st := range []translate.State{translate.StateLocal, translate.StateDerived, translate.StateExternal, translate.StateFailed} {
		r.metrics.Translations(string(st), rep.Count(st))
	}
}
