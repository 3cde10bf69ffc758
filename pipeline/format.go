package pipeline

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
)

// FormatStats summarizes a format stage.
type FormatStats struct {
	Captures  int
	Formatted int
	Existing  int
	Deferred  int
	Invalid   int
}

// Format turns raw captures into one formatted item per target site.
// When requested is non-empty only those sites are written; a capture
// is deleted once none of its target sites is left to write.
func (r *Runner) Format(ctx context.Context, requested []string) (*FormatStats, error) {
	stats := &FormatStats{}
	files, err := datadir.ListJSON(r.layout.Raw())
	if err != nil {
		return nil, err
	}
	want := make(map[string]bool, len(requested))
	for _, s := range requested {
		want[s] = true
	}
	pub := r.newPublished()
	written := make(map[string]int)
	limit := r.cfg.MaxFilesPerSite()

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		stats.Captures++
		log := r.log.With("path", path)
		name, err := itemid.ParseRawName(filepath.Base(path))
		if err != nil {
			log.Warn("format: malformed raw capture name, skipping", "error", err)
			stats.Invalid++
			continue
		}
		var rc item.RawCapture
		if err := datadir.ReadJSON(path, &rc); err != nil {
			log.Warn("format: unreadable raw capture, skipping", "error", err)
			stats.Invalid++
			continue
		}
		if rc.Item == nil {
			log.Warn("format: raw capture has no item, removing")
			stats.Invalid++
			if err := datadir.Remove(path); err != nil {
				return stats, err
			}
			continue
		}
		texts := r.originalTexts(&rc)
		if len(texts[rc.Item.Language]) == 0 {
			log.Warn("format: capture has no translatable text, removing", "id", rc.Item.ID, "language", rc.Item.Language)
			stats.Invalid++
			if err := datadir.Remove(path); err != nil {
				return stats, err
			}
			continue
		}
		base, err := itemid.DecodeCacheKey(name.CacheKey)
		if err != nil {
			log.Warn("format: malformed cache key, skipping", "error", err)
			stats.Invalid++
			continue
		}

		pending := false
		for _, site := range rc.TargetSites {
			if _, ok := r.cfg.Sites[site]; !ok {
				log.Warn("format: unknown target site dropped", "site", site)
				continue
			}
			if len(want) > 0 && !want[site] {
				pending = true
				continue
			}
			f := base.WithSite(site)
			id := f.String()
			done, err := r.progressed(pub, f)
			if err != nil {
				return stats, err
			}
			if done {
				stats.Existing++
				continue
			}
			if limit > 0 && written[site] >= limit {
				pending = true
				stats.Deferred++
				continue
			}
			out := r.layout.FormattedPath(f)
			if err := r.layout.Check(out); err != nil {
				log.Warn("format: unsafe identifier dropped", "id", id, "error", err)
				stats.Invalid++
				continue
			}
			fi := r.buildFormatted(ctx, &rc, id, texts)
			if err := datadir.WriteJSON(out, fi); err != nil {
				return stats, err
			}
			written[site]++
			stats.Formatted++
			r.metrics.Formatted(site)
			log.Debug("format: formatted", "id", id)
		}
		if !pending {
			if err := datadir.Remove(path); err != nil {
				return stats, err
			}
		}
	}
	r.log.Info("format: done", "captures", stats.Captures, "formatted", stats.Formatted,
		"existing", stats.Existing, "deferred", stats.Deferred, "invalid", stats.Invalid)
	return stats, nil
}

// progressed reports whether an identifier already exists in the
// formatted, translated or published state.
func (r *Runner) progressed(pub *published, f itemid.Fields) (bool, error) {
	if fileExists(r.layout.FormattedPath(f)) || fileExists(r.layout.TranslatedPath(f)) {
		return true, nil
	}
	return pub.has(f.Site, f.String())
}

// originalTexts returns the translations a capture starts with: the
// adapter's own translations, plus the cleaned fields in the original
// language when the adapter did not supply them. Fields that are empty
// after cleaning are dropped.
func (r *Runner) originalTexts(rc *item.RawCapture) item.Translations {
	n := rc.Item
	out := item.Translations{}
	if len(n.Translations) > 0 {
		out = n.Translations.Clone()
	}
	if _, ok := out[n.Language]; !ok {
		out[n.Language] = r.cleaner.fields(n.Fields, n.HTMLFields, n.URL)
	}
	return out
}

// buildFormatted maps a raw capture to the formatted item of one site.
func (r *Runner) buildFormatted(ctx context.Context, rc *item.RawCapture, id string, texts item.Translations) *item.FormattedItem {
	n := rc.Item
	fetchedAt := rc.FetchedAt.UTC().Truncate(time.Millisecond)
	fi := &item.FormattedItem{
		ID:                id,
		URL:               n.URL,
		DatePublished:     fetchedAt,
		DateModified:      fetchedAt,
		Image:             n.Image,
		ExternalURL:       n.ExternalURL,
		Tags:              n.Tags,
		Authors:           n.Authors,
		Score:             n.Score,
		NumComments:       n.NumComments,
		Video:             n.Video,
		Sensitive:         n.Sensitive,
		OriginalPublished: n.OriginalPublished.UTC(),
		OriginalLanguage:  n.Language,
		TitlePrefix:       n.TitlePrefix,
		TitleSuffix:       n.TitleSuffix,
		Links:             n.Links,
		Translations:      texts.Clone(),
	}
	if fi.Image == "" && !n.NoImage {
		fi.Image = r.lookupImage(ctx, n.URL)
	}
	return fi
}

func (r *Runner) lookupImage(ctx context.Context, pageURL string) string {
	if r.images == nil || r.cfg.Translation.Mock || !r.cfg.Format.ImageLookup || pageURL == "" {
		return ""
	}
	u, err := url.Parse(pageURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	for _, deny := range r.cfg.Format.ImageDenylist {
		if host == strings.ToLower(deny) {
			return ""
		}
	}
	img, err := r.images.FindImage(ctx, pageURL)
	if err != nil {
		r.log.Debug("format: image lookup failed", "url", pageURL, "error", err)
		return ""
	}
	if img != "" {
		r.log.Debug("format: found image", "url", pageURL, "image", img)
	}
	return img
}
