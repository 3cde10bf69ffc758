// CLAUDE:SUMMARY Upgrades legacy language_type__id identifiers in item stores to the dated, site-qualified form.
// Package migrate rewrites item stores written before identifiers carried
// their date and target site.
//
// A legacy identifier has two metadata tokens (language_type__id). The
// date comes from the item's date_published and the site from the store
// the item lives in.
package migrate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
)

// UpgradeIdentifier returns the current form of old. changed is false when
// old already is a current identifier.
func UpgradeIdentifier(old string, published time.Time, site string) (upgraded string, changed bool, err error) {
	if _, err := itemid.Decode(old); err == nil {
		return old, false, nil
	}
	s := itemid.TrimExt(old)
	i := strings.Index(s, itemid.Separator)
	if i < 0 {
		return "", false, fmt.Errorf("migrate: %q: %w", old, itemid.ErrMalformedIdentifier)
	}
	toks := strings.Split(s[:i], "_")
	if len(toks) != 2 {
		return "", false, fmt.Errorf("migrate: %q has %d metadata tokens: %w", old, len(toks), itemid.ErrMalformedIdentifier)
	}
	if published.IsZero() {
		return "", false, fmt.Errorf("migrate: %q has no publication date", old)
	}
	f := itemid.FromTime(published, toks[0], toks[1], site, s[i+len(itemid.Separator):])
	if err := f.Validate(); err != nil {
		return "", false, fmt.Errorf("migrate: %q: %w", old, err)
	}
	return f.String(), true, nil
}

// UpgradeStoreFile rekeys every legacy entry of the store at path and
// rewrites it when anything changed. It returns the number of upgraded
// entries.
func UpgradeStoreFile(path, site string, logger *slog.Logger) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var store item.ItemsFile
	if err := datadir.ReadJSON(path, &store); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	upgraded := make(map[string]*item.FormattedItem, len(store.Items))
	n := 0
	for key, it := range store.Items {
		published := it.DatePublished
		if published.IsZero() {
			published = it.OriginalPublished
		}
		id, changed, err := UpgradeIdentifier(it.ID, published, site)
		if err != nil {
			logger.Warn("migrate: skip entry", "path", path, "key", key, "error", err)
			upgraded[key] = it
			continue
		}
		if changed {
			n++
			it.ID = id
		}
		upgraded[it.ID] = it
	}
	if n == 0 {
		return 0, nil
	}
	store.Items = upgraded
	if err := datadir.WriteJSON(path, &store); err != nil {
		return 0, fmt.Errorf("migrate: %w", err)
	}
	logger.Info("migrate: store upgraded", "path", path, "entries", n)
	return n, nil
}
