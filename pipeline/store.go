package pipeline

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
)

// loadStore reads a site's live store; a missing file is an empty store.
func (r *Runner) loadStore(site string) (*item.ItemsFile, error) {
	f := item.NewItemsFile()
	err := datadir.ReadJSON(r.layout.Store(site), f)
	if errors.Is(err, fs.ErrNotExist) {
		return item.NewItemsFile(), nil
	}
	if err != nil {
		return nil, err
	}
	if f.Items == nil {
		f.Items = make(map[string]*item.FormattedItem)
	}
	return f, nil
}

// published caches the identifiers of each site's live store for the
// duration of one stage.
type published struct {
	r     *Runner
	sites map[string]map[string]bool
}

func (r *Runner) newPublished() *published {
	return &published{r: r, sites: make(map[string]map[string]bool)}
}

func (p *published) has(site, id string) (bool, error) {
	ids, ok := p.sites[site]
	if !ok {
		f, err := p.r.loadStore(site)
		if err != nil {
			return false, err
		}
		ids = make(map[string]bool, len(f.Items))
		for id := range f.Items {
			ids[id] = true
		}
		p.sites[site] = ids
	}
	return ids[id], nil
}

// fileExists reports whether path is a regular file.
func fileExists(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}

// identifierOf decodes the identifier of a stage file path.
func identifierOf(path string) (itemid.Fields, error) {
	return itemid.FromFileName(filepath.Base(path))
}
