package item

import (
	"encoding/json"
	"sort"
	"time"
)

// ItemsFile is the per-site canonical item store.
type ItemsFile struct {
	Meta  map[string]string         `json:"meta,omitempty"`
	Items map[string]*FormattedItem `json:"items"`
}

// NewItemsFile returns an empty store.
func NewItemsFile() *ItemsFile {
	return &ItemsFile{Items: make(map[string]*FormattedItem)}
}

// Put inserts or replaces it under its identifier.
func (f *ItemsFile) Put(it *FormattedItem) {
	if f.Items == nil {
		f.Items = make(map[string]*FormattedItem)
	}
	f.Items[it.ID] = it
}

// Keys returns the sorted identifiers.
func (f *ItemsFile) Keys() []string {
	keys := make([]string, 0, len(f.Items))
	for k := range f.Items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Normalized is what a source adapter extracts from one payload record.
type Normalized struct {
	ID                string    `json:"id"`
	Type              string    `json:"type"`
	Language          string    `json:"language"`
	OriginalPublished time.Time `json:"original_published"`
	URL               string    `json:"url"`
	ExternalURL       string    `json:"external_url,omitempty"`
	// Image is the adapter-provided image. NoImage marks items that must
	// never get one looked up.
	Image       string   `json:"image,omitempty"`
	NoImage     bool     `json:"no_image,omitempty"`
	Video       *Video   `json:"video,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Authors     []Author `json:"authors,omitempty"`
	Score       int      `json:"score,omitempty"`
	NumComments int      `json:"num_comments,omitempty"`
	Links       []Link   `json:"links,omitempty"`
	TitlePrefix string   `json:"title_prefix,omitempty"`
	TitleSuffix string   `json:"title_suffix,omitempty"`
	Sensitive   bool     `json:"sensitive,omitempty"`
	// Fields are the translatable texts in the original language.
	Fields map[string]string `json:"fields"`
	// HTMLFields names the Fields entries that hold HTML markup.
	HTMLFields []string `json:"html_fields,omitempty"`
	// Translations carries a full translation state when the record was
	// already formatted elsewhere.
	Translations Translations `json:"translations,omitempty"`
}

// Title returns the original-language title.
func (n *Normalized) Title() string { return n.Fields["title"] }

// RawCapture is the durable as-fetched record written by the fetch stage.
type RawCapture struct {
	FetchedAt   time.Time       `json:"fetched_at"`
	SourceID    string          `json:"source_id"`
	SourceType  string          `json:"source_type"`
	TargetSites []string        `json:"target_sites"`
	ContentHash string          `json:"content_hash"`
	Item        *Normalized     `json:"item"`
	Record      json.RawMessage `json:"record,omitempty"`
}
