// CLAUDE:SUMMARY Source adapter boundary: payload decoders plus one Adapter per source type, selected by type tag.
// Package source turns fetched payloads into normalized items.
//
// A payload is split into records by a Decoder (feed XML or JSON with an
// items path) and each record is normalized by the Adapter registered for
// the source type. The fetch stage treats every source type uniformly
// through this interface.
package source

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hazyhaar/babelfeed/item"
)

// Meta is the per-fetch context passed to adapters.
type Meta struct {
	SourceID  string
	FetchedAt time.Time
	// Language is the configured source language, used when the record
	// does not carry one.
	Language string
}

// Adapter normalizes one record of a given source type.
type Adapter interface {
	Type() string
	// Decoder splits a fetched payload into records.
	Decoder() Decoder
	// Normalize maps one record to the common item fields.
	Normalize(record json.RawMessage, meta Meta) (*item.Normalized, error)
}

// Decoder splits a payload into records. itemsPath overrides the
// decoder's default location of the record list.
type Decoder interface {
	Decode(payload []byte, itemsPath string) ([]json.RawMessage, error)
}

// Registry maps source type tags to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	r.Register(&RSSAdapter{})
	r.Register(&HNAdapter{})
	r.Register(&RedditAdapter{})
	r.Register(&PassthroughAdapter{})
	return r
}

// Register adds or replaces the adapter for its type.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Type()] = a
}

// Lookup returns the adapter for a source type.
func (r *Registry) Lookup(sourceType string) (Adapter, error) {
	a, ok := r.adapters[sourceType]
	if !ok {
		return nil, fmt.Errorf("source: no adapter for type %q", sourceType)
	}
	return a, nil
}

// Types returns the registered type tags, sorted.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Normalize decodes payload with the adapter's decoder and normalizes
// every record. Records that fail to normalize are returned in errs and
// skipped.
func Normalize(a Adapter, payload []byte, itemsPath string, meta Meta) (items []*item.Normalized, records []json.RawMessage, errs []error) {
	recs, err := a.Decoder().Decode(payload, itemsPath)
	if err != nil {
		return nil, nil, []error{err}
	}
	for i, rec := range recs {
		n, err := a.Normalize(rec, meta)
		if err != nil {
			errs = append(errs, fmt.Errorf("source: record %d: %w", i, err))
			continue
		}
		if n.Type == "" {
			n.Type = a.Type()
		}
		if n.Language == "" {
			n.Language = meta.Language
		}
		if n.Language == "" {
			n.Language = "en"
		}
		items = append(items, n)
		records = append(records, rec)
	}
	return items, records, errs
}
