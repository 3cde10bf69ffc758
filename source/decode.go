package source

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"
)

// FeedDecoder parses RSS, Atom and JSON Feed payloads with gofeed. Each
// record is a JSON-encoded gofeed.Item.
type FeedDecoder struct{}

func (FeedDecoder) Decode(payload []byte, _ string) ([]json.RawMessage, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("source: empty feed")
	}
	f, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("source: parse feed: %w", err)
	}
	out := make([]json.RawMessage, 0, len(f.Items))
	for _, it := range f.Items {
		rec, err := json.Marshal(it)
		if err != nil {
			return nil, fmt.Errorf("source: encode feed item: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// JSONDecoder walks a dotted path ("data.children", "hits.0.items") to
// the record array of a JSON payload.
type JSONDecoder struct {
	DefaultPath string
}

func (d JSONDecoder) Decode(payload []byte, itemsPath string) ([]json.RawMessage, error) {
	if itemsPath == "" {
		itemsPath = d.DefaultPath
	}
	var cur json.RawMessage = payload
	for _, key := range splitPath(itemsPath) {
		next, err := step(cur, key)
		if err != nil {
			return nil, fmt.Errorf("source: items path %q: %w", itemsPath, err)
		}
		cur = next
	}
	var recs []json.RawMessage
	if err := json.Unmarshal(cur, &recs); err != nil {
		return nil, fmt.Errorf("source: items path %q is not an array: %w", itemsPath, err)
	}
	return recs, nil
}

func splitPath(p string) []string {
	var out []string
	for _, k := range strings.Split(p, ".") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func step(cur json.RawMessage, key string) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(cur)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("key %q indexes an array", key)
		}
		var arr []json.RawMessage
		if err := json.Unmarshal(cur, &arr); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(arr) {
			return nil, fmt.Errorf("index %d out of range", idx)
		}
		return arr[idx], nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(cur, &obj); err != nil {
		return nil, err
	}
	v, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("key %q not found", key)
	}
	return v, nil
}
