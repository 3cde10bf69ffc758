package itemid

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FetchStampLayout is the fetch-time prefix of raw capture file names.
const FetchStampLayout = "20060102T150405.000Z"

const rawSep = "--"

// RawName is the file name of a raw capture: fetch time, run-wide capture
// order and the cache key of the captured content.
//
//	20261017T083000.125Z--000003--2026_10_16_en_rss__abc.json
type RawName struct {
	FetchedAt time.Time
	Order     int
	CacheKey  string
}

// Format renders the file name including the ".json" extension. The id
// part of the cache key is path-escaped as in FileName.
func (r RawName) Format() string {
	return r.FetchedAt.UTC().Format(FetchStampLayout) + rawSep +
		fmt.Sprintf("%06d", r.Order) + rawSep + escapeKey(r.CacheKey) + fileExt
}

// ParseRawName parses a raw capture file name.
func ParseRawName(name string) (RawName, error) {
	name = TrimExt(name)
	parts := strings.SplitN(name, rawSep, 3)
	if len(parts) != 3 {
		return RawName{}, malformed(name, "raw capture name needs stamp--order--cachekey")
	}
	at, err := time.Parse(FetchStampLayout, parts[0])
	if err != nil {
		return RawName{}, malformed(name, "bad fetch stamp")
	}
	order, err := strconv.Atoi(parts[1])
	if err != nil {
		return RawName{}, malformed(name, "bad capture order")
	}
	key, err := unescapeKey(parts[2])
	if err != nil {
		return RawName{}, err
	}
	if _, err := DecodeCacheKey(key); err != nil {
		return RawName{}, err
	}
	return RawName{FetchedAt: at, Order: order, CacheKey: key}, nil
}
