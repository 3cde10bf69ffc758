// CLAUDE:SUMMARY Canonical item identifier codec: encode/decode, cache key derivation, file-name helpers.
// Package itemid encodes and decodes canonical item identifiers.
//
// Grammar:
//
//	year_month_day_language_type_site__id
//
// The safe segment before the first "__" holds six single-underscore
// tokens. Everything after the first "__" is the opaque id and is never
// split further, even when it contains "__" itself.
//
// The cache key drops the site token so that one piece of content fetched
// for several sites collides across sites but never within one site:
//
//	year_month_day_language_type__id
package itemid

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// Separator splits the safe metadata segment from the raw id.
	Separator = "__"
	tokenSep  = "_"
	fileExt   = ".json"

	// unsafeChars may not appear in metadata tokens, which become
	// directory and file name segments.
	unsafeChars = "/\\\x00"

	identifierTokens = 6
	cacheKeyTokens   = 5
)

// Fields is the decoded tuple of an identifier.
type Fields struct {
	Year     int
	Month    int
	Day      int
	Language string
	Type     string
	Site     string
	ID       string
}

// FromTime returns Fields with the date taken from t in UTC.
func FromTime(t time.Time, language, typ, site, id string) Fields {
	t = t.UTC()
	return Fields{
		Year:     t.Year(),
		Month:    int(t.Month()),
		Day:      t.Day(),
		Language: language,
		Type:     typ,
		Site:     site,
		ID:       id,
	}
}

// Validate reports whether f can be encoded without losing information.
func (f Fields) Validate() error {
	if f.Year < 1 || f.Year > 9999 {
		return fmt.Errorf("itemid: year %d out of range", f.Year)
	}
	if f.Month < 1 || f.Month > 12 {
		return fmt.Errorf("itemid: month %d out of range", f.Month)
	}
	if f.Day < 1 || f.Day > 31 {
		return fmt.Errorf("itemid: day %d out of range", f.Day)
	}
	for name, tok := range map[string]string{"language": f.Language, "type": f.Type, "site": f.Site} {
		if tok == "" {
			return fmt.Errorf("itemid: empty %s", name)
		}
		if strings.Contains(tok, tokenSep) {
			return fmt.Errorf("itemid: %s %q contains %q", name, tok, tokenSep)
		}
		if strings.ContainsAny(tok, unsafeChars) || tok == "." || tok == ".." {
			return fmt.Errorf("itemid: %s %q is not a safe path segment", name, tok)
		}
	}
	if f.ID == "" {
		return fmt.Errorf("itemid: empty id")
	}
	return nil
}

// String returns the encoded identifier.
func (f Fields) String() string { return Encode(f) }

// CacheKey returns the identifier with the site token removed.
func (f Fields) CacheKey() string {
	return datePrefix(f) + tokenSep + f.Language + tokenSep + f.Type + Separator + f.ID
}

// WithSite returns a copy of f targeting another site.
func (f Fields) WithSite(site string) Fields {
	f.Site = site
	return f
}

// Date returns midnight UTC of the original published day.
func (f Fields) Date() time.Time {
	return time.Date(f.Year, time.Month(f.Month), f.Day, 0, 0, 0, 0, time.UTC)
}

// Encode renders f as an identifier string.
func Encode(f Fields) string {
	return datePrefix(f) + tokenSep + f.Language + tokenSep + f.Type + tokenSep + f.Site + Separator + f.ID
}

// Decode parses an identifier. The input is taken verbatim; use
// FromFileName for stage file names.
func Decode(s string) (Fields, error) {
	safe, id, err := split(s)
	if err != nil {
		return Fields{}, err
	}
	toks := strings.Split(safe, tokenSep)
	if len(toks) < identifierTokens {
		return Fields{}, malformed(s, fmt.Sprintf("expected %d metadata tokens, got %d", identifierTokens, len(toks)))
	}
	f, err := parseDate(s, toks)
	if err != nil {
		return Fields{}, err
	}
	f.Language = toks[3]
	f.Type = toks[4]
	// Tolerate extra tokens by folding them into the site.
	f.Site = strings.Join(toks[5:], tokenSep)
	f.ID = id
	return f, nil
}

// CacheKey derives the cache key of an encoded identifier.
func CacheKey(identifier string) (string, error) {
	f, err := Decode(identifier)
	if err != nil {
		return "", err
	}
	return f.CacheKey(), nil
}

// DecodeCacheKey parses a cache key back into Fields with an empty Site.
func DecodeCacheKey(key string) (Fields, error) {
	safe, id, err := split(key)
	if err != nil {
		return Fields{}, err
	}
	toks := strings.Split(safe, tokenSep)
	if len(toks) != cacheKeyTokens {
		return Fields{}, malformed(key, fmt.Sprintf("expected %d cache key tokens, got %d", cacheKeyTokens, len(toks)))
	}
	f, err := parseDate(key, toks)
	if err != nil {
		return Fields{}, err
	}
	f.Language = toks[3]
	f.Type = toks[4]
	f.ID = id
	return f, nil
}

// TrimExt removes a trailing ".json".
func TrimExt(name string) string {
	return strings.TrimSuffix(name, fileExt)
}

// FileName returns the stage file name of an identifier. The opaque id is
// path-escaped so the name is always a single path segment.
func FileName(identifier string) string {
	return escapeKey(identifier) + fileExt
}

// FromFileName decodes the identifier of a stage file name produced by
// FileName.
func FromFileName(name string) (Fields, error) {
	id, err := unescapeKey(TrimExt(name))
	if err != nil {
		return Fields{}, err
	}
	return Decode(id)
}

// escapeKey path-escapes the id part of an identifier or cache key.
func escapeKey(key string) string {
	i := strings.Index(key, Separator)
	if i < 0 {
		return url.PathEscape(key)
	}
	return key[:i+len(Separator)] + url.PathEscape(key[i+len(Separator):])
}

func unescapeKey(name string) (string, error) {
	i := strings.Index(name, Separator)
	if i < 0 {
		return "", malformed(name, "missing "+Separator+" separator")
	}
	id, err := url.PathUnescape(name[i+len(Separator):])
	if err != nil {
		return "", malformed(name, "bad id escape")
	}
	return name[:i+len(Separator)] + id, nil
}

func split(s string) (safe, id string, err error) {
	i := strings.Index(s, Separator)
	if i < 0 {
		return "", "", malformed(s, "missing "+Separator+" separator")
	}
	return s[:i], s[i+len(Separator):], nil
}

func parseDate(s string, toks []string) (Fields, error) {
	var f Fields
	var err error
	if f.Year, err = strconv.Atoi(toks[0]); err != nil {
		return Fields{}, malformed(s, "year is not numeric")
	}
	if f.Month, err = strconv.Atoi(toks[1]); err != nil {
		return Fields{}, malformed(s, "month is not numeric")
	}
	if f.Day, err = strconv.Atoi(toks[2]); err != nil {
		return Fields{}, malformed(s, "day is not numeric")
	}
	return f, nil
}

func datePrefix(f Fields) string {
	return fmt.Sprintf("%04d_%02d_%02d", f.Year, f.Month, f.Day)
}
