// CLAUDE:SUMMARY Canonical FormattedItem, TranslationState and per-site ItemsFile types shared by every stage.
// Package item defines the durable records exchanged between pipeline
// stages: the formatted item, its translation state and the per-site
// item store file.
package item

import (
	"sort"
	"time"
)

// Author of an item.
type Author struct {
	Name   string `json:"name"`
	URL    string `json:"url,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// Link is an auxiliary link rendered next to the item.
type Link struct {
	URL  string `json:"url"`
	Name string `json:"name"`
}

// VideoSource is one encoding of a video.
type VideoSource struct {
	URL  string `json:"url"`
	Type string `json:"type,omitempty"`
}

// Video attached to an item.
type Video struct {
	Sources []VideoSource `json:"sources"`
	Poster  string        `json:"poster,omitempty"`
	Width   int           `json:"width,omitempty"`
	Height  int           `json:"height,omitempty"`
}

// FormattedItem is the canonical normalized record. Everything but
// Translations is fixed once translation begins.
type FormattedItem struct {
	ID                string       `json:"id"`
	URL               string       `json:"url"`
	DatePublished     time.Time    `json:"date_published"`
	DateModified      time.Time    `json:"date_modified"`
	Image             string       `json:"image,omitempty"`
	ExternalURL       string       `json:"external_url,omitempty"`
	Tags              []string     `json:"tags,omitempty"`
	Authors           []Author     `json:"authors,omitempty"`
	Score             int          `json:"_score,omitempty"`
	NumComments       int          `json:"_num_comments,omitempty"`
	Video             *Video       `json:"_video,omitempty"`
	Sensitive         bool         `json:"_sensitive,omitempty"`
	OriginalPublished time.Time    `json:"_original_published"`
	OriginalLanguage  string       `json:"_original_language"`
	TitlePrefix       string       `json:"_title_prefix,omitempty"`
	TitleSuffix       string       `json:"_title_suffix,omitempty"`
	Links             []Link       `json:"_links,omitempty"`
	Translations      Translations `json:"_translations"`
}

// Original returns the translatable fields in the original language.
func (it *FormattedItem) Original() (map[string]string, bool) {
	fields, ok := it.Translations[it.OriginalLanguage]
	return fields, ok
}

// Complete reports whether every original field has a value in every
// language of langs.
func (it *FormattedItem) Complete(langs []string) bool {
	for _, lang := range langs {
		if len(it.Translations.Missing(it.OriginalLanguage, lang)) > 0 {
			return false
		}
	}
	return true
}

// Translations maps language code to field name to text.
type Translations map[string]map[string]string

// Set assigns text for lang/field, creating the language entry if needed.
func (t Translations) Set(lang, field, text string) {
	if t[lang] == nil {
		t[lang] = make(map[string]string)
	}
	t[lang][field] = text
}

// Has reports whether lang already has a value for field.
func (t Translations) Has(lang, field string) bool {
	_, ok := t[lang][field]
	return ok
}

// Missing returns, sorted, the fields of the original language entry that
// have no value in lang.
func (t Translations) Missing(original, lang string) []string {
	var out []string
	for field := range t[original] {
		if !t.Has(lang, field) {
			out = append(out, field)
		}
	}
	sort.Strings(out)
	return out
}

// Fields returns the sorted field names of the original language entry.
func (t Translations) Fields(original string) []string {
	out := make([]string, 0, len(t[original]))
	for field := range t[original] {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy.
func (t Translations) Clone() Translations {
	out := make(Translations, len(t))
	for lang, fields := range t {
		cp := make(map[string]string, len(fields))
		for k, v := range fields {
			cp[k] = v
		}
		out[lang] = cp
	}
	return out
}
