package item

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestTranslations_MissingAndComplete(t *testing.T) {
	it := &FormattedItem{
		ID:               "x",
		OriginalLanguage: "en",
		Translations: Translations{
			"en":      {"title": "Hello", "summary": "World"},
			"zh-Hans": {"title": "你好"},
		},
	}
	if got := it.Translations.Missing("en", "zh-Hans"); !reflect.DeepEqual(got, []string{"summary"}) {
		t.Errorf("missing zh-Hans: %v", got)
	}
	if got := it.Translations.Missing("en", "ja"); !reflect.DeepEqual(got, []string{"summary", "title"}) {
		t.Errorf("missing ja: %v", got)
	}
	if it.Complete([]string{"en", "zh-Hans"}) {
		t.Error("should be incomplete")
	}
	it.Translations.Set("zh-Hans", "summary", "世界")
	if !it.Complete([]string{"en", "zh-Hans"}) {
		t.Error("should be complete")
	}
}

func TestTranslations_CloneIsDeep(t *testing.T) {
	orig := Translations{"en": {"title": "a"}}
	cp := orig.Clone()
	cp.Set("en", "title", "b")
	if orig["en"]["title"] != "a" {
		t.Error("clone shares maps")
	}
}

func TestItemsFile_PutOverwrites(t *testing.T) {
	// WHAT: Publishing the same identifier twice keeps one entry with the second content.
	// WHY: Republishing must never duplicate.
	f := NewItemsFile()
	f.Put(&FormattedItem{ID: "id1", URL: "https://a"})
	f.Put(&FormattedItem{ID: "id1", URL: "https://b"})
	if len(f.Items) != 1 {
		t.Fatalf("items: got %d", len(f.Items))
	}
	if f.Items["id1"].URL != "https://b" {
		t.Errorf("url: got %q", f.Items["id1"].URL)
	}
}

func TestFormattedItem_JSONShape(t *testing.T) {
	it := &FormattedItem{
		ID:                "2026_10_17_en_rss_s__1",
		URL:               "https://example.com/1",
		DatePublished:     time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		DateModified:      time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC),
		OriginalPublished: time.Date(2026, 10, 16, 0, 0, 0, 0, time.UTC),
		OriginalLanguage:  "en",
		Translations:      Translations{"en": {"title": "t"}},
	}
	data, err := json.Marshal(it)
	if err != nil {
		t.Fatal(err)
	}
	s := string(data)
	for _, key := range []string{`"_translations"`, `"_original_language"`, `"_original_published"`, `"date_published"`} {
		if !strings.Contains(s, key) {
			t.Errorf("missing %s in %s", key, s)
		}
	}
	for _, key := range []string{`"_score"`, `"tags"`, `"_video"`, `"_sensitive"`} {
		if strings.Contains(s, key) {
			t.Errorf("unexpected %s in %s", key, s)
		}
	}
}
