package pipeline

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
)

type fakeImages struct {
	calls []string
	image string
}

func (f *fakeImages) FindImage(_ context.Context, pageURL string) (string, error) {
	f.calls = append(f.calls, pageURL)
	return f.image, nil
}

func writeCapture(t *testing.T, r *Runner, order int, n *item.Normalized, sites ...string) string {
	t.Helper()
	f := itemid.FromTime(n.OriginalPublished, n.Language, n.Type, "x", n.ID)
	name := itemid.RawName{FetchedAt: runStart, Order: order, CacheKey: f.CacheKey()}
	path := r.layout.RawPath(name)
	rc := &item.RawCapture{FetchedAt: runStart, SourceID: "hn-front", SourceType: n.Type, TargetSites: sites, Item: n}
	if err := datadir.WriteJSON(path, rc); err != nil {
		t.Fatal(err)
	}
	return path
}

func normalized(id, url string) *item.Normalized {
	return &item.Normalized{
		ID: id, Type: "hn", Language: "en", URL: url,
		OriginalPublished: time.Date(2024, 1, 9, 9, 0, 0, 0, time.UTC),
		Fields:            map[string]string{"title": "  <b>Bold</b>   title ", "summary": "<p>Some <a href=\"/x\">link</a></p>"},
		HTMLFields:        []string{"summary"},
	}
}

func TestFormat_FanOutAndClean(t *testing.T) {
	// WHAT: One capture becomes one formatted item per target site with cleaned fields.
	// WHY: Sites share a capture but publish independent identifiers.
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	r := newTestRunner(t, cfg, newEcho(), &fakeClock{t: runStart})
	raw := writeCapture(t, r, 0, normalized("1", "https://example.com/a"), "hn", "tech", "gone")

	st, err := r.Format(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Formatted != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if fileExists(raw) {
		t.Error("raw capture not removed")
	}
	for _, site := range []string{"hn", "tech"} {
		f, _ := itemid.Decode("2024_01_09_en_hn_" + site + "__1")
		var fi item.FormattedItem
		if err := datadir.ReadJSON(r.layout.FormattedPath(f), &fi); err != nil {
			t.Fatalf("%s: %v", site, err)
		}
		if fi.ID != f.String() || fi.OriginalLanguage != "en" || !fi.DateModified.Equal(runStart) {
			t.Errorf("%s: %+v", site, fi)
		}
		if got := fi.Translations["en"]["title"]; got != "Bold title" {
			t.Errorf("title = %q", got)
		}
		if got := fi.Translations["en"]["summary"]; strings.Contains(got, "<") || !strings.Contains(got, "link") {
			t.Errorf("summary = %q", got)
		}
	}
}

func TestFormat_SkipsExistingAndRequestedSites(t *testing.T) {
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	r := newTestRunner(t, cfg, newEcho(), &fakeClock{t: runStart})
	f, _ := itemid.Decode("2024_01_09_en_hn_hn__1")
	if err := datadir.WriteJSON(r.layout.TranslatedPath(f), &item.FormattedItem{ID: f.String()}); err != nil {
		t.Fatal(err)
	}
	raw := writeCapture(t, r, 0, normalized("1", "https://example.com/a"), "hn", "tech")

	// Only hn requested: hn exists already, tech is left for later.
	st, err := r.Format(context.Background(), []string{"hn"})
	if err != nil {
		t.Fatal(err)
	}
	if st.Existing != 1 || st.Formatted != 0 || !fileExists(raw) {
		t.Fatalf("hn only: %+v, raw kept %v", st, fileExists(raw))
	}
	st, err = r.Format(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Formatted != 1 || fileExists(raw) {
		t.Errorf("all sites: %+v, raw kept %v", st, fileExists(raw))
	}
}

func TestFormat_ImageLookup(t *testing.T) {
	// WHAT: Pages without an adapter image get an image lookup unless their host is denied or mock mode is on.
	// WHY: Probing github.com or HN pages never yields a useful preview.
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Format.ImageLookup = true
	imgs := &fakeImages{image: "https://cdn.example.com/p.png"}
	r := newTestRunner(t, cfg, newEcho(), &fakeClock{t: runStart}, func(o *Options) { o.Images = imgs })

	writeCapture(t, r, 0, normalized("1", "https://example.com/a"), "hn")
	writeCapture(t, r, 1, normalized("2", "https://github.com/x/y"), "hn")
	noImg := normalized("3", "https://example.com/c")
	noImg.NoImage = true
	writeCapture(t, r, 2, noImg, "hn")

	if _, err := r.Format(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(imgs.calls) != 1 || imgs.calls[0] != "https://example.com/a" {
		t.Fatalf("lookups = %v", imgs.calls)
	}
	f, _ := itemid.Decode("2024_01_09_en_hn_hn__1")
	var fi item.FormattedItem
	if err := datadir.ReadJSON(r.layout.FormattedPath(f), &fi); err != nil {
		t.Fatal(err)
	}
	if fi.Image != imgs.image {
		t.Errorf("image = %q", fi.Image)
	}

	cfg.Translation.Mock = true
	writeCapture(t, r, 3, normalized("4", "https://example.com/d"), "hn")
	if _, err := r.Format(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	if len(imgs.calls) != 1 {
		t.Errorf("mock mode looked up %v", imgs.calls[1:])
	}
}

func TestFormat_DevCap(t *testing.T) {
	// WHAT: Dev mode writes at most max_files_per_site per site and keeps the rest raw.
	// WHY: Local runs should not translate a whole backlog.
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	cfg.Dev.Enabled = true
	cfg.Dev.MaxFilesPerSite = 1
	r := newTestRunner(t, cfg, newEcho(), &fakeClock{t: runStart})
	writeCapture(t, r, 0, normalized("1", "https://example.com/a"), "hn")
	writeCapture(t, r, 1, normalized("2", "https://example.com/b"), "hn")

	st, err := r.Format(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Formatted != 1 || st.Deferred != 1 {
		t.Errorf("stats = %+v", st)
	}
	if files, _ := datadir.ListJSON(r.layout.Raw()); len(files) != 1 {
		t.Errorf("raw left = %v", files)
	}
}

func TestFormat_PassthroughKeepsTranslations(t *testing.T) {
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	r := newTestRunner(t, cfg, newEcho(), &fakeClock{t: runStart})
	n := normalized("1", "https://example.com/a")
	n.Translations = item.Translations{"en": {"title": "Hello"}, "fr": {"title": "Bonjour"}}
	writeCapture(t, r, 0, n, "hn")

	if _, err := r.Format(context.Background(), nil); err != nil {
		t.Fatal(err)
	}
	f, _ := itemid.Decode("2024_01_09_en_hn_hn__1")
	var fi item.FormattedItem
	if err := datadir.ReadJSON(r.layout.FormattedPath(f), &fi); err != nil {
		t.Fatal(err)
	}
	if fi.Translations["fr"]["title"] != "Bonjour" || fi.Translations["en"]["title"] != "Hello" {
		t.Errorf("translations = %v", fi.Translations)
	}
}

func TestImageFromHTML(t *testing.T) {
	cases := []struct {
		name, html, want string
	}{
		{"og", `<html><head><meta property="og:image" content="https://cdn.example.com/a.png"></head></html>`, "https://cdn.example.com/a.png"},
		{"relative", `<html><head><meta name="twitter:image" content="/img/b.png"></head></html>`, "https://example.com/img/b.png"},
		{"link", `<html><head><link rel="image_src" href="https://cdn.example.com/c.png"></head></html>`, "https://cdn.example.com/c.png"},
		{"data uri", `<html><head><meta property="og:image" content="data:image/png;base64,AAAA"></head></html>`, ""},
		{"none", `<html><head><title>x</title></head></html>`, ""},
	}
	for _, tc := range cases {
		got, err := imageFromHTML([]byte(tc.html), "https://example.com/post/1")
		if err != nil || got != tc.want {
			t.Errorf("%s: got %q, %v; want %q", tc.name, got, err, tc.want)
		}
	}
}

func TestParseStages(t *testing.T) {
	all, err := ParseStages("")
	if err != nil || len(all) != len(AllStages) {
		t.Fatalf("empty: %v %v", all, err)
	}
	got, err := ParseStages("fetch, publish")
	if err != nil || len(got) != 2 || got[1] != StagePublish {
		t.Fatalf("got %v %v", got, err)
	}
	if _, err := ParseStages("fetch,deploy"); err == nil {
		t.Error("unknown stage accepted")
	}
}

func TestFormat_DropsCaptureWithoutText(t *testing.T) {
	// WHAT: A capture whose fields are all empty after cleaning is counted invalid and removed.
	// WHY: Translate treats a missing original text as fatal for the whole run.
	srv := newSourceServer(t)
	cfg := testConfig(t, srv.URL)
	r := newTestRunner(t, cfg, newEcho(), &fakeClock{t: runStart})
	empty := normalized("1", "https://example.com/a")
	empty.Fields = map[string]string{"title": `<img src="x.png">`, "summary": "<p> </p>"}
	emptyRaw := writeCapture(t, r, 0, empty, "hn")
	goodRaw := writeCapture(t, r, 1, normalized("2", "https://example.com/b"), "hn")

	st, err := r.Format(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if st.Invalid != 1 || st.Formatted != 1 {
		t.Fatalf("stats = %+v", st)
	}
	if fileExists(emptyRaw) || fileExists(goodRaw) {
		t.Error("raw captures not removed")
	}
	f, _ := itemid.Decode("2024_01_09_en_hn_hn__1")
	if fileExists(r.layout.FormattedPath(f)) {
		t.Error("formatted file written for empty capture")
	}
}
