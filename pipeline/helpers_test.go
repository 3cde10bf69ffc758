package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/hazyhaar/babelfeed/config"
	"github.com/hazyhaar/babelfeed/internal/idgen"
	"github.com/hazyhaar/babelfeed/rules"
	"github.com/hazyhaar/babelfeed/translate"
)

// echoSession answers "<target>:<text>" like a translator page would.
type echoSession struct {
	opens        int
	closes       int
	inputs       int
	target       string
	text         string
	unsupported  map[string]bool
	staleOutputs int
}

func newEcho() *echoSession { return &echoSession{unsupported: map[string]bool{}} }

func (s *echoSession) Open(context.Context) error { s.opens++; return nil }

func (s *echoSession) SetSource(_ context.Context, lang string) error {
	if s.unsupported[lang] {
		return &translate.UnsupportedLanguageError{Language: lang, Role: "source"}
	}
	return nil
}

func (s *echoSession) SetTarget(_ context.Context, lang string) error {
	if s.unsupported[lang] {
		return &translate.UnsupportedLanguageError{Language: lang, Role: "target"}
	}
	s.target = lang
	return nil
}

func (s *echoSession) Input(_ context.Context, text string) error {
	s.inputs++
	s.text = text
	return nil
}

func (s *echoSession) Output(context.Context) (string, error) {
	if s.staleOutputs > 0 {
		s.staleOutputs--
		return "", translate.ErrSessionStale
	}
	return s.target + ":" + s.text, nil
}

func (s *echoSession) Clear(context.Context) error { s.text = ""; return nil }
func (s *echoSession) Close() error                { s.closes++; return nil }

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// sourceServer serves mutable payloads by path and honours If-None-Match
// when an ETag is set for the path.
type sourceServer struct {
	*httptest.Server
	mu     sync.Mutex
	bodies map[string]string
	etags  map[string]string
	status map[string]int
	hits   map[string]int
}

func newSourceServer(t *testing.T) *sourceServer {
	t.Helper()
	s := &sourceServer{bodies: map[string]string{}, etags: map[string]string{}, status: map[string]int{}, hits: map[string]int{}}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.hits[r.URL.Path]++
		if code := s.status[r.URL.Path]; code != 0 {
			w.WriteHeader(code)
			return
		}
		if tag := s.etags[r.URL.Path]; tag != "" {
			if r.Header.Get("If-None-Match") == tag {
				w.WriteHeader(http.StatusNotModified)
				return
			}
			w.Header().Set("ETag", tag)
		}
		body, ok := s.bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *sourceServer) set(path, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[path] = body
}

// testConfig has two sites sharing the hn-front source and a blog feed
// published only on tech.
func testConfig(t *testing.T, base string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Translation.OverridesDir = ""
	cfg.Format.ImageLookup = false
	cfg.Languages = []config.Language{
		{Code: "en"},
		{Code: "fr"},
		{Code: "zh-Hans"},
		{Code: "zh-Hant", DerivedFrom: "zh-Hans"},
	}
	cfg.Sites = map[string]config.Site{
		"hn":   {Tags: []string{"hn-front"}},
		"tech": {Tags: []string{"hn-front", "blog"}},
	}
	cfg.Sources = []config.Source{
		{ID: "hn-front", Type: "hn", URLs: []string{base + "/hn"}, Rules: []rules.Rule{
			{Type: rules.TypeGreaterEqual, Key: "score", Value: "100"},
		}},
		{ID: "blog", Type: "rss", Language: "en", URLs: []string{base + "/rss"}},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func testEngine(cfg *config.Config, s translate.Session) *translate.Engine {
	return translate.New(translate.Config{
		Languages:       cfg.LanguageCodes(),
		ItemsPerSession: cfg.Translation.ItemsPerSession,
		Mock:            cfg.Translation.Mock,
		Derived: map[string]translate.Derivation{
			"zh-Hant": {From: "zh-Hans", Convert: func(s string) (string, error) { return "hant(" + s + ")", nil }},
		},
	}, s)
}

func newTestRunner(t *testing.T, cfg *config.Config, s translate.Session, clock *fakeClock, mutate ...func(*Options)) *Runner {
	t.Helper()
	opts := Options{
		Config: cfg,
		Engine: testEngine(cfg, s),
		Now:    clock.Now,
		NewID:  idgen.Sequence("run"),
	}
	for _, m := range mutate {
		m(&opts)
	}
	r, err := NewRunner(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

const hnPayload = `{"hits":[
	{"objectID":"1","title":"First story","url":"https://example.com/a","author":"pg","points":150,"num_comments":12,"created_at_i":1704790800,"_tags":["story"]},
	{"objectID":"2","title":"Second story","url":"https://example.com/b","author":"dang","points":120,"created_at_i":1704794400,"_tags":["story","show_hn"]},
	{"objectID":"3","title":"Low score","url":"https://example.com/c","points":5,"created_at_i":1704794500}
]}`

const rssPayload = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Blog</title><link>https://blog.example.com</link>
<item>
  <title>Feed &amp; post</title>
  <link>https://blog.example.com/post-1</link>
  <guid>post-1</guid>
  <pubDate>Tue, 09 Jan 2024 08:00:00 GMT</pubDate>
  <description><![CDATA[<p>Hello <em>world</em></p>]]></description>
</item>
</channel></rss>`

// runStart is Wednesday of ISO week 2024-W02.
var runStart = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
