package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/babelfeed/translate"
)

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Selectors: Selectors{Input: "#in"}}
	cfg.defaults()
	if cfg.PageURL != DefaultPageURL || cfg.Timeout != 30*time.Second {
		t.Errorf("unexpected %+v", cfg)
	}
	if cfg.Selectors.Input != "#in" {
		t.Errorf("custom selector overwritten: %q", cfg.Selectors.Input)
	}
	if cfg.Selectors.Output != DefaultSelectors().Output {
		t.Errorf("default selector missing: %q", cfg.Selectors.Output)
	}
}

func TestStaleError(t *testing.T) {
	// WHAT: Rod wait failures map to ErrSessionStale; other errors pass through.
	// WHY: The engine recycles only on stale sessions.
	for _, err := range []error{
		context.DeadlineExceeded,
		fmt.Errorf("wrap: %w", context.DeadlineExceeded),
		&rod.ElementNotFoundError{},
	} {
		if !errors.Is(staleError(err), translate.ErrSessionStale) {
			t.Errorf("%v: not stale", err)
		}
	}
	other := errors.New("cdp protocol error")
	if errors.Is(staleError(other), translate.ErrSessionStale) {
		t.Error("unrelated error mapped to stale")
	}
	if errors.Is(staleError(context.Canceled), translate.ErrSessionStale) {
		t.Error("cancellation mapped to stale")
	}
}

func TestSession_NotOpen(t *testing.T) {
	s := New(Config{})
	if err := s.Input(context.Background(), "x"); !errors.Is(err, translate.ErrSessionStale) {
		t.Fatalf("err = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
}

// fakeTranslator is a minimal translator page: the output is the input
// upper-cased and prefixed with the selected target.
const fakeTranslator = `<!doctype html><html><body>
<button id="src">source</button>
<div id="srcmenu" style="display:none">
  <button data-lang="en" onclick="pick('srcmenu')">en</button>
</div>
<button id="tgt">target</button>
<div id="tgtmenu" style="display:none">
  <button data-lang="fr" onclick="pick('tgtmenu', 'fr')">fr</button>
  <button data-lang="de" onclick="pick('tgtmenu', 'de')">de</button>
</div>
<textarea id="in"></textarea>
<textarea id="out"></textarea>
<script>
var target = "";
function show(id) { document.getElementById(id).style.display = "block"; }
function pick(menu, lang) {
  document.getElementById(menu).style.display = "none";
  if (lang) { target = lang; render(); }
}
function render() {
  var v = document.getElementById("in").value;
  document.getElementById("out").value = v ? target + ":" + v.toUpperCase() : "";
}
document.getElementById("src").onclick = function () { show("srcmenu"); };
document.getElementById("tgt").onclick = function () { show("tgtmenu"); };
document.getElementById("in").addEventListener("input", render);
</script>
</body></html>`

func TestSession_FakeTranslator(t *testing.T) {
	// WHAT: Full Open / select / input / output / clear cycle against a local page.
	// WHY: Selector wiring and stale/unsupported mapping only show up in a real browser.
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no chrome available")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(fakeTranslator))
	}))
	defer srv.Close()

	s := New(Config{
		PageURL:       srv.URL,
		Headless:      true,
		Timeout:       5 * time.Second,
		MinInterval:   10 * time.Millisecond,
		OptionTimeout: 500 * time.Millisecond,
		Selectors: Selectors{
			Ready:        "#in",
			SourceButton: "#src",
			SourceMenu:   "#srcmenu",
			TargetButton: "#tgt",
			TargetMenu:   "#tgtmenu",
			Option:       "button[data-lang=%s]",
			Input:        "#in",
			Output:       "#out",
		},
	})
	ctx := context.Background()
	if err := s.Open(ctx); err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if err := s.SetSource(ctx, "en"); err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := s.SetTarget(ctx, "fr"); err != nil {
		t.Fatalf("target: %v", err)
	}
	if err := s.Input(ctx, "hello"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Output(ctx)
	if err != nil || got != "fr:HELLO" {
		t.Fatalf("output = %q, %v", got, err)
	}
	if err := s.SetTarget(ctx, "de"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.Output(ctx); got != "de:HELLO" {
		t.Errorf("second output = %q", got)
	}

	var ue *translate.UnsupportedLanguageError
	if err := s.SetTarget(ctx, "xx"); !errors.As(err, &ue) {
		t.Errorf("missing option err = %v", err)
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
}
