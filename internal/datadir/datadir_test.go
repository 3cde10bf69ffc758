package datadir

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/babelfeed/itemid"
)

func TestLayout_Paths(t *testing.T) {
	l := New("/data")
	f := itemid.Fields{Year: 2024, Month: 3, Day: 9, Language: "en", Type: "hn", Site: "hn", ID: "42"}
	if got, want := l.FormattedPath(f), "/data/2-formatted/hn/2024/03/09/2024_03_09_en_hn_hn__42.json"; got != want {
		t.Errorf("formatted = %q, want %q", got, want)
	}
	if got, want := l.TranslatedPath(f), "/data/3-translated/hn/2024/03/09/2024_03_09_en_hn_hn__42.json"; got != want {
		t.Errorf("translated = %q", got)
	}
	if got := l.Store("hn"); got != "/data/4-data/hn/items.json" {
		t.Errorf("store = %q", got)
	}
	rn := itemid.RawName{FetchedAt: time.Date(2024, 3, 9, 8, 0, 0, 0, time.UTC), Order: 1, CacheKey: f.CacheKey()}
	if got, want := l.RawPath(rn), "/data/1-raw/2024/03/09/20240309T080000.000Z--000001--2024_03_09_en_hn__42.json"; got != want {
		t.Errorf("raw = %q, want %q", got, want)
	}
}

func TestLayout_Check(t *testing.T) {
	// WHAT: Paths built from hostile ids stay inside their stage directory.
	// WHY: Ids come from remote payloads; a "/" or ".." must not move a write.
	l := New("/data")
	f := itemid.Fields{Year: 2024, Month: 1, Day: 9, Language: "en", Type: "hn", Site: "up", ID: "../../../../../../ESCAPED"}
	for _, p := range []string{
		l.FormattedPath(f),
		l.TranslatedPath(f),
		l.RawPath(itemid.RawName{FetchedAt: time.Unix(0, 0), CacheKey: f.CacheKey()}),
	} {
		if err := l.Check(p); err != nil {
			t.Errorf("%s: %v", p, err)
		}
		if got := filepath.Base(p); !strings.HasSuffix(got, ".json") || strings.Contains(got, "/") {
			t.Errorf("base %q", got)
		}
	}
	for _, bad := range []string{"/data", "/data/ESCAPED.json", "/etc/passwd", "/data/1-raw/../../x.json", "/data/other/x.json", "/data/1-raw"} {
		if err := l.Check(bad); !errors.Is(err, ErrOutsideLayout) {
			t.Errorf("Check(%q) = %v", bad, err)
		}
	}
}

func TestWriteJSON_Atomic(t *testing.T) {
	// WHAT: WriteJSON leaves no .tmp behind and creates parent dirs.
	// WHY: A crash between stages must never leave a partial file under the real name.
	dir := t.TempDir()
	path := filepath.Join(dir, "a", "b", "x.json")
	if err := WriteJSON(path, map[string]int{"n": 1}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".tmp"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("tmp left behind: %v", err)
	}
	var got map[string]int
	if err := ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if got["n"] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestReadJSON_Missing(t *testing.T) {
	var v any
	err := ReadJSON(filepath.Join(t.TempDir(), "nope.json"), &v)
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
	var fe *FileIOError
	if !errors.As(err, &fe) || fe.Op != "read" {
		t.Errorf("not a FileIOError: %v", err)
	}
}

func TestListJSON(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"b/2.json", "a/1.json", "a/skip.tmp"} {
		if err := WriteFile(filepath.Join(dir, p), []byte("{}")); err != nil {
			t.Fatal(err)
		}
	}
	got, err := ListJSON(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || filepath.Base(got[0]) != "1.json" {
		t.Errorf("got %v", got)
	}
	none, err := ListJSON(filepath.Join(dir, "missing"))
	if err != nil || len(none) != 0 {
		t.Errorf("missing dir: %v %v", none, err)
	}
}

func TestLock_Exclusive(t *testing.T) {
	// WHAT: A second Lock on the same data dir fails until the first is released.
	// WHY: Two overlapping runs would race on stage files.
	l := New(t.TempDir())
	unlock, err := l.Lock()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := l.Lock(); !errors.Is(err, ErrLocked) {
		t.Fatalf("second lock err = %v", err)
	}
	if err := unlock(); err != nil {
		t.Fatal(err)
	}
	unlock2, err := l.Lock()
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	unlock2()
}
