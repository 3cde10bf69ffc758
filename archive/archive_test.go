package archive

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/babelfeed/internal/dbopen"
	"github.com/hazyhaar/babelfeed/item"
)

func TestWindow(t *testing.T) {
	cases := []struct {
		t    time.Time
		want Window
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Window{2024, 1}},
		{time.Date(2021, 1, 3, 12, 0, 0, 0, time.UTC), Window{2020, 53}},
		{time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC), Window{2025, 1}},
	}
	for _, tc := range cases {
		if got := WindowOf(tc.t); got != tc.want {
			t.Errorf("WindowOf(%v) = %v, want %v", tc.t, got, tc.want)
		}
	}
	if k := (Window{2024, 3}).Key(); k != 202403 {
		t.Errorf("key = %d", k)
	}
	if p := (Window{2024, 3}).Path(); p != "2024/3" {
		t.Errorf("path = %q", p)
	}
}

func TestWindow_ValidateRejectsOverflow(t *testing.T) {
	// WHAT: Weeks outside 1..53 are rejected.
	// WHY: week 100 would collide with the next year's keys (2024*100+100 == 2025*100).
	for _, w := range []Window{{2024, 0}, {2024, 54}, {2024, 100}} {
		if err := w.Validate(); err == nil {
			t.Errorf("%v accepted", w)
		}
	}
	if _, err := ParsePath("2024/100"); err == nil {
		t.Error("ParsePath accepted week 100")
	}
	if w, err := ParsePath("2020/53"); err != nil || w != (Window{2020, 53}) {
		t.Errorf("ParsePath = %v %v", w, err)
	}
}

func TestSortDesc(t *testing.T) {
	got := SortDesc([]Window{{2023, 52}, {2024, 2}, {2024, 10}, {2024, 2}})
	want := []Window{{2024, 10}, {2024, 2}, {2023, 52}}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func liveStore(dates ...time.Time) *item.ItemsFile {
	f := item.NewItemsFile()
	for i, d := range dates {
		f.Put(&item.FormattedItem{ID: string(rune('a' + i)), DatePublished: d})
	}
	return f
}

func testSweep(t *testing.T, store Store) {
	ctx := context.Background()
	now := time.Date(2024, 1, 17, 12, 0, 0, 0, time.UTC) // week 3
	live := liveStore(
		time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),  // week 3, stays
		time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),  // week 2
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),   // week 1
		time.Date(2023, 12, 30, 0, 0, 0, 0, time.UTC), // 2023 week 52
	)
	a := New(store, nil)
	res, err := a.Sweep(ctx, "hn", live, now)
	if err != nil {
		t.Fatal(err)
	}
	if res.Moved != 3 || len(live.Items) != 1 {
		t.Fatalf("moved=%d live=%d", res.Moved, len(live.Items))
	}
	if _, ok := live.Items["a"]; !ok {
		t.Error("current week evicted")
	}

	idx, err := a.Index(ctx, "hn")
	if err != nil {
		t.Fatal(err)
	}
	want := []Window{{2024, 2}, {2024, 1}, {2023, 52}}
	if len(idx) != 3 || idx[0] != want[0] || idx[2] != want[2] {
		t.Errorf("index = %v", idx)
	}
	raw, _, _ := store.Get(ctx, IndexKey("hn"))
	var paths []string
	json.Unmarshal(raw, &paths)
	if paths[0] != "2024/2" || paths[2] != "2023/52" {
		t.Errorf("index file = %v", paths)
	}

	// A later sweep merges into the existing bucket and index.
	live2 := item.NewItemsFile()
	live2.Put(&item.FormattedItem{ID: "z", DatePublished: time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC)})
	if _, err := a.Sweep(ctx, "hn", live2, now); err != nil {
		t.Fatal(err)
	}
	b, ok, err := a.Bucket(ctx, "hn", Window{2024, 2})
	if err != nil || !ok {
		t.Fatalf("bucket: %v %v", ok, err)
	}
	if len(b.Items) != 2 {
		t.Errorf("bucket items = %v", b.Keys())
	}
	if idx, _ := a.Index(ctx, "hn"); len(idx) != 3 {
		t.Errorf("index duplicated: %v", idx)
	}

	keys, err := store.List(ctx, "hn/2024/")
	if err != nil || len(keys) != 2 {
		t.Errorf("list = %v %v", keys, err)
	}
}

func TestSweep_FSStore(t *testing.T) {
	testSweep(t, NewFSStore(filepath.Join(t.TempDir(), "archive")))
}

func TestSweep_SQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	testSweep(t, s)
}

func TestSweep_NothingToMove(t *testing.T) {
	store := NewFSStore(t.TempDir())
	now := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	live := liveStore(now)
	res, err := New(store, nil).Sweep(context.Background(), "s", live, now)
	if err != nil || res.Moved != 0 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	if keys, _ := store.List(context.Background(), ""); len(keys) != 0 {
		t.Errorf("unexpected writes: %v", keys)
	}
}

func TestFSStore_RejectsEscapingKeys(t *testing.T) {
	s := NewFSStore(t.TempDir())
	if err := s.Put(context.Background(), "../x", []byte("x")); err == nil {
		t.Fatal("escaping key accepted")
	}
	if _, ok, err := s.Get(context.Background(), "missing/items.json"); ok || err != nil {
		t.Errorf("missing: %v %v", ok, err)
	}
}
