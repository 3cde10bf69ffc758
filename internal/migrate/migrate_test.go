package migrate

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hazyhaar/babelfeed/internal/datadir"
	"github.com/hazyhaar/babelfeed/item"
	"github.com/hazyhaar/babelfeed/itemid"
)

func TestUpgradeIdentifier(t *testing.T) {
	pub := time.Date(2021, 6, 5, 23, 0, 0, 0, time.UTC)
	cases := []struct {
		old, want string
		changed   bool
	}{
		{"en_hn__123", "2021_06_05_en_hn_hnnews__123", true},
		{"en_hn__a__b.json", "2021_06_05_en_hn_hnnews__a__b", true},
		{"2021_06_05_en_hn_hnnews__123", "2021_06_05_en_hn_hnnews__123", false},
	}
	for _, tc := range cases {
		got, changed, err := UpgradeIdentifier(tc.old, pub, "hnnews")
		if err != nil {
			t.Fatalf("%s: %v", tc.old, err)
		}
		if got != tc.want || changed != tc.changed {
			t.Errorf("%s: got %s/%v, want %s/%v", tc.old, got, changed, tc.want, tc.changed)
		}
	}
	if _, _, err := UpgradeIdentifier("en_hn_x__1", pub, "s"); !errors.Is(err, itemid.ErrMalformedIdentifier) {
		t.Errorf("3 tokens: err = %v", err)
	}
	if _, _, err := UpgradeIdentifier("en_hn__1", time.Time{}, "s"); err == nil {
		t.Error("zero date accepted")
	}
}

func TestUpgradeStoreFile(t *testing.T) {
	// WHAT: Legacy keys are rekeyed in place; current keys are untouched.
	// WHY: Stores must decode with the current codec after the upgrade.
	path := filepath.Join(t.TempDir(), "items.json")
	pub := time.Date(2021, 6, 5, 0, 0, 0, 0, time.UTC)
	store := item.NewItemsFile()
	store.Items["en_hn__1"] = &item.FormattedItem{ID: "en_hn__1", DatePublished: pub}
	store.Put(&item.FormattedItem{ID: "2021_06_05_en_hn_news__2", DatePublished: pub})
	if err := datadir.WriteJSON(path, store); err != nil {
		t.Fatal(err)
	}

	n, err := UpgradeStoreFile(path, "news", nil)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("upgraded = %d", n)
	}
	var got item.ItemsFile
	if err := datadir.ReadJSON(path, &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Items) != 2 {
		t.Fatalf("items = %v", got.Keys())
	}
	for key, it := range got.Items {
		if key != it.ID {
			t.Errorf("key %s != id %s", key, it.ID)
		}
		if _, err := itemid.Decode(key); err != nil {
			t.Errorf("%s: %v", key, err)
		}
	}

	// Second pass is a no-op.
	if n, err := UpgradeStoreFile(path, "news", nil); err != nil || n != 0 {
		t.Errorf("second pass: %d %v", n, err)
	}
}
