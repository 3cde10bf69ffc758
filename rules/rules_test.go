package rules

import (
	"testing"

	"github.com/hazyhaar/babelfeed/item"
)

func norm(title string, score int) *item.Normalized {
	return &item.Normalized{
		URL:    "https://example.com/" + title,
		Score:  score,
		Fields: map[string]string{"title": title},
	}
}

func TestFilter(t *testing.T) {
	cases := []struct {
		name  string
		rules []Rule
		want  int
	}{
		{"no rules keeps all", nil, 3},
		{"greaterEqual score", []Rule{{Type: TypeGreaterEqual, Key: "score", Value: "100"}}, 2},
		{"notContain title", []Rule{{Type: TypeNotContain, Value: "ASK"}}, 2},
		{"match url", []Rule{{Type: TypeMatch, Key: "url", Value: `/Show`}}, 1},
		{"combined", []Rule{
			{Type: TypeGreaterEqual, Key: "score", Value: "100"},
			{Type: TypeNotMatch, Key: "url", Value: `Show`},
		}, 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items := []*item.Normalized{norm("Show HN", 150), norm("Ask HN", 20), norm("Launch", 300)}
			for i := range tc.rules {
				if err := tc.rules[i].Validate(); err != nil {
					t.Fatalf("validate: %v", err)
				}
			}
			got := Filter(items, tc.rules)
			if len(got) != tc.want {
				t.Errorf("got %d, want %d", len(got), tc.want)
			}
		})
	}
}

func TestValidate_Errors(t *testing.T) {
	for _, r := range []Rule{
		{Type: "bogus", Value: "x"},
		{Type: TypeGreaterEqual, Key: "score", Value: "many"},
		{Type: TypeMatch, Value: "("},
		{Type: TypeEqual, Key: "nope", Value: "x"},
	} {
		if err := r.Validate(); err == nil {
			t.Errorf("expected error for %+v", r)
		}
	}
}
