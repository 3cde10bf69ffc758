// CLAUDE:SUMMARY Per-source rule engine: predicates over normalized item fields that decide which candidates survive.
// Package rules filters normalized items with per-source predicates.
//
// A rejected item is an expected outcome, not an error.
package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hazyhaar/babelfeed/item"
)

// Rule types.
const (
	TypeContain      = "contain"
	TypeNotContain   = "notContain"
	TypeEqual        = "equal"
	TypeNotEqual     = "notEqual"
	TypeGreaterEqual = "greaterEqual"
	TypeMatch        = "match"
	TypeNotMatch     = "notMatch"
)

// Rule is one predicate. Key names the item field (default "title").
type Rule struct {
	Type  string `yaml:"type" json:"type"`
	Key   string `yaml:"key,omitempty" json:"key,omitempty"`
	Value string `yaml:"value" json:"value"`

	re *regexp.Regexp
}

// Validate checks the rule type and compiles patterns.
func (r *Rule) Validate() error {
	switch r.Type {
	case TypeContain, TypeNotContain, TypeEqual, TypeNotEqual:
	case TypeGreaterEqual:
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			return fmt.Errorf("rules: %s value %q is not numeric", r.Type, r.Value)
		}
	case TypeMatch, TypeNotMatch:
		re, err := regexp.Compile(r.Value)
		if err != nil {
			return fmt.Errorf("rules: %s pattern: %w", r.Type, err)
		}
		r.re = re
	default:
		return fmt.Errorf("rules: unknown rule type %q", r.Type)
	}
	if _, ok := field(&item.Normalized{}, r.key()); !ok {
		return fmt.Errorf("rules: unknown key %q", r.Key)
	}
	return nil
}

func (r *Rule) key() string {
	if r.Key == "" {
		return "title"
	}
	return r.Key
}

// Match reports whether n satisfies r.
func (r *Rule) Match(n *item.Normalized) bool {
	v, _ := field(n, r.key())
	switch r.Type {
	case TypeContain:
		return strings.Contains(strings.ToLower(v), strings.ToLower(r.Value))
	case TypeNotContain:
		return !strings.Contains(strings.ToLower(v), strings.ToLower(r.Value))
	case TypeEqual:
		return v == r.Value
	case TypeNotEqual:
		return v != r.Value
	case TypeGreaterEqual:
		got, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return false
		}
		want, _ := strconv.ParseFloat(r.Value, 64)
		return got >= want
	case TypeMatch, TypeNotMatch:
		re := r.re
		if re == nil {
			var err error
			if re, err = regexp.Compile(r.Value); err != nil {
				return false
			}
		}
		if r.Type == TypeMatch {
			return re.MatchString(v)
		}
		return !re.MatchString(v)
	}
	return false
}

// Accept reports whether n satisfies every rule.
func Accept(n *item.Normalized, rs []Rule) bool {
	for i := range rs {
		if !rs[i].Match(n) {
			return false
		}
	}
	return true
}

// Filter returns the items that satisfy every rule, preserving order.
func Filter(items []*item.Normalized, rs []Rule) []*item.Normalized {
	if len(rs) == 0 {
		return items
	}
	out := items[:0:0]
	for _, n := range items {
		if Accept(n, rs) {
			out = append(out, n)
		}
	}
	return out
}

func field(n *item.Normalized, key string) (string, bool) {
	switch key {
	case "title":
		return n.Title(), true
	case "url":
		return n.URL, true
	case "external_url":
		return n.ExternalURL, true
	case "type":
		return n.Type, true
	case "language":
		return n.Language, true
	case "score":
		return strconv.Itoa(n.Score), true
	case "num_comments":
		return strconv.Itoa(n.NumComments), true
	case "tags":
		return strings.Join(n.Tags, ","), true
	case "author":
		if len(n.Authors) > 0 {
			return n.Authors[0].Name, true
		}
		return "", true
	case "sensitive":
		return strconv.FormatBool(n.Sensitive), true
	}
	if strings.HasPrefix(key, "fields.") {
		return n.Fields[strings.TrimPrefix(key, "fields.")], true
	}
	return "", false
}
