package archive

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Window is an ISO-8601 (year, week) archive bucket.
type Window struct {
	Year int
	Week int
}

// WindowOf returns the ISO week containing t (in UTC).
func WindowOf(t time.Time) Window {
	y, w := t.UTC().ISOWeek()
	return Window{Year: y, Week: w}
}

// Key orders windows: year*100 + week.
func (w Window) Key() int { return w.Year*100 + w.Week }

// Path is the "year/week" form used in archive keys and the index.
func (w Window) Path() string { return fmt.Sprintf("%d/%d", w.Year, w.Week) }

// Before reports whether w is strictly older than o.
func (w Window) Before(o Window) bool { return w.Key() < o.Key() }

// Validate rejects weeks outside 1..53, which would break Key ordering.
func (w Window) Validate() error {
	if w.Year < 1 || w.Year > 9999 {
		return fmt.Errorf("archive: window year %d out of range", w.Year)
	}
	if w.Week < 1 || w.Week > 53 {
		return fmt.Errorf("archive: window week %d out of range 1..53", w.Week)
	}
	return nil
}

// ParsePath parses "year/week".
func ParsePath(p string) (Window, error) {
	ys, ws, ok := strings.Cut(p, "/")
	if !ok {
		return Window{}, fmt.Errorf("archive: window path %q needs year/week", p)
	}
	y, err := strconv.Atoi(ys)
	if err != nil {
		return Window{}, fmt.Errorf("archive: window path %q: bad year", p)
	}
	wk, err := strconv.Atoi(ws)
	if err != nil {
		return Window{}, fmt.Errorf("archive: window path %q: bad week", p)
	}
	w := Window{Year: y, Week: wk}
	return w, w.Validate()
}

// SortDesc sorts windows most recent first and drops duplicates.
func SortDesc(ws []Window) []Window {
	sort.Slice(ws, func(i, j int) bool { return ws[i].Key() > ws[j].Key() })
	out := ws[:0]
	for i, w := range ws {
		if i == 0 || w != ws[i-1] {
			out = append(out, w)
		}
	}
	return out
}
