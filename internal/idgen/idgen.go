// CLAUDE:SUMMARY Run identifiers: time-sortable UUIDv7 strings, pluggable for tests.
// Package idgen produces the identifiers of pipeline runs recorded in the
// run ledger.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 UUID v7 strings, sortable by
// creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Sequence returns a deterministic Generator yielding prefix-1, prefix-2, ...
func Sequence(prefix string) Generator {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

// Default is the generator used for run IDs.
var Default Generator = UUIDv7()
