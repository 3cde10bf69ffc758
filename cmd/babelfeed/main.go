// CLAUDE:SUMMARY babelfeed CLI entry point: builds the cobra root and exits non-zero on error.
// Command babelfeed fetches news sources, formats and translates their
// items, and publishes per-site item stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
