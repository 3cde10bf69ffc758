package translate

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionStale reports a session that stopped responding. The
	// engine recycles and retries once.
	ErrSessionStale = errors.New("translate: session stale")
	// ErrFieldNotFound reports an item without its original-language
	// translation entry.
	ErrFieldNotFound = errors.New("translate: original fields not found")
	// ErrNoSession is returned when a target needs the external session
	// and none is configured.
	ErrNoSession = errors.New("translate: no session configured")
)

// UnsupportedLanguageError reports a language the session cannot handle.
// It only affects that language.
type UnsupportedLanguageError struct {
	Language string
	// Role is "source" or "target".
	Role string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("translate: unsupported %s language %q", e.Role, e.Language)
}

// MissingDependencyError reports a derived language whose source language
// was not resolved first. It indicates a misordered language list.
type MissingDependencyError struct {
	Language  string
	DependsOn string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("translate: %s is derived from %s which is not resolved", e.Language, e.DependsOn)
}
