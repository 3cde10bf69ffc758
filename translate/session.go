package translate

import "context"

// Session is an external translation session. Language selection and
// text input are separate steps so the caller can skip redundant
// reconfiguration: one Input may be followed by several SetTarget/Output
// pairs. Implementations return ErrSessionStale when the session must be
// recycled and *UnsupportedLanguageError for languages they cannot select.
type Session interface {
	Open(ctx context.Context) error
	SetSource(ctx context.Context, lang string) error
	SetTarget(ctx context.Context, lang string) error
	Input(ctx context.Context, text string) error
	Output(ctx context.Context) (string, error)
	// Clear empties the input so the next text starts fresh.
	Clear(ctx context.Context) error
	Close() error
}
