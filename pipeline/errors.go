package pipeline

import "fmt"

// SourceFetchError reports one source URL that could not be fetched or
// decoded. The run logs it and moves on to the next URL.
type SourceFetchError struct {
	SourceID string
	URL      string
	Err      error
}

func (e *SourceFetchError) Error() string {
	return fmt.Sprintf("pipeline: source %s (%s): %v", e.SourceID, e.URL, e.Err)
}

func (e *SourceFetchError) Unwrap() error { return e.Err }
