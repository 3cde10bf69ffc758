package itemid

import (
	"errors"
	"fmt"
)

// ErrMalformedIdentifier is matched by every *MalformedIdentifierError.
var ErrMalformedIdentifier = errors.New("itemid: malformed identifier")

// MalformedIdentifierError reports an identifier or file name that does
// not decode.
type MalformedIdentifierError struct {
	Input  string
	Reason string
}

func (e *MalformedIdentifierError) Error() string {
	return fmt.Sprintf("itemid: malformed identifier %q: %s", e.Input, e.Reason)
}

func (e *MalformedIdentifierError) Is(target error) bool {
	return target == ErrMalformedIdentifier
}

func malformed(input, reason string) error {
	return &MalformedIdentifierError{Input: input, Reason: reason}
}
