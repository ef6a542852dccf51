package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrNoRuleVersion   = errors.New("no resolvable rule version")
	ErrInvalidStatus   = errors.New("invalid household status")
	ErrInvalidIdentity = errors.New("invalid household identity")
	ErrInvalidSignal   = errors.New("invalid retention signal")
	ErrInvalidRule     = errors.New("invalid scoring rule")
	ErrDraftSubmission = errors.New("submission is not final")
	ErrConflict        = errors.New("conflicting concurrent write")
)

// CoercionError reports a payload value that could not be read as a number.
type CoercionError struct {
	Field string
	Raw   any
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %q: cannot coerce %v (%T) to a number", e.Field, e.Raw, e.Raw)
}
