package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Intake failure categories. Every error returned by Service matches
// exactly one of them via errors.Is.
var (
	ErrInvalidPayload        = errors.New("invalid order payload")
	ErrNoRateForZip          = errors.New("no sales tax rate for zip code")
	ErrRateLookupUnavailable = errors.New("sales tax rate lookup unavailable")
	ErrPersistenceFailed     = errors.New("order persistence failed")
)

// ErrStoreUnavailable is matched by every error a Repository returns when
// it cannot obtain a connection or the statement itself fails.
var ErrStoreUnavailable = errors.New("order store unavailable")

// ValidationError describes a rejected order field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Is makes every ValidationError match ErrInvalidPayload.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// StoreError is returned by Repository implementations.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("order store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}
