package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvertedRange    = errors.New("start date is after end date")
	ErrUnresolvedBound  = errors.New("range bound is not a valid date")
	ErrUnknownKind      = errors.New("unknown transaction type")
	ErrInvalidAmount    = errors.New("amount must be greater than zero")
	ErrUnknownCategory  = errors.New("category not allowed for this type")
	ErrUnknownPayment   = errors.New("payment method not allowed")
	ErrMissingIdentity  = errors.New("missing submitting user")
	ErrUnresolvedDate   = errors.New("date is required")
	ErrUnauthenticated  = errors.New("invalid username or password")
	ErrStoreUnavailable = errors.New("ledger store unavailable")
)

// ValidationError reports a caller contract violation: bad input, not a
// bad connection.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %v", e.Field, e.Value, e.Err)
	}
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// StoreError reports a failed round trip to the backing store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreUnavailable, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrStoreUnavailable, e.Err}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsStore(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
