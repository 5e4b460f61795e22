package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransport            = errors.New("exchange transport failure")
	ErrExchangeRejection    = errors.New("exchange rejected request")
	ErrOrderNotFound        = errors.New("order not found")
	ErrInsufficientData     = errors.New("insufficient data")
	ErrConsistencyViolation = errors.New("position consistency violation")
	ErrInvalidConfig        = errors.New("invalid config")
	ErrLockHeld             = errors.New("lock already held")
)

// ExchangeError carries the HTTP status and exchange error code of a failed call.
// Kind is one of ErrTransport, ErrExchangeRejection or ErrOrderNotFound.
type ExchangeError struct {
	Kind       error
	Op         string
	StatusCode int
	Code       int
	Msg        string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v (status=%d code=%d): %s", e.Op, e.Kind, e.StatusCode, e.Code, e.Msg)
}

func (e *ExchangeError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}
