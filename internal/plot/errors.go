package plot

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed render errors below.
var (
	ErrInsufficientData   = errors.New("insufficient data")
	ErrDegenerateInput    = errors.New("degenerate input")
	ErrSizeBudgetExceeded = errors.New("size budget exceeded")
)

// InsufficientDataError indicates fewer than two samples were supplied.
type InsufficientDataError struct {
	N int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data: regression needs at least 2 samples, got %d", e.N)
}

func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// DegenerateInputError indicates samples for which a regression is undefined,
// e.g. every x identical or a non-finite coordinate.
type DegenerateInputError struct {
	Reason string
}

func (e *DegenerateInputError) Error() string {
	return fmt.Sprintf("degenerate input: %s", e.Reason)
}

func (e *DegenerateInputError) Is(target error) bool { return target == ErrDegenerateInput }

// SizeBudgetExceededError is returned when every rung of the degradation
// ladder produced an encoding larger than MaxBytes.
type SizeBudgetExceededError struct {
	MaxBytes int
	// LastSize is the encoded size achieved by the final rung.
	LastSize int
	Rungs    int
}

func (e *SizeBudgetExceededError) Error() string {
	return fmt.Sprintf("size budget exceeded: %d bytes after %d rungs (limit %d)", e.LastSize, e.Rungs, e.MaxBytes)
}

func (e *SizeBudgetExceededError) Is(target error) bool { return target == ErrSizeBudgetExceeded }
