package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidTimeFormat = errors.New("invalid time format")
	ErrInvalidInterval   = errors.New("invalid interval: start must be before end")
	ErrInvalidView       = errors.New("invalid view")
	ErrConflict          = errors.New("order conflicts with an existing order")
	ErrStaleWrite        = errors.New("stale write")
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
)

// ConflictError names the orders a rejected candidate overlaps.
type ConflictError struct {
	OrderID     string
	WorkerID    string
	Conflicting []string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("order %s overlaps %s for worker %s", orDefault(e.OrderID, "(new)"), strings.Join(e.Conflicting, ","), e.WorkerID)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// StaleWriteError carries the version the caller expected and the one stored.
type StaleWriteError struct {
	OrderID  string
	Expected int64
	Actual   int64
	State    string
}

func (e StaleWriteError) Error() string {
	if e.State == LifecycleCancelled {
		return fmt.Sprintf("stale write: order %s is cancelled", e.OrderID)
	}
	return fmt.Sprintf("stale write: order %s is at version %d, expected %d", e.OrderID, e.Actual, e.Expected)
}

func (e StaleWriteError) Unwrap() error { return ErrStaleWrite }

// TimeFormatError reports the input that could not be parsed.
type TimeFormatError struct {
	Input string
}

func (e TimeFormatError) Error() string {
	return fmt.Sprintf("invalid time format %q", e.Input)
}

func (e TimeFormatError) Unwrap() error { return ErrInvalidTimeFormat }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
