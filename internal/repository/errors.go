package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrLockHeld is returned when another run holds the source lock.
	ErrLockHeld = errors.New("source lock is held by another run")
	// ErrLockLost means the marker expired or changed owner while a run held it.
	ErrLockLost = errors.New("source lock was lost")
	// ErrAuthentication is fatal for the affected source's run only.
	ErrAuthentication = errors.New("authentication failed")
	// ErrIncompleteRecord marks a record missing its source id, title or publish time.
	ErrIncompleteRecord = errors.New("record is incomplete")
	// ErrDuplicateKey is swallowed by the content pipeline.
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotFound     = errors.New("not found")
	// ErrTransientFetch matches every TransientFetchError via errors.Is.
	ErrTransientFetch = errors.New("transient fetch failure")
)

// TransientFetchError covers network errors, timeouts, bad statuses and short bodies.
// The item is dropped for this run and retried on the next one.
type TransientFetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *TransientFetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

func (e *TransientFetchError) Is(target error) bool { return target == ErrTransientFetch }

// NoAdapterError is returned when no site adapter matches a URL.
type NoAdapterError struct {
	URL string
}

func (e *NoAdapterError) Error() string {
	return fmt.Sprintf("no site adapter for %s", e.URL)
}

// ParseError is returned when an adapter finds neither content nor media.
type ParseError struct {
	URL    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.URL, e.Reason)
}
