package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidTimestamp is returned when a time string cannot be parsed to an instant.
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrFetch marks upstream failures: network errors, non-2xx status, undecodable bodies.
	ErrFetch = errors.New("fetch failed")

	// ErrDispatch marks a webhook delivery that did not go through.
	ErrDispatch = errors.New("dispatch failed")
)

// FetchError describes a failed upstream request. It matches ErrFetch with errors.Is.
type FetchError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s %s: status %d: %v", e.Op, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s %s: status %d", e.Op, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s %s: %v", e.Op, e.URL, ErrFetch)
	}
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}

// DispatchError describes which stage of a webhook delivery failed.
type DispatchError struct {
	Stage string // "compose", "post", "status"
	Err   error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %v", e.Stage, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrDispatch}
	}
	return []error{ErrDispatch, e.Err}
}
