package oracle

import (
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrUnavailable means the oracle could not produce a reply: network
	// failure, timeout, cancellation, exhausted retries or an open breaker.
	ErrUnavailable = eris.New("oracle: unavailable")

	// ErrMalformed means a reply arrived but no usable payload could be
	// isolated from it.
	ErrMalformed = eris.New("oracle: malformed response")
)

// UnavailableError carries the provider and cause of an unavailable oracle.
type UnavailableError struct {
	Provider string
	Err      error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("oracle: %s unavailable: %v", e.Provider, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is matches ErrUnavailable.
func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

// Unavailable wraps err as an UnavailableError unless it already matches.
func Unavailable(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		return err
	}
	return &UnavailableError{Provider: provider, Err: err}
}

// ParseError reports that no payload of the wanted kind could be isolated.
type ParseError struct {
	Want    string // "object" or "array"
	Reason  string
	Snippet string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("oracle: parse %s: %s (input %q)", e.Want, e.Reason, e.Snippet)
}

// Is matches ErrMalformed.
func (e *ParseError) Is(target error) bool { return target == ErrMalformed }

func newParseError(want, reason, input string) *ParseError {
	const limit = 80
	s := input
	if len(s) > limit {
		s = s[:limit] + "..."
	}
	return &ParseError{Want: want, Reason: reason, Snippet: s}
}
