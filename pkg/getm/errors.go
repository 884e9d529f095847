package getm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrClosed is returned by Read and Next after the stream has been
// closed.
var ErrClosed = errors.New("getm: stream is closed")

// ErrConfig indicates invalid stream options, reported by Open before
// any request is made.
var ErrConfig = errors.New("getm: invalid configuration")

// ErrUnorderedRead is returned by Read on a stream opened with
// WithUnordered. Out-of-order parts cannot form a byte stream; consume
// them with Chunks instead.
var ErrUnorderedRead = errors.New("getm: Read requires ordered delivery")

// ProbeError reports a failure to learn the object's size and metadata.
type ProbeError struct {
	URL string // query parameters stripped
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("getm: probe %s: %v", e.URL, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// FetchError reports a part that failed with a non-retryable status or
// could not be fetched within its retry budget.
type FetchError struct {
	Index    int
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("getm: fetch part %d (attempt %d): %v", e.Index, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IntegrityError reports a checksum mismatch discovered once the stream
// was fully consumed. Earlier reads have already delivered the corrupt
// bytes; callers must discard the output.
type IntegrityError struct {
	Algorithm string
	Expected  string
	Actual    string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("getm: checksum mismatch (%s): expected %s, got %s",
		e.Algorithm, e.Expected, e.Actual)
}

// redactURL strips the query string so signed credentials never end up
// in error messages or logs.
func redactURL(raw string) string {
	if base, _, found := strings.Cut(raw, "?"); found {
		return base
	}
	return raw
}
