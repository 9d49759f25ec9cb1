package audit

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNotSupported is returned by sink entry points that are deliberately absent.
	ErrNotSupported = errors.New("operation not supported by sink")

	// ErrDuplicateKey is returned when a key is inserted twice into a request mapping.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrReservedKey is returned when a caller argument uses a synthetic argument name.
	ErrReservedKey = errors.New("reserved argument key")
)

// CollectionError reports a source context that could not be turned into a CapturedRequest.
// It aborts the dispatch before any sink runs.
type CollectionError struct {
	Op  string
	Err error
}

// NewCollectionError wraps err, capturing a stack trace.
func NewCollectionError(op string, err error) *CollectionError {
	return &CollectionError{Op: op, Err: errors.WithStack(err)}
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("audit collection failed (%s): %v", e.Op, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// ConfigurationError reports a required setting that is missing. Sinks cache it, so
// every call after the first failure sees the same error.
type ConfigurationError struct {
	Sink SinkKind
	Key  string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("audit %s sink: %q key not found in configuration", e.Sink, e.Key)
}

// SinkWriteError reports a failed persistence side effect of one sink.
type SinkWriteError struct {
	Sink   SinkKind
	Target string
	Err    error
}

func newSinkWriteError(kind SinkKind, target string, err error) *SinkWriteError {
	return &SinkWriteError{Sink: kind, Target: target, Err: errors.WithStack(err)}
}

func (e *SinkWriteError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("audit %s sink write failed: %v", e.Sink, e.Err)
	}
	return fmt.Sprintf("audit %s sink write to %s failed: %v", e.Sink, e.Target, e.Err)
}

func (e *SinkWriteError) Unwrap() error { return e.Err }
