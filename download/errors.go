package download

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyDownloading is returned by Start when the tracker has
	// already left the idle state.
	ErrAlreadyDownloading = errors.New("resource is already downloading")

	// ErrTerminal is returned when an operation is attempted on a tracker
	// that has reached complete or failed.
	ErrTerminal = errors.New("download already finished")

	// ErrNotDownloading is returned by Issue and End outside the
	// downloading state.
	ErrNotDownloading = errors.New("resource is not downloading")

	// ErrCancelled is the failure cause of a user-initiated cancel.
	ErrCancelled = errors.New("download cancelled")

	// ErrStalled is the failure cause when no fragment or confirmation was
	// observed within the stall timeout.
	ErrStalled = errors.New("download stalled")
)

// TransportError is a network-level failure of the HTTP fetch.
type TransportError struct {
	URL string
	// StatusCode is set when the server answered with a non-2xx status.
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// PersistenceError is a failed durable write of one chunk.
type PersistenceError struct {
	Key string
	Seq int
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist chunk %d (%s): %v", e.Seq, e.Key, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
