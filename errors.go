package ssemux

import (
	"errors"
	"fmt"
)

var (
	// ErrNoConnection is returned by reconnect requests when the broker was
	// never asked to connect anywhere.
	ErrNoConnection = errors.New("no previous connection")

	// ErrClosed is returned by reconnect requests after an explicit close.
	// The closed state is terminal until a fresh connect.
	ErrClosed = errors.New("connection closed")

	// ErrStopped is returned by requests against a stopped broker.
	ErrStopped = errors.New("broker stopped")

	// errCancelled marks a transport close caused by cooperative
	// cancellation. It is swallowed internally and never surfaces to
	// consumers.
	errCancelled = errors.New("cancelled")
)

// TransportOpenError reports a failure to establish the upstream connection:
// network, DNS or handshake errors and unexpected HTTP status codes. It is
// retried per the backoff policy.
type TransportOpenError struct {
	Err error
}

func (e *TransportOpenError) Error() string {
	return fmt.Sprintf("transport open: %v", e.Err)
}

func (e *TransportOpenError) Unwrap() error { return e.Err }

// TransportReadError reports a stream that broke mid-flight. It is retried
// per the backoff policy.
type TransportReadError struct {
	Err error
}

func (e *TransportReadError) Error() string {
	return fmt.Sprintf("transport read: %v", e.Err)
}

func (e *TransportReadError) Unwrap() error { return e.Err }

// AuthenticationError reports an HTTP 401 response from the upstream. It is
// terminal: the connection settles into disconnected without retries and
// buffered events are cleared.
type AuthenticationError struct {
	URL string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.URL)
}

// StreamEndedError reports an upstream that closed the stream cleanly. A live
// feed is expected to stay open, so this is retried per the backoff policy.
type StreamEndedError struct{}

func (e *StreamEndedError) Error() string { return "upstream closed the stream" }
