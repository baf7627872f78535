package ssemux

import (
	"fmt"
	"net/http"
	"net/textproto"
	"strings"
	"time"
)

// Mode selects how a session starts its connection.
type Mode string

const (
	// ModeAuto connects automatically after AutoConnectDelay.
	ModeAuto Mode = "auto"
	// ModeManual waits for an explicit Connect call.
	ModeManual Mode = "manual"
)

// Default option values.
const (
	DefaultInitialRetryDelay = time.Second
	DefaultMaxRetryDelay     = 30 * time.Second
	DefaultMaxRetries        = 5
	DefaultBufferSize        = 100
	DefaultQueueLength       = 32
)

// SSE connections are long-lived, so the shared client carries no timeout.
var defaultHTTPClient = &http.Client{}

// Options configures a connection attempt. Options are validated once per
// connect attempt; the zero value is not usable directly, use DefaultOptions
// as a starting point.
type Options struct {
	// Mode selects automatic or manual connection start. Only consulted by
	// Hub.Session; explicit RequestConnect calls ignore it.
	Mode Mode

	// AutoConnectDelay postpones the automatic connect in ModeAuto.
	AutoConnectDelay time.Duration

	// InitialRetryDelay seeds the exponential backoff schedule.
	InitialRetryDelay time.Duration

	// MaxRetryDelay caps every retry delay, including values produced by a
	// custom Backoff function.
	MaxRetryDelay time.Duration

	// MaxRetries bounds the number of reconnect attempts after a failure.
	MaxRetries int

	// Headers are attached to the upstream request. Presence of any header
	// selects the header-carrying transport variant. Caller headers win
	// over the defaults on key collision.
	Headers map[string]string

	// AutoReconnect enables the retry schedule after transport failures.
	AutoReconnect bool

	// Backoff replaces the default retry schedule when set. The
	// MaxRetryDelay ceiling is still enforced on its results.
	Backoff BackoffFunc

	// WithCredentials forwards the cookie jar of Client to the upstream.
	// When unset, requests are issued without the jar. The core never
	// acquires credentials itself.
	WithCredentials bool

	// BufferSize is the capacity of the broker's event history and of each
	// session's local event list.
	BufferSize int

	// QueueLength is the per-subscriber notification queue size. When a
	// queue is full further notifications to that subscriber are dropped.
	QueueLength int

	// Client issues the upstream requests. Defaults to a shared client
	// without timeout.
	Client *http.Client
}

// DefaultOptions returns the recommended configuration: automatic connect,
// automatic reconnect with up to DefaultMaxRetries attempts and a 1s..30s
// backoff window.
func DefaultOptions() Options {
	return Options{
		Mode:              ModeAuto,
		InitialRetryDelay: DefaultInitialRetryDelay,
		MaxRetryDelay:     DefaultMaxRetryDelay,
		MaxRetries:        DefaultMaxRetries,
		AutoReconnect:     true,
		BufferSize:        DefaultBufferSize,
		QueueLength:       DefaultQueueLength,
	}
}

func (o *Options) defaults() {
	if o.Mode == "" {
		o.Mode = ModeAuto
	}
	if o.InitialRetryDelay == 0 {
		o.InitialRetryDelay = DefaultInitialRetryDelay
	}
	if o.MaxRetryDelay == 0 {
		o.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	if o.QueueLength == 0 {
		o.QueueLength = DefaultQueueLength
	}
	if o.Client == nil {
		o.Client = defaultHTTPClient
	}
}

func (o *Options) validate() error {
	if o.Mode != ModeAuto && o.Mode != ModeManual {
		return fmt.Errorf("invalid mode %q", o.Mode)
	}
	if o.AutoConnectDelay < 0 || o.InitialRetryDelay < 0 || o.MaxRetryDelay < 0 {
		return fmt.Errorf("negative delay in options")
	}
	if o.MaxRetries < 0 {
		return fmt.Errorf("negative max retries")
	}
	if o.BufferSize < 0 || o.QueueLength < 0 {
		return fmt.Errorf("negative buffer size")
	}
	seen := make(map[string]string, len(o.Headers))
	for name := range o.Headers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("empty header name")
		}
		canon := textproto.CanonicalMIMEHeaderKey(name)
		if prev, ok := seen[canon]; ok {
			return fmt.Errorf("duplicate header %q and %q", prev, name)
		}
		seen[canon] = name
	}
	return nil
}

// retryDelay computes the backoff delay for a zero-based attempt number.
// Custom backoff functions are clamped to MaxRetryDelay; the default schedule
// manages the ceiling itself (clamped exponential term plus jitter).
func (o *Options) retryDelay(attempt int) time.Duration {
	if o.Backoff != nil {
		d := o.Backoff(attempt)
		if d > o.MaxRetryDelay {
			d = o.MaxRetryDelay
		}
		if d < 0 {
			d = 0
		}
		return d
	}
	return defaultBackoff(o.InitialRetryDelay, o.MaxRetryDelay)(attempt)
}
