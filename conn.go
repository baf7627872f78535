package ssemux

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

// connSink receives the outcomes of connection state machine transitions.
// The broker implements it by recording history and broadcasting
// notifications. All calls happen on the broker loop.
type connSink interface {
	stateChanged(ConnState)
	retryCountChanged(int)
	eventDecoded(*Event)
	connError(err error)
	// invalidate drops buffered history: on explicit reconnect, on
	// authentication failure and when retries are exhausted.
	invalidate()
}

// conn drives the connect/retry state machine for a single upstream URL. It
// owns at most one open transport at a time and applies the backoff policy on
// failure. All methods must be called from the broker loop; the loop is the
// only place transitions occur, so no transition race is possible.
type conn struct {
	log  logrus.FieldLogger
	sink connSink

	url   string
	opts  Options
	state ConnState

	retries int
	lastErr error

	dec    *decoder
	msgs   <-chan transportMsg
	cancel context.CancelFunc

	retryTimer *time.Timer
	retryC     <-chan time.Time
}

func newConn(log logrus.FieldLogger, sink connSink) *conn {
	return &conn{log: log, sink: sink, state: StateDisconnected}
}

// active reports whether the machine currently has a live or requested
// connection. Settled disconnected and closed states are not active even when
// a URL from an earlier connect is still recorded.
func (c *conn) active() bool {
	switch c.state {
	case StateConnecting, StateConnected, StateError:
		return true
	}
	return false
}

func (c *conn) setState(s ConnState) {
	if c.state == s {
		return
	}
	c.log.WithFields(logrus.Fields{"from": c.state, "to": s}).Debug("connection state change")
	c.state = s
	c.sink.stateChanged(s)
}

// connect starts a fresh connection attempt. Connecting to the URL the
// machine is already connected to is a no-op besides re-announcing the
// current status. Reports whether a fresh attempt was started.
func (c *conn) connect(url string, opts Options) bool {
	if c.state == StateConnected && url == c.url {
		c.sink.stateChanged(c.state)
		return false
	}

	// a different target tears down the existing transport first
	c.stopRetryTimer()
	c.closeTransport()

	c.url = url
	c.opts = opts
	c.retries = 0
	c.lastErr = nil
	c.setState(StateConnecting)
	c.open()
	return true
}

// open launches a transport for the current URL and options.
func (c *conn) open() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.dec = newDecoder()
	c.msgs = newTransport(c.opts).open(ctx, c.url)
}

// handleMsg processes one transport message. Messages arriving on an
// abandoned transport channel never reach here: closeTransport drops the
// channel reference, so late frames are discarded rather than delivered.
func (c *conn) handleMsg(msg transportMsg, ok bool) {
	if !ok {
		c.msgs = nil
		return
	}

	switch msg.kind {
	case transportOpened:
		c.retries = 0
		c.lastErr = nil
		c.setState(StateConnected)
		c.sink.retryCountChanged(0)

	case transportChunk:
		if c.state != StateConnected {
			return
		}
		for _, e := range c.dec.decode(msg.chunk) {
			c.sink.eventDecoded(e)
		}

	case transportClosed:
		c.closeTransport()
		c.handleClose(msg.err)
	}
}

func (c *conn) handleClose(err error) {
	if errors.Is(err, errCancelled) {
		return
	}

	c.lastErr = err
	c.sink.connError(err)

	var auth *AuthenticationError
	if errors.As(err, &auth) {
		// an auth failure invalidates cached data and bypasses retry
		c.sink.invalidate()
		c.setState(StateDisconnected)
		return
	}

	c.setState(StateError)
	if !c.opts.AutoReconnect || c.retries >= c.opts.MaxRetries {
		c.log.WithError(err).Info("giving up on upstream")
		c.sink.invalidate()
		c.setState(StateDisconnected)
		return
	}

	delay := c.opts.retryDelay(c.retries)
	c.retries++
	c.sink.retryCountChanged(c.retries)
	c.log.WithError(err).WithFields(logrus.Fields{
		"attempt": c.retries,
		"delay":   delay,
	}).Info("scheduling reconnect")
	c.retryTimer = time.NewTimer(delay)
	c.retryC = c.retryTimer.C
}

// retryFired runs the next scheduled reconnect attempt.
func (c *conn) retryFired() {
	c.retryTimer = nil
	c.retryC = nil
	c.setState(StateConnecting)
	c.open()
}

// reconnect drops any pending retry, resets the retry counter, clears
// buffered history and the recorded error, and immediately opens a fresh
// transport to the same URL with the same options.
func (c *conn) reconnect() error {
	if c.state == StateClosed {
		return ErrClosed
	}
	if c.url == "" {
		return ErrNoConnection
	}

	c.stopRetryTimer()
	c.closeTransport()
	c.retries = 0
	c.lastErr = nil
	c.sink.retryCountChanged(0)
	c.sink.connError(nil)
	c.sink.invalidate()
	c.setState(StateConnecting)
	c.open()
	return nil
}

// close moves the machine to the terminal closed state. Only a fresh connect
// leaves it.
func (c *conn) close() {
	c.stopRetryTimer()
	c.closeTransport()
	c.setState(StateClosed)
}

func (c *conn) closeTransport() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.msgs = nil
}

func (c *conn) stopRetryTimer() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
		c.retryC = nil
	}
}
