package ssemux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

type transportMsgKind int

const (
	transportOpened transportMsgKind = iota
	transportChunk
	transportClosed
)

// transportMsg is the normalized output of every transport variant: one
// opened message, zero or more chunk messages, then exactly one closed
// message carrying the close reason. The message channel is closed after the
// closed message.
type transportMsg struct {
	kind  transportMsgKind
	chunk []byte
	err   error
}

// transport opens a single streaming connection. Implementations never retry
// on their own; reconnection is owned entirely by the connection machine so
// there is a single source of truth for retry counting. Cancelling the
// context stops the stream cooperatively: no further messages follow and the
// response body is released.
type transport interface {
	open(ctx context.Context, url string) <-chan transportMsg
}

// newTransport picks the transport variant: a plain streaming GET when the
// caller supplied no headers, otherwise the header-carrying variant. Unless
// WithCredentials is set, the client's cookie jar is withheld from upstream
// requests.
func newTransport(opts Options) transport {
	client := opts.Client
	if !opts.WithCredentials && client != nil && client.Jar != nil {
		bare := *client
		bare.Jar = nil
		client = &bare
	}
	if len(opts.Headers) == 0 {
		return &plainTransport{client: client}
	}
	return &headerTransport{client: client, headers: opts.Headers}
}

// plainTransport issues a bare streaming GET, the Go analogue of the
// platform EventSource primitive.
type plainTransport struct {
	client *http.Client
}

func (t *plainTransport) open(ctx context.Context, url string) <-chan transportMsg {
	ch := make(chan transportMsg, 1)
	go func() {
		defer close(ch)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			emit(ctx, ch, transportMsg{kind: transportClosed, err: &TransportOpenError{Err: err}})
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		stream(ctx, ch, t.client, req)
	}()
	return ch
}

// headerTransport issues a streaming GET carrying the caller's custom
// headers on top of the event-stream and cache-busting defaults.
type headerTransport struct {
	client  *http.Client
	headers map[string]string
}

func (t *headerTransport) open(ctx context.Context, url string) <-chan transportMsg {
	ch := make(chan transportMsg, 1)
	go func() {
		defer close(ch)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			emit(ctx, ch, transportMsg{kind: transportClosed, err: &TransportOpenError{Err: err}})
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Cache-Control", "no-cache")
		req.Header.Set("Pragma", "no-cache")
		// caller headers win on collision
		for name, value := range t.headers {
			req.Header.Set(name, value)
		}
		stream(ctx, ch, t.client, req)
	}()
	return ch
}

// stream performs the request and pumps body chunks into ch until the stream
// ends, fails or the context is cancelled.
func stream(ctx context.Context, ch chan<- transportMsg, client *http.Client, req *http.Request) {
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			emit(ctx, ch, transportMsg{kind: transportClosed, err: errCancelled})
			return
		}
		emit(ctx, ch, transportMsg{kind: transportClosed, err: &TransportOpenError{Err: err}})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		emit(ctx, ch, transportMsg{kind: transportClosed, err: &AuthenticationError{URL: req.URL.String()}})
		return
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		emit(ctx, ch, transportMsg{kind: transportClosed, err: &TransportOpenError{Err: err}})
		return
	}

	if !emit(ctx, ch, transportMsg{kind: transportOpened}) {
		return
	}

	buf := make([]byte, 4096)
	for {
		n, err := resp.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if !emit(ctx, ch, transportMsg{kind: transportChunk, chunk: chunk}) {
				return
			}
		}
		if err != nil {
			switch {
			case ctx.Err() != nil:
				emit(ctx, ch, transportMsg{kind: transportClosed, err: errCancelled})
			case errors.Is(err, io.EOF):
				emit(ctx, ch, transportMsg{kind: transportClosed, err: &StreamEndedError{}})
			default:
				emit(ctx, ch, transportMsg{kind: transportClosed, err: &TransportReadError{Err: err}})
			}
			return
		}
	}
}

// emit delivers a message unless the stream was cancelled. Reports false when
// the receiver is gone and the pump should stop.
func emit(ctx context.Context, ch chan<- transportMsg, msg transportMsg) bool {
	select {
	case ch <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
