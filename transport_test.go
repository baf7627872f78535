package ssemux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains the transport message stream with a deadline.
func collect(t *testing.T, ch <-chan transportMsg) []transportMsg {
	t.Helper()
	var msgs []transportMsg
	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		case <-deadline:
			t.Fatal("timeout waiting for transport messages")
		}
	}
}

func joinChunks(msgs []transportMsg) string {
	var out []byte
	for _, m := range msgs {
		if m.kind == transportChunk {
			out = append(out, m.chunk...)
		}
	}
	return string(out)
}

func TestTransportStreamLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: one\n\ndata: two\n\n")
	}))
	defer srv.Close()

	tr := newTransport(Options{Client: srv.Client()})
	msgs := collect(t, tr.open(context.Background(), srv.URL))

	require.NotEmpty(t, msgs)
	assert.Equal(t, transportOpened, msgs[0].kind)

	last := msgs[len(msgs)-1]
	require.Equal(t, transportClosed, last.kind)
	var ended *StreamEndedError
	assert.ErrorAs(t, last.err, &ended)

	assert.Equal(t, "data: one\n\ndata: two\n\n", joinChunks(msgs))
}

func TestTransportUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tr := newTransport(Options{Client: srv.Client()})
	msgs := collect(t, tr.open(context.Background(), srv.URL))

	require.Len(t, msgs, 1)
	require.Equal(t, transportClosed, msgs[0].kind)
	var auth *AuthenticationError
	assert.ErrorAs(t, msgs[0].err, &auth)
}

func TestTransportUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	tr := newTransport(Options{Client: srv.Client()})
	msgs := collect(t, tr.open(context.Background(), srv.URL))

	require.Len(t, msgs, 1)
	var open *TransportOpenError
	assert.ErrorAs(t, msgs[0].err, &open)
}

func TestTransportConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	tr := newTransport(Options{Client: &http.Client{}})
	msgs := collect(t, tr.open(context.Background(), url))

	require.Len(t, msgs, 1)
	require.Equal(t, transportClosed, msgs[0].kind)
	var open *TransportOpenError
	assert.ErrorAs(t, msgs[0].err, &open)
}

func TestTransportPlainHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	tr := newTransport(Options{Client: srv.Client()})
	require.IsType(t, &plainTransport{}, tr)
	collect(t, tr.open(context.Background(), srv.URL))

	assert.Equal(t, "text/event-stream", got.Get("Accept"))
	assert.Empty(t, got.Get("Cache-Control"))
}

func TestTransportCustomHeaders(t *testing.T) {
	var got http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer srv.Close()

	tr := newTransport(Options{
		Client: srv.Client(),
		Headers: map[string]string{
			"Authorization": "Bearer token-123",
			"Accept":        "application/custom",
		},
	})
	require.IsType(t, &headerTransport{}, tr)
	collect(t, tr.open(context.Background(), srv.URL))

	// caller headers win over the defaults on collision
	assert.Equal(t, "application/custom", got.Get("Accept"))
	assert.Equal(t, "Bearer token-123", got.Get("Authorization"))
	assert.Equal(t, "no-cache", got.Get("Cache-Control"))
	assert.Equal(t, "no-cache", got.Get("Pragma"))
}

func TestTransportCookieJar(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Cookie")
	}))
	defer srv.Close()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	jar.SetCookies(u, []*http.Cookie{{Name: "sid", Value: "secret"}})
	client := &http.Client{Jar: jar}

	// without the credentials option the jar is withheld
	tr := newTransport(Options{Client: client})
	collect(t, tr.open(context.Background(), srv.URL))
	assert.Empty(t, got)

	tr = newTransport(Options{Client: client, WithCredentials: true})
	collect(t, tr.open(context.Background(), srv.URL))
	assert.Equal(t, "sid=secret", got)
}

func TestTransportCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: first\n\n")
		w.(http.Flusher).Flush()
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	tr := newTransport(Options{Client: srv.Client()})
	ch := tr.open(ctx, srv.URL)

	// wait until the stream is live, then cancel
	deadline := time.After(5 * time.Second)
	for opened := false; !opened; {
		select {
		case msg := <-ch:
			opened = msg.kind == transportChunk
		case <-deadline:
			t.Fatal("timeout waiting for first chunk")
		}
	}
	cancel()

	// after cancellation the stream winds down without surfacing an error
	for _, msg := range collect(t, ch) {
		if msg.kind == transportClosed {
			assert.True(t, errors.Is(msg.err, errCancelled))
		}
	}
}
