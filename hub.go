package ssemux

import (
	"sync"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// Hub is a registry of brokers keyed by upstream URL. Brokers are constructed
// lazily on the first session for a URL and stopped when the last session for
// that URL detaches, so a process shares one upstream connection per feed no
// matter how many consumers observe it.
type Hub struct {
	log     logrus.FieldLogger
	mu      sync.Mutex
	brokers *cache.Cache // url -> *hubEntry
}

type hubEntry struct {
	broker *Broker
	refs   int
}

// NewHub creates an empty hub. Passing a nil logger selects the logrus
// standard logger.
func NewHub(log logrus.FieldLogger) *Hub {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Hub{
		log:     log,
		brokers: cache.New(cache.NoExpiration, 0),
	}
}

// Session returns a subscribed session on the broker for url, creating the
// broker if this is the first consumer of that feed. In ModeAuto the session
// connects automatically after AutoConnectDelay; in ModeManual the caller
// connects explicitly. Detaching the session releases the broker, and the
// last detach destroys it.
func (h *Hub) Session(url string, opts Options) (*Session, error) {
	opts.defaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	var entry *hubEntry
	if v, ok := h.brokers.Get(url); ok {
		entry = v.(*hubEntry)
	} else {
		entry = &hubEntry{broker: NewBroker(h.log.WithField("upstream", url))}
		h.brokers.Set(url, entry, cache.NoExpiration)
	}
	entry.refs++
	h.mu.Unlock()

	s := newSession(entry.broker, opts.BufferSize, opts.QueueLength, func() {
		h.release(url)
	})
	s.Subscribe()

	if opts.Mode == ModeAuto {
		connect := func() {
			if err := s.Connect(url, opts); err != nil {
				h.log.WithError(err).WithField("upstream", url).Warn("auto connect failed")
			}
		}
		if opts.AutoConnectDelay > 0 {
			time.AfterFunc(opts.AutoConnectDelay, connect)
		} else {
			connect()
		}
	}
	return s, nil
}

// release drops one reference to the broker for url and stops it when the
// last one is gone.
func (h *Hub) release(url string) {
	h.mu.Lock()
	v, ok := h.brokers.Get(url)
	if !ok {
		h.mu.Unlock()
		return
	}
	entry := v.(*hubEntry)
	entry.refs--
	var stop *Broker
	if entry.refs <= 0 {
		h.brokers.Delete(url)
		stop = entry.broker
	}
	h.mu.Unlock()

	if stop != nil {
		stop.Stop()
	}
}

// Shutdown stops every broker in the hub. Sessions must not be used
// afterwards; this is meant for process teardown.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	items := h.brokers.Items()
	h.brokers.Flush()
	h.mu.Unlock()

	for _, item := range items {
		item.Object.(*hubEntry).broker.Stop()
	}
}
