package ssemux

import (
	"sync"

	"github.com/google/uuid"
)

// SessionState is one consistent read of a session's projected state.
type SessionState struct {
	Status     ConnState
	LastEvent  *Event
	Events     []*Event
	Err        error
	RetryCount int
}

// Session is a per-consumer projection of broker notifications: the current
// status, the last event, a bounded event list, the most recent error and the
// retry count. Sessions never touch the transport or broker state directly;
// they only exchange messages with the broker.
type Session struct {
	id     string
	broker *Broker

	sink       chan Notification
	updates    chan Notification
	onDetach   func()
	detachOnce sync.Once

	mu         sync.RWMutex
	status     ConnState
	lastEvent  *Event
	events     []*Event
	max        int
	err        error
	retryCount int
	closed     bool
}

// NewSession attaches a new session to the broker. The session starts paused;
// call Subscribe to receive live events.
func (b *Broker) NewSession() *Session {
	return newSession(b, DefaultBufferSize, DefaultQueueLength, nil)
}

func newSession(b *Broker, bufSize, queueLen int, onDetach func()) *Session {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	if queueLen <= 0 {
		queueLen = DefaultQueueLength
	}
	s := &Session{
		id:       uuid.NewString(),
		broker:   b,
		sink:     make(chan Notification, queueLen),
		updates:  make(chan Notification, queueLen),
		onDetach: onDetach,
		status:   StateDisconnected,
		max:      bufSize,
	}
	b.Attach(s.id, s.sink)
	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.updates)
	for n := range s.sink {
		if !s.apply(n) {
			continue
		}
		// best effort tap for consumers awaiting changes
		select {
		case s.updates <- n:
		default:
		}
	}
}

// apply folds one notification into local state. After Close the session
// drops everything until the next Connect, so a notification racing a close
// can never resurrect stale state.
func (s *Session) apply(n Notification) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	switch n.Type {
	case NotifyStatus:
		s.status = n.Status
		if n.Status == StateConnected {
			s.err = nil
		}
	case NotifyEvent:
		s.lastEvent = n.Event
		if n.Priming {
			// the replay on subscribe will deliver this event again
			break
		}
		s.events = append(s.events, n.Event)
		if len(s.events) > s.max {
			s.events = s.events[1:]
		}
	case NotifyError:
		s.err = n.Err
	case NotifyRetryCount:
		s.retryCount = n.RetryCount
	}
	return true
}

// Updates exposes the notifications applied to this session, for consumers
// that await changes instead of polling. Delivery is best effort: updates the
// consumer does not drain in time are skipped. The channel closes on detach.
func (s *Session) Updates() <-chan Notification { return s.updates }

// Connect forwards a connect request to the broker and resumes the session
// after a previous Close.
func (s *Session) Connect(url string, opts Options) error {
	s.mu.Lock()
	s.closed = false
	s.mu.Unlock()
	return s.broker.RequestConnect(url, opts)
}

// Close clears all local state and asks the broker to close the connection.
// The session ignores further notifications until Connect is called again.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.status = StateClosed
	s.lastEvent = nil
	s.events = nil
	s.err = nil
	s.retryCount = 0
	s.mu.Unlock()
	s.broker.RequestDisconnect()
}

// Reconnect forwards an explicit reconnect to the broker.
func (s *Session) Reconnect() error {
	return s.broker.RequestReconnect()
}

// Subscribe starts live delivery; buffered history is replayed first.
func (s *Session) Subscribe() { s.broker.Subscribe(s.id) }

// Unsubscribe pauses live delivery without detaching.
func (s *Session) Unsubscribe() { s.broker.Unsubscribe(s.id) }

// Detach removes the session from the broker. The session is unusable
// afterwards; repeated calls are no-ops.
func (s *Session) Detach() {
	s.detachOnce.Do(func() {
		s.broker.Detach(s.id)
		if s.onDetach != nil {
			s.onDetach()
		}
	})
}

// Status returns the current connection status.
func (s *Session) Status() ConnState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// LastEvent returns the most recently received event, nil if none.
func (s *Session) LastEvent() *Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEvent
}

// Events returns a copy of the bounded local event list, oldest first.
func (s *Session) Events() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Event, len(s.events))
	copy(out, s.events)
	return out
}

// Err returns the most recent connection error, nil after a successful
// connection, explicit reconnect or close.
func (s *Session) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// RetryCount returns the current retry counter, enough for a consumer to
// implement its own give-up logic.
func (s *Session) RetryCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryCount
}

// Snapshot returns all projected fields as one consistent read.
func (s *Session) Snapshot() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	events := make([]*Event, len(s.events))
	copy(events, s.events)
	return SessionState{
		Status:     s.status,
		LastEvent:  s.lastEvent,
		Events:     events,
		Err:        s.err,
		RetryCount: s.retryCount,
	}
}
