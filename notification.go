package ssemux

// ConnState is the state of the broker's single upstream connection.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
	StateClosed       ConnState = "closed"
)

// NotificationType enumerates the messages a broker delivers to its
// subscribers.
type NotificationType int

const (
	// NotifyConnected primes a freshly attached subscriber when a
	// connection already exists.
	NotifyConnected NotificationType = iota
	// NotifyStatus announces a connection state transition.
	NotifyStatus
	// NotifyEvent delivers one decoded upstream event.
	NotifyEvent
	// NotifyError reports the most recent connection error.
	NotifyError
	// NotifyRetryCount reports the current retry counter.
	NotifyRetryCount
)

// Notification is a single message from a broker to a subscriber. Exactly the
// fields relevant to Type are set.
type Notification struct {
	Type       NotificationType
	Status     ConnState
	Event      *Event
	Err        error
	RetryCount int

	// Priming marks the last-event push a fresh attachment receives. The
	// same event shows up again in the full-history replay on subscribe,
	// so projections update their latest-event view from a priming push
	// without recording it twice.
	Priming bool
}
