package ssemux

import (
	"sync"

	"github.com/sirupsen/logrus"
)

type operation int

const (
	opAttach operation = iota
	opSubscribe
	opUnsubscribe
	opDetach
	opConnect
	opDisconnect
	opReconnect
)

// command is the message data type for controlling the broker loop. All
// external requests funnel through it; the loop is the single owner of the
// connection machine, the event buffer and the subscriber registry.
type command struct {
	op   operation
	id   string              // subscriber id for attach/subscribe/unsubscribe/detach
	sink chan<- Notification // used for attach
	url  string              // used for connect
	opts Options             // used for connect
	resp chan<- error        // used for reconnect
}

// subscriber is one attached consumer. subscribed=false means attached but
// paused: it has received its priming push but is excluded from live
// broadcasts until it subscribes.
type subscriber struct {
	sink       chan<- Notification
	subscribed bool
}

// Broker multiplexes one upstream SSE connection to any number of
// subscribers. It owns a single connection state machine and a bounded
// history of recent events, replayed to late joiners on subscribe.
//
// Run zero, one or many brokers per process: one broker per upstream URL in
// the shared-multiplexing topology, or one per consumer. Both topologies use
// this same component.
type Broker struct {
	log      logrus.FieldLogger
	commands chan command
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewBroker creates a broker and starts its processing loop. Passing a nil
// logger selects the logrus standard logger.
func NewBroker(log logrus.FieldLogger) *Broker {
	if log == nil {
		log = logrus.StandardLogger()
	}
	b := &Broker{
		log:      log,
		commands: make(chan command),
		quit:     make(chan struct{}),
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run()
	}()
	return b
}

// enqueue hands a command to the loop. Reports false when the broker has
// stopped; requests against a stopped broker are no-ops.
func (b *Broker) enqueue(cmd command) bool {
	select {
	case b.commands <- cmd:
		return true
	case <-b.quit:
		return false
	}
}

// brokerState is the loop-owned state. It implements connSink: machine
// transitions turn into history updates and subscriber notifications here.
type brokerState struct {
	b    *Broker
	subs map[string]*subscriber
	buf  *eventBuffer
	conn *conn
}

func (b *Broker) run() {
	st := &brokerState{
		b:    b,
		subs: make(map[string]*subscriber),
		buf:  newEventBuffer(DefaultBufferSize),
	}
	st.conn = newConn(b.log, st)

	for {
		select {
		case <-b.quit:
			st.conn.close()
			for id, sub := range st.subs {
				close(sub.sink)
				delete(st.subs, id)
			}
			return
		case cmd := <-b.commands:
			st.handle(cmd)
		case msg, ok := <-st.conn.msgs:
			st.conn.handleMsg(msg, ok)
		case <-st.conn.retryC:
			st.conn.retryFired()
		}
	}
}

func (st *brokerState) handle(cmd command) {
	switch cmd.op {
	case opAttach:
		sub := &subscriber{sink: cmd.sink}
		st.subs[cmd.id] = sub
		if st.conn.active() {
			st.prime(cmd.id, sub)
		}

	case opSubscribe:
		sub, ok := st.subs[cmd.id]
		if !ok || sub.subscribed {
			return
		}
		sub.subscribed = true
		for _, e := range st.buf.snapshot() {
			st.send(cmd.id, sub, Notification{Type: NotifyEvent, Event: e})
		}

	case opUnsubscribe:
		if sub, ok := st.subs[cmd.id]; ok {
			sub.subscribed = false
		}

	case opDetach:
		if sub, ok := st.subs[cmd.id]; ok {
			close(sub.sink)
			delete(st.subs, cmd.id)
		}

	case opConnect:
		prevURL := st.conn.url
		fresh := st.conn.connect(cmd.url, cmd.opts)
		if !fresh {
			return
		}
		if cmd.opts.BufferSize != len(st.buf.ring) {
			st.buf = newEventBuffer(cmd.opts.BufferSize)
		} else if prevURL != "" && prevURL != cmd.url {
			// history belongs to the previous feed, never replay it to
			// subscribers of the new one
			st.buf.clear()
		}

	case opDisconnect:
		st.conn.close()

	case opReconnect:
		err := st.conn.reconnect()
		if cmd.resp != nil {
			cmd.resp <- err
		}
	}
}

// prime pushes current connection state to a freshly attached subscriber:
// a connected marker, the current status and retry count, and the most recent
// event if one exists. This is distinct from the full-history replay a later
// subscribe performs.
func (st *brokerState) prime(id string, sub *subscriber) {
	st.send(id, sub, Notification{Type: NotifyConnected})
	st.send(id, sub, Notification{Type: NotifyStatus, Status: st.conn.state})
	st.send(id, sub, Notification{Type: NotifyRetryCount, RetryCount: st.conn.retries})
	if last := st.buf.last(); last != nil {
		st.send(id, sub, Notification{Type: NotifyEvent, Event: last, Priming: true})
	}
}

// broadcast delivers a notification to every currently subscribed consumer,
// in decode order for events. A full queue on one subscriber never aborts
// delivery to the rest.
func (st *brokerState) broadcast(n Notification) {
	for id, sub := range st.subs {
		if sub.subscribed {
			st.send(id, sub, n)
		}
	}
}

// send is non-blocking so a slow subscriber can never stall the loop.
func (st *brokerState) send(id string, sub *subscriber, n Notification) {
	select {
	case sub.sink <- n:
	default:
		st.b.log.WithField("subscriber", id).Warn("subscriber queue full, dropping notification")
	}
}

// connSink implementation.

func (st *brokerState) stateChanged(s ConnState) {
	st.broadcast(Notification{Type: NotifyStatus, Status: s})
}

func (st *brokerState) retryCountChanged(n int) {
	st.broadcast(Notification{Type: NotifyRetryCount, RetryCount: n})
}

func (st *brokerState) eventDecoded(e *Event) {
	st.buf.push(e)
	st.broadcast(Notification{Type: NotifyEvent, Event: e})
}

func (st *brokerState) connError(err error) {
	st.broadcast(Notification{Type: NotifyError, Err: err})
}

func (st *brokerState) invalidate() {
	st.buf.clear()
}

// Attach registers a subscriber channel with the broker. The subscriber
// starts paused: it receives a priming push if a connection already exists,
// but no live broadcasts until Subscribe. The channel should be buffered;
// notifications that do not fit are dropped.
func (b *Broker) Attach(id string, sink chan<- Notification) {
	b.enqueue(command{op: opAttach, id: id, sink: sink})
}

// Subscribe starts live delivery to an attached subscriber and replays the
// full buffered history to it first, oldest event first. Subscribing an
// already subscribed consumer is a no-op.
func (b *Broker) Subscribe(id string) {
	b.enqueue(command{op: opSubscribe, id: id})
}

// Unsubscribe pauses live delivery. The subscriber stays attached and can
// subscribe again later.
func (b *Broker) Unsubscribe(id string) {
	b.enqueue(command{op: opUnsubscribe, id: id})
}

// Detach removes a subscriber entirely and closes its channel.
func (b *Broker) Detach(id string) {
	b.enqueue(command{op: opDetach, id: id})
}

// RequestConnect validates the options and asks the connection machine to
// connect to url. Connecting to the URL the broker is already connected to
// only re-announces the current status.
func (b *Broker) RequestConnect(url string, opts Options) error {
	opts.defaults()
	if err := opts.validate(); err != nil {
		return err
	}
	if !b.enqueue(command{op: opConnect, url: url, opts: opts}) {
		return ErrStopped
	}
	return nil
}

// RequestDisconnect closes the connection. The closed state is terminal
// until a fresh RequestConnect.
func (b *Broker) RequestDisconnect() {
	b.enqueue(command{op: opDisconnect})
}

// RequestReconnect drops any pending retry, resets the retry counter, clears
// buffered history and immediately reopens a transport to the last URL.
func (b *Broker) RequestReconnect() error {
	resp := make(chan error, 1)
	if !b.enqueue(command{op: opReconnect, resp: resp}) {
		return ErrStopped
	}
	select {
	case err := <-resp:
		return err
	case <-b.quit:
		return ErrStopped
	}
}

// Stop shuts the broker down: the upstream transport is cancelled and every
// subscriber channel is closed. Requests arriving after Stop are no-ops.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.quit) })
	b.wg.Wait()
}
