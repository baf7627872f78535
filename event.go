package ssemux

import (
	"encoding/json"
	"time"
)

// Event holds a single decoded event from an upstream SSE stream.
//
// Data holds the decoded JSON value when the raw payload parses as JSON,
// otherwise the raw payload string. The decoding decision is made once, when
// the event is decoded from the wire, and never retried. Events are immutable
// once constructed and may be shared between subscribers.
type Event struct {
	// Type is the event type from the "event:" line. Defaults to "message"
	// when the stream does not specify one.
	Type string

	// Data is the event payload: any JSON value, or a string if the
	// payload was not valid JSON.
	Data interface{}

	// ID is the optional event ID from the "id:" line.
	ID string

	// ReceivedAt is the local time the event was decoded.
	ReceivedAt time.Time
}

// defaultEventType is used when a frame carries no "event:" line.
const defaultEventType = "message"

func newEvent(typ, id, payload string, at time.Time) *Event {
	if typ == "" {
		typ = defaultEventType
	}
	e := &Event{Type: typ, ID: id, ReceivedAt: at}

	var v interface{}
	if err := json.Unmarshal([]byte(payload), &v); err == nil {
		e.Data = v
	} else {
		e.Data = payload
	}
	return e
}
