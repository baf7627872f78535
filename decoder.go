package ssemux

import (
	"strings"
	"time"
)

// decoder converts a stream of arbitrary-sized byte chunks into decoded
// events. Frames may be split across chunk boundaries; the trailing incomplete
// line of every chunk is retained and completed by the next one, so the
// decoded event sequence does not depend on where chunks are cut.
//
// A pending data payload is flushed as soon as the line stream moves past it:
// the first complete line that is not another "data:" continuation (a blank
// line, "event:", "id:", a comment or junk) emits the accumulated payload as
// one event. A blank-line frame terminator is therefore not required.
//
// Malformed input degrades to raw-string payloads, never to an error; the
// decoder has no failure mode of its own.
type decoder struct {
	rest string   // trailing incomplete line from the previous chunk
	typ  string   // pending event type, "" means default
	id   string   // pending event ID
	data []string // pending data lines, joined with "\n" on flush

	now func() time.Time
}

func newDecoder() *decoder {
	return &decoder{now: time.Now}
}

// decode consumes the next chunk and returns all events completed by it, in
// stream order.
func (d *decoder) decode(chunk []byte) []*Event {
	d.rest += string(chunk)

	lines := strings.Split(d.rest, "\n")
	// The final fragment has no terminator yet, keep it for the next chunk.
	d.rest = lines[len(lines)-1]
	lines = lines[:len(lines)-1]

	var events []*Event
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")

		if value, ok := fieldValue(line, "data:"); ok {
			d.data = append(d.data, value)
			continue
		}

		// Any non-data line ends the current data run.
		if e := d.flush(); e != nil {
			events = append(events, e)
		}

		switch {
		case line == "":
			// no frame terminator semantics beyond ending a data run
		case strings.HasPrefix(line, ":"):
			// comment, usually a keep-alive
		default:
			if value, ok := fieldValue(line, "event:"); ok {
				d.typ = value
			} else if value, ok := fieldValue(line, "id:"); ok {
				d.id = value
			}
			// unknown fields (retry: and friends) are ignored
		}
	}
	return events
}

// flush emits the pending payload as a single event. Empty payloads are never
// emitted, but pending state is reset either way.
func (d *decoder) flush() *Event {
	if len(d.data) == 0 {
		return nil
	}
	payload := strings.Join(d.data, "\n")
	typ, id := d.typ, d.id
	d.typ, d.id, d.data = "", "", nil

	if payload == "" {
		return nil
	}
	return newEvent(typ, id, payload, d.now())
}

// fieldValue matches a case-sensitive "name:" prefix and returns the value
// with a single leading space trimmed.
func fieldValue(line, prefix string) (string, bool) {
	if !strings.HasPrefix(line, prefix) {
		return "", false
	}
	value := line[len(prefix):]
	return strings.TrimPrefix(value, " "), true
}
