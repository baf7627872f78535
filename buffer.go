package ssemux

// eventBuffer is a fixed-capacity ring of the most recent events. Insertion
// is append; when full the oldest entry is evicted in place, no reallocation.
// It is owned by the broker loop and needs no locking.
type eventBuffer struct {
	ring []*Event
	head int // index of the oldest retained event
	size int
}

func newEventBuffer(capacity int) *eventBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &eventBuffer{ring: make([]*Event, capacity)}
}

func (b *eventBuffer) push(e *Event) {
	tail := (b.head + b.size) % len(b.ring)
	b.ring[tail] = e
	if b.size < len(b.ring) {
		b.size++
		return
	}
	// full: tail just overwrote the oldest entry
	b.head = (b.head + 1) % len(b.ring)
}

// snapshot returns all retained events, oldest first.
func (b *eventBuffer) snapshot() []*Event {
	out := make([]*Event, 0, b.size)
	for i := 0; i < b.size; i++ {
		out = append(out, b.ring[(b.head+i)%len(b.ring)])
	}
	return out
}

// last returns the most recent event, or nil when the buffer is empty.
func (b *eventBuffer) last() *Event {
	if b.size == 0 {
		return nil
	}
	return b.ring[(b.head+b.size-1)%len(b.ring)]
}

func (b *eventBuffer) len() int { return b.size }

func (b *eventBuffer) clear() {
	for i := range b.ring {
		b.ring[i] = nil
	}
	b.head, b.size = 0, 0
}
