package ssemux

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(i int) *Event {
	return &Event{Type: "message", Data: fmt.Sprintf("event-%d", i)}
}

func TestBufferSnapshotBounds(t *testing.T) {
	const capacity = 5

	for _, pushes := range []int{1, 3, 5, 6, 11, 23} {
		b := newEventBuffer(capacity)
		var all []*Event
		for i := 0; i < pushes; i++ {
			e := testEvent(i)
			all = append(all, e)
			b.push(e)
		}

		want := pushes
		if want > capacity {
			want = capacity
		}
		snap := b.snapshot()
		require.Len(t, snap, want, "pushes=%d", pushes)
		// snapshot holds the last min(N, C) events, oldest first
		assert.Equal(t, all[pushes-want:], snap, "pushes=%d", pushes)
	}
}

func TestBufferLast(t *testing.T) {
	b := newEventBuffer(3)
	assert.Nil(t, b.last())

	for i := 0; i < 7; i++ {
		e := testEvent(i)
		b.push(e)
		assert.Equal(t, e, b.last())
	}
}

func TestBufferClear(t *testing.T) {
	b := newEventBuffer(3)
	for i := 0; i < 5; i++ {
		b.push(testEvent(i))
	}

	b.clear()
	assert.Zero(t, b.len())
	assert.Empty(t, b.snapshot())
	assert.Nil(t, b.last())

	// reusable after clear
	e := testEvent(42)
	b.push(e)
	assert.Equal(t, []*Event{e}, b.snapshot())
}

func TestBufferEvictionOrder(t *testing.T) {
	b := newEventBuffer(2)
	e1, e2, e3 := testEvent(1), testEvent(2), testEvent(3)
	b.push(e1)
	b.push(e2)
	b.push(e3)

	assert.Equal(t, []*Event{e2, e3}, b.snapshot())
}
