package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmitterTerminalExactlyOnce(t *testing.T) {
	em := NewEmitter(4)
	em.Close(Event{Type: "complete", FileCount: 3})
	em.Close(Event{Type: "error", Message: "late"})
	em.Progress(Event{Step: "probing"})
	em.Lifecycle(Event{Type: "setup"})

	var got []Event
	for ev := range em.Events() {
		got = append(got, ev)
	}
	require.Len(t, got, 1)
	assert.Equal(t, "complete", got[0].Type)
	assert.True(t, got[0].Terminal())
}

func TestEmitterDropsProgressWhenFull(t *testing.T) {
	em := NewEmitter(1)
	for i := 0; i < 10; i++ {
		em.Progress(Event{Current: i + 1, Total: 10, Step: "probing"})
	}

	// Only the frame that fit in the buffer survives; the rest were
	// dropped without blocking the producer.
	ev := <-em.Events()
	assert.Equal(t, 1, ev.Current)
	select {
	case extra, ok := <-em.Events():
		require.False(t, ok, "unexpected buffered frame: %+v", extra)
	default:
	}
}

func TestEmitterStampsElapsed(t *testing.T) {
	em := NewEmitter(2)
	em.Lifecycle(Event{Type: "setup"})
	ev := <-em.Events()
	assert.GreaterOrEqual(t, ev.Elapsed, 0.0)
}
