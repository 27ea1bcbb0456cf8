package shellintegration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchHarness struct {
	batcher *Batcher
	timers  *timerRecorder
	flushes [][]byte
}

func newBatchHarness() *batchHarness {
	h := &batchHarness{timers: &timerRecorder{}}
	h.batcher = NewBatcher(func(p []byte) { h.flushes = append(h.flushes, p) })
	h.batcher.afterFunc = h.timers.afterFunc
	return h
}

func TestBatcherCoalescesWritesIntoOneFlush(t *testing.T) {
	h := newBatchHarness()

	h.batcher.Write([]byte("hel"))
	h.batcher.Write([]byte("lo"))
	assert.Equal(t, 1, h.timers.count(), "second write must not arm another flush")
	assert.Empty(t, h.flushes)

	h.timers.fireLast(t)
	require.Len(t, h.flushes, 1)
	assert.Equal(t, "hello", string(h.flushes[0]))
}

func TestBatcherRearmsAfterFlush(t *testing.T) {
	h := newBatchHarness()

	h.batcher.Write([]byte("a"))
	h.timers.fireLast(t)
	h.batcher.Write([]byte("b"))
	assert.Equal(t, 2, h.timers.count())

	h.timers.fireLast(t)
	require.Len(t, h.flushes, 2)
	assert.Equal(t, "a", string(h.flushes[0]))
	assert.Equal(t, "b", string(h.flushes[1]))
}

func TestBatcherEmptyFlushEmitsNothing(t *testing.T) {
	h := newBatchHarness()

	h.batcher.Write([]byte("x"))
	h.batcher.Dispose()

	// The armed timer fires after dispose already flushed.
	h.timers.fireLast(t)
	require.Len(t, h.flushes, 1)
	assert.Equal(t, "x", string(h.flushes[0]))
}

func TestBatcherDisposeFlushesPending(t *testing.T) {
	h := newBatchHarness()

	h.batcher.Write([]byte("tail"))
	h.batcher.Dispose()
	require.Len(t, h.flushes, 1)
	assert.Equal(t, "tail", string(h.flushes[0]))

	h.batcher.Write([]byte("dropped"))
	assert.Len(t, h.flushes, 1)
}

func TestBatcherRealTimerFlushes(t *testing.T) {
	flushed := make(chan []byte, 1)
	b := NewBatcher(func(p []byte) { flushed <- p })

	b.Write([]byte("tick"))
	select {
	case p := <-flushed:
		assert.Equal(t, "tick", string(p))
	case <-time.After(time.Second):
		t.Fatal("flush never fired")
	}
}
