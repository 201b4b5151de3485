package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueue_FIFO(t *testing.T) {
	q := newWorkQueue()
	a, b, c := &Object{}, &Object{}, &Object{}

	q.Enqueue(a)
	q.Enqueue(b)
	q.Enqueue(c)
	assert.Equal(t, 3, q.Len())

	for _, want := range []*Object{a, b, c} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Same(t, want, got)
	}
	_, ok := q.TryDequeue()
	assert.False(t, ok, "empty queue")
}

func TestWorkQueue_SkipsQueuedDuplicates(t *testing.T) {
	q := newWorkQueue()
	a := &Object{}

	assert.True(t, q.Enqueue(a))
	assert.False(t, q.Enqueue(a), "already waiting")
	assert.Equal(t, 1, q.Len())

	_, _ = q.TryDequeue()
	assert.True(t, q.Enqueue(a), "re-enqueue after dequeue is allowed")
}
