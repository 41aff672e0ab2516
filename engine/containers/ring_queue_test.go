package containers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingQueueFIFO(t *testing.T) {
	q := NewRingQueue[int](3)
	require.NoError(t, q.Enqueue(1))
	require.NoError(t, q.Enqueue(2))
	require.NoError(t, q.Enqueue(3))
	assert.True(t, q.IsFull())
	assert.ErrorIs(t, q.Enqueue(4), ErrQueueFull)

	v, err := q.Dequeue()
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	require.NoError(t, q.Enqueue(4))
	assert.Equal(t, []int{2, 3, 4}, q.Values())
}

func TestRingQueuePushDropsOldest(t *testing.T) {
	q := NewRingQueue[string](2)
	q.Push("a")
	q.Push("b")
	q.Push("c")
	assert.Equal(t, 2, q.Len())
	head, err := q.Peek()
	require.NoError(t, err)
	assert.Equal(t, "b", head)
	assert.Equal(t, []string{"b", "c"}, q.Values())
}

func TestRingQueueEmpty(t *testing.T) {
	q := NewRingQueue[int](1)
	assert.True(t, q.IsEmpty())
	_, err := q.Dequeue()
	assert.ErrorIs(t, err, ErrQueueEmpty)
	_, err = q.Peek()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}
