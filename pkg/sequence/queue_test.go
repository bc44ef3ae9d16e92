package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue[int]()
	assert.True(t, q.IsEmpty())

	for i := 0; i < 100; i++ {
		q.Enqueue(i)
	}
	assert.Equal(t, 100, q.Len())

	head, ok := q.Peek()
	assert.True(t, ok)
	assert.Equal(t, 0, head)

	for i := 0; i < 60; i++ {
		v, ok := q.Dequeue()
		assert.True(t, ok)
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 40, q.Len())

	q.Enqueue(100)
	values := q.Values()
	assert.Len(t, values, 41)
	assert.Equal(t, 60, values[0])
	assert.Equal(t, 100, values[40])
}

func TestQueueClear(t *testing.T) {
	q := NewQueue[string]()
	q.Enqueue("a")
	q.Enqueue("b")
	q.Clear()

	_, ok := q.Dequeue()
	assert.False(t, ok)
	_, ok = q.Peek()
	assert.False(t, ok)

	q.Enqueue("c")
	v, ok := q.Dequeue()
	assert.True(t, ok)
	assert.Equal(t, "c", v)
}
