package wire

import (
	"errors"
	"sync"
)

var (
	ErrBackpressure = errors.New("outbound queue full")
	ErrClosed       = errors.New("connection closed")
)

// Outbox is a bounded queue of encoded messages drained by one writer
// goroutine. Push never blocks.
type Outbox struct {
	ch     chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.RWMutex
	closed bool
}

func NewOutbox(size int) *Outbox {
	if size <= 0 {
		size = 1
	}
	return &Outbox{ch: make(chan []byte, size), done: make(chan struct{})}
}

// Push enqueues a message, failing fast when the queue is full or closed.
func (o *Outbox) Push(msg []byte) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrClosed
	}
	select {
	case o.ch <- msg:
		return nil
	default:
		return ErrBackpressure
	}
}

// Messages is drained by the writer until Done is closed.
func (o *Outbox) Messages() <-chan []byte {
	return o.ch
}

// Done is closed by Close.
func (o *Outbox) Done() <-chan struct{} {
	return o.done
}

// Close rejects further pushes. Queued messages stay readable.
func (o *Outbox) Close() {
	o.once.Do(func() {
		o.mu.Lock()
		o.closed = true
		o.mu.Unlock()
		close(o.done)
	})
}
