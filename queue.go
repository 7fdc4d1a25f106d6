package framing

import "github.com/pkg/errors"

// ErrQueueFull is returned when staged bytes would exceed the queue capacity.
var ErrQueueFull = errors.New("framing: staging queue full")

// Queue is a fixed-capacity FIFO of bytes. It never grows after construction.
type Queue struct {
	buf  []byte
	head int
	size int
}

// NewQueue creates a queue holding at most capacity bytes.
func NewQueue(capacity int) *Queue {
	return &Queue{buf: make([]byte, capacity)}
}

// Len returns the number of staged bytes.
func (q *Queue) Len() int {
	return q.size
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return len(q.buf)
}

// Push appends p. Either all of p is staged or, with ErrQueueFull, none of it.
func (q *Queue) Push(p []byte) error {
	if len(p) > len(q.buf)-q.size {
		return errors.Wrapf(ErrQueueFull, "%d bytes staged, %d more requested, capacity %d", q.size, len(p), len(q.buf))
	}
	tail := (q.head + q.size) % max(len(q.buf), 1)
	n := copy(q.buf[tail:], p)
	copy(q.buf, p[n:])
	q.size += len(p)
	return nil
}

// Pop moves up to len(p) bytes from the front of the queue into p.
func (q *Queue) Pop(p []byte) int {
	n := min(len(p), q.size)
	if n == 0 {
		return 0
	}
	first := copy(p[:n], q.buf[q.head:])
	copy(p[first:n], q.buf)
	q.head = (q.head + n) % len(q.buf)
	q.size -= n
	return n
}

// Drain empties the queue and returns its contents in order.
func (q *Queue) Drain() []byte {
	out := make([]byte, q.size)
	q.Pop(out)
	q.head = 0
	return out
}

// Receive implements Receiver over the staged bytes.
func (q *Queue) Receive(p []byte) (Status, error) {
	if len(p) == 0 {
		return Complete(), nil
	}
	if q.size == 0 {
		return Status{}, ErrWouldBlock
	}
	n := q.Pop(p)
	if n < len(p) {
		return Partial(n), nil
	}
	return Complete(), nil
}

// Transmit implements Transmitter by staging all chunks, or none of them.
func (q *Queue) Transmit(chunks ...[]byte) (Status, error) {
	total := 0
	for _, c := range chunks {
		total += len(c)
	}
	if total > len(q.buf)-q.size {
		return Status{}, ErrWouldBlock
	}
	for _, c := range chunks {
		_ = q.Push(c)
	}
	return Complete(), nil
}

var _ Transport = (*Queue)(nil)
