package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueClosed is returned by [Queue.Pop] once the queue has been closed and
// every buffered frame has been consumed.
var ErrQueueClosed = errors.New("audio: queue closed")

// minQueueSlots is the initial ring size of an unbounded queue.
const minQueueSlots = 64

// Queue is the FIFO handoff between the capture goroutine and the consumer.
//
// Push never blocks. When the queue is bounded and full, the oldest buffered
// frame is overwritten so that capture keeps running and the consumer always
// sees the most recent audio. Pop blocks until a frame is available, the
// queue is closed, or the context is cancelled.
//
// A Queue is safe for one producer and any number of consumers, although the
// assistant only ever runs one consumer.
type Queue struct {
	notify chan struct{}
	closed chan struct{}

	mu         sync.Mutex
	buf        []Frame
	head, tail int64
	capacity   int
	closeOnce  sync.Once
	isClosed   bool

	dropped atomic.Uint64
}

// NewQueue returns a queue holding at most capacity frames. A capacity of
// zero or less creates an unbounded queue.
func NewQueue(capacity int) *Queue {
	size := capacity
	if size <= 0 {
		size = minQueueSlots
	}
	return &Queue{
		notify:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
		buf:      make([]Frame, size),
		capacity: capacity,
	}
}

// Push appends f to the queue. It reports false when the queue is closed and
// the frame was rejected. Push never blocks.
func (q *Queue) Push(f Frame) bool {
	q.mu.Lock()
	if q.isClosed {
		q.mu.Unlock()
		return false
	}
	if int(q.tail-q.head) == len(q.buf) {
		if q.capacity > 0 {
			q.head++
			q.dropped.Add(1)
		} else {
			q.growLocked()
		}
	}
	q.buf[q.tail%int64(len(q.buf))] = f
	q.tail++
	q.mu.Unlock()

	q.signal()
	return true
}

// Pop removes and returns the oldest frame. It blocks until a frame arrives,
// ctx is cancelled (returning ctx.Err()), or the queue is closed and drained
// (returning [ErrQueueClosed]).
func (q *Queue) Pop(ctx context.Context) (Frame, error) {
	for {
		f, ok, closed := q.tryPop()
		if ok {
			return f, nil
		}
		if closed {
			return Frame{}, ErrQueueClosed
		}
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-q.notify:
		case <-q.closed:
		}
	}
}

// TryPop removes and returns the oldest frame without blocking. The boolean
// is false when the queue is empty.
func (q *Queue) TryPop() (Frame, bool) {
	f, ok, _ := q.tryPop()
	return f, ok
}

func (q *Queue) tryPop() (Frame, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == q.tail {
		return Frame{}, false, q.isClosed
	}
	idx := q.head % int64(len(q.buf))
	f := q.buf[idx]
	q.buf[idx] = Frame{}
	q.head++
	if q.head != q.tail {
		// Keep other waiters moving when several frames are pending.
		q.signal()
	}
	return f, true, false
}

// Discard drops every buffered frame and returns how many were removed.
// Discarded frames are not counted as dropped.
func (q *Queue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := int(q.tail - q.head)
	for i := q.head; i < q.tail; i++ {
		q.buf[i%int64(len(q.buf))] = Frame{}
	}
	q.head = q.tail
	return n
}

// Len returns the number of buffered frames.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int(q.tail - q.head)
}

// Dropped returns how many frames have been overwritten because the queue
// was full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isClosed
}

// Close stops accepting frames. Frames already buffered can still be popped;
// after that Pop returns [ErrQueueClosed]. Close is idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.isClosed = true
		q.mu.Unlock()
		close(q.closed)
	})
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *Queue) growLocked() {
	n := int(q.tail - q.head)
	grown := make([]Frame, len(q.buf)*2)
	for i := range n {
		grown[i] = q.buf[(q.head+int64(i))%int64(len(q.buf))]
	}
	q.buf = grown
	q.head = 0
	q.tail = int64(n)
}
