package audio

import (
	"log/slog"
	"sync"
	"time"
)

// dropWarnInterval rate-limits the "dropping frames" warning so a sustained
// stall does not flood the log at frame rate.
const dropWarnInterval = 5 * time.Second

// Queue is the bounded frame queue between the capture context and the VAD
// worker. Push never blocks: when the queue is full the oldest frame is
// evicted to make room, keeping capture real-time at the cost of a gap in the
// VAD input. Drops are counted and logged with rate limiting.
//
// Frames are delivered in capture order. All methods are safe for concurrent
// use by one producer and one consumer.
type Queue struct {
	mu       sync.Mutex
	frames   []Frame
	cap      int
	notEmpty chan struct{} // 1-buffered wakeup signal
	closed   bool

	dropped  uint64
	lastWarn time.Time
}

// NewQueue creates a queue holding at most capacity frames. A capacity below
// one is coerced to one.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		frames:   make([]Frame, 0, capacity),
		cap:      capacity,
		notEmpty: make(chan struct{}, 1),
	}
}

// Push enqueues a frame without blocking. When the queue is full the oldest
// frame is dropped. Push after Close is a silent no-op.
func (q *Queue) Push(f Frame) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	if len(q.frames) >= q.cap {
		copy(q.frames, q.frames[1:])
		q.frames = q.frames[:len(q.frames)-1]
		q.dropped++
		if now := time.Now(); now.Sub(q.lastWarn) >= dropWarnInterval {
			q.lastWarn = now
			dropped := q.dropped
			q.mu.Unlock()
			slog.Warn("audio queue full, dropping oldest frames",
				"capacity", q.cap,
				"dropped_total", dropped,
			)
			q.mu.Lock()
		}
	}
	q.frames = append(q.frames, f)
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

// Pop removes and returns the oldest frame, blocking until one is available,
// done is closed, or the queue is closed. ok is false when the queue drained
// after Close or when done fired first.
func (q *Queue) Pop(done <-chan struct{}) (Frame, bool) {
	for {
		q.mu.Lock()
		if len(q.frames) > 0 {
			f := q.frames[0]
			copy(q.frames, q.frames[1:])
			q.frames = q.frames[:len(q.frames)-1]
			q.mu.Unlock()
			return f, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Frame{}, false
		}
		select {
		case <-q.notEmpty:
		case <-done:
			return Frame{}, false
		}
	}
}

// Len returns the number of frames currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Dropped returns the total number of frames evicted since creation.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close marks the queue closed and wakes any blocked Pop. Already-queued
// frames remain poppable. Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}
