package voxscope

import (
	"io"
	"sync"
)

// pcmQueue is a byte FIFO between a decoder goroutine and an oto player.
// Read blocks until data arrives or the queue is closed. When more than
// limit bytes are pending the oldest are discarded, so a stalled player
// lags by at most limit bytes. Drops are whole frames of frameSize bytes so
// the stream stays sample aligned.
type pcmQueue struct {
	mu        sync.Mutex
	cond      *sync.Cond
	buffer    []byte
	limit     int
	frameSize int
	closed    bool

	dropped int64
}

func newPCMQueue(limit, frameSize int) *pcmQueue {
	frameSize = max(frameSize, 1)
	limit -= limit % frameSize
	q := &pcmQueue{
		buffer:    make([]byte, 0, limit),
		limit:     limit,
		frameSize: frameSize,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *pcmQueue) Write(data []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return 0, ErrClosed
	}
	q.buffer = append(q.buffer, data...)
	if over := len(q.buffer) - q.limit; q.limit > 0 && over > 0 {
		if rem := over % q.frameSize; rem != 0 {
			over = min(over+q.frameSize-rem, len(q.buffer))
		}
		q.buffer = append(q.buffer[:0], q.buffer[over:]...)
		q.dropped += int64(over)
	}
	q.cond.Signal()
	return len(data), nil
}

func (q *pcmQueue) Read(p []byte) (n int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buffer) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buffer) == 0 {
		return 0, io.EOF
	}

	n = copy(p, q.buffer)
	q.buffer = q.buffer[n:]
	return n, nil
}

// Len returns the number of pending bytes.
func (q *pcmQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffer)
}

// Dropped returns the number of bytes discarded by the limit.
func (q *pcmQueue) Dropped() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Close wakes blocked readers; pending data can still be read.
func (q *pcmQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
	return nil
}
