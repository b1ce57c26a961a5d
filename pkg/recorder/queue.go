package recorder

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Honorable-Knights-of-the-Roundtable/voicerecorder/pkg/frame"
)

// An audio buffer waiting to be written by the recorder goroutine.
type recordBuffer struct {
	// Key of the slot this buffer belongs to.
	key uuid.UUID

	// Name of the speaker when the buffer was submitted, used if this buffer creates the slot.
	speakerName string

	samples     frame.PCMFrame
	sampleCount int

	// Absolute sample number of the first frame in this buffer.
	absoluteStartSample uint64
}

// FIFO of pending buffers shared by producers and the recorder goroutine.
//
// The mutex is only ever held to append or to take the whole backlog,
// so producers never wait on file I/O.
type bufferQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	buffers []*recordBuffer
	closed  bool
}

func newBufferQueue() *bufferQueue {
	q := &bufferQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Append a buffer and wake the consumer.
// Returns false if the queue has been closed, in which case the buffer is discarded.
func (q *bufferQueue) push(b *recordBuffer) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.buffers = append(q.buffers, b)
	q.cond.Signal()
	return true
}

// Block until buffers are available or the queue is closed, then take every pending buffer in order.
// Once closed, remaining buffers are still handed out; ok is false only when closed and empty.
func (q *bufferQueue) popAll() (buffers []*recordBuffer, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.buffers) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.buffers) == 0 {
		return nil, false
	}

	buffers = q.buffers
	q.buffers = nil
	return buffers, true
}

// Refuse further buffers and wake the consumer so it can drain and exit.
func (q *bufferQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	q.cond.Broadcast()
}

func (q *bufferQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buffers)
}
