package fifo

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

// DefaultCapacity bounds how many bytes a channel queues before
// writers block.
const DefaultCapacity = 4096

var (
	ErrClosed      = errors.New("channel closed")
	ErrExists      = errors.New("channel already exists")
	ErrNotFound    = errors.New("channel not found")
	ErrInvalidName = errors.New("invalid channel name")
)

// Fifo is one named byte channel. Readers block while the queue is
// empty and the channel is open; a read returns 0 bytes only after
// close, once the queue has drained. Writers block while the queue is
// full. A write that turns the queue non-empty wakes exactly one
// waiting reader.
type Fifo struct {
	name      string
	capacity  int
	createdAt time.Time

	mu       sync.Mutex
	readable *sync.Cond
	writable *sync.Cond
	queue    []byte
	closed   bool

	blockedReaders int
	blockedWriters int

	metrics *monitoring.Metrics
}

func newFifo(name string, capacity int, metrics *monitoring.Metrics) *Fifo {
	f := &Fifo{
		name:      name,
		capacity:  capacity,
		createdAt: time.Now(),
		metrics:   metrics,
	}
	f.readable = sync.NewCond(&f.mu)
	f.writable = sync.NewCond(&f.mu)
	return f
}

func (f *Fifo) Name() string { return f.name }

// Read fills p with queued bytes, blocking while the channel is open
// and empty. It returns what is queued, up to len(p), without waiting
// for more.
func (f *Fifo) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	for len(f.queue) == 0 && !f.closed {
		f.parkReader()
	}
	if len(f.queue) == 0 {
		// Closed and drained.
		return 0, nil
	}

	n := copy(p, f.queue)
	f.queue = f.queue[n:]
	if f.metrics != nil {
		f.metrics.RecordChannelBytes("read", n)
	}

	if f.blockedWriters > 0 {
		f.writable.Signal()
	}
	// Leftover data keeps the wake chain going so no reader strands.
	if len(f.queue) > 0 && f.blockedReaders > 0 {
		f.readable.Signal()
	}
	return n, nil
}

// Write queues all of p, blocking whenever the channel is full. It
// fails with ErrClosed once the channel closes, reporting how much was
// queued before that.
func (f *Fifo) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, fmt.Errorf("%s: %w", f.name, ErrClosed)
	}

	written := 0
	for written < len(p) {
		for len(f.queue) >= f.capacity && !f.closed {
			f.parkWriter()
		}
		if f.closed {
			return written, fmt.Errorf("%s: %w", f.name, ErrClosed)
		}

		chunk := len(p) - written
		if free := f.capacity - len(f.queue); chunk > free {
			chunk = free
		}
		wasEmpty := len(f.queue) == 0
		f.queue = append(f.queue, p[written:written+chunk]...)
		written += chunk
		if f.metrics != nil {
			f.metrics.RecordChannelBytes("write", chunk)
		}

		if wasEmpty {
			f.readable.Signal()
		}
	}
	return written, nil
}

// Close marks the channel closed and wakes every waiter. Queued bytes
// stay readable; further writes fail. Closing twice is a no-op.
func (f *Fifo) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	f.readable.Broadcast()
	f.writable.Broadcast()
	return nil
}

func (f *Fifo) parkReader() {
	f.blockedReaders++
	if f.metrics != nil {
		f.metrics.IncBlockedParties("readers")
	}
	f.readable.Wait()
	f.blockedReaders--
	if f.metrics != nil {
		f.metrics.DecBlockedParties("readers")
	}
}

func (f *Fifo) parkWriter() {
	f.blockedWriters++
	if f.metrics != nil {
		f.metrics.IncBlockedParties("writers")
	}
	f.writable.Wait()
	f.blockedWriters--
	if f.metrics != nil {
		f.metrics.DecBlockedParties("writers")
	}
}

// Queued reports how many bytes are waiting to be read.
func (f *Fifo) Queued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// BlockedReaders reports how many readers are currently parked.
func (f *Fifo) BlockedReaders() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockedReaders
}

// BlockedWriters reports how many writers are currently parked.
func (f *Fifo) BlockedWriters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockedWriters
}

// Info returns a snapshot for the monitor.
func (f *Fifo) Info() types.ChannelInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.ChannelInfo{
		Name:           f.name,
		Capacity:       f.capacity,
		Queued:         len(f.queue),
		BlockedReaders: f.blockedReaders,
		BlockedWriters: f.blockedWriters,
		Closed:         f.closed,
		CreatedAt:      f.createdAt,
	}
}
