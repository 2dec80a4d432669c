package frame

import (
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"go.uber.org/zap"
)

// PageSize is the fixed size of one physical page frame in bytes.
const PageSize = 4096

// Frame identifies one physical page frame.
type Frame uint64

// Allocation errors.
var (
	ErrOutOfMemory  = errors.New("out of physical memory")
	ErrInvalidFrame = errors.New("invalid frame")
)

type frameState uint8

const (
	stateFree frameState = iota
	stateUsed
)

type frameMeta struct {
	state frameState
	refs  uint32
}

// Allocator owns the physical memory arena and hands out page frames.
// Frames are reference counted: a frame stays allocated until its last
// reference is released, which is what lets copy-on-write address
// spaces share frames safely.
type Allocator struct {
	mu      sync.Mutex
	arena   []byte
	meta    []frameMeta
	free    []Frame
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// Stats describes the frame pool.
type Stats struct {
	Total  uint64
	Free   uint64
	Used   uint64
	Shared uint64 // frames with more than one reference
}

// New creates an allocator managing totalFrames page frames.
func New(totalFrames uint64, log *logging.Logger) (*Allocator, error) {
	if totalFrames == 0 {
		return nil, fmt.Errorf("allocator needs at least one frame")
	}
	if log == nil {
		log = logging.NewNop()
	}

	a := &Allocator{
		arena: make([]byte, totalFrames*PageSize),
		meta:  make([]frameMeta, totalFrames),
		free:  make([]Frame, 0, totalFrames),
		log:   log.Named("frame"),
	}
	// Highest frame on top so early allocations come from low memory.
	for i := int64(totalFrames) - 1; i >= 0; i-- {
		a.free = append(a.free, Frame(i))
	}

	a.log.Info("physical memory initialized",
		zap.Uint64("frames", totalFrames),
		zap.Uint64("bytes", totalFrames*PageSize))
	return a, nil
}

// WithMetrics attaches a metrics collector.
func (a *Allocator) WithMetrics(m *monitoring.Metrics) *Allocator {
	a.mu.Lock()
	a.metrics = m
	a.mu.Unlock()
	a.publishGauges()
	return a
}

// Allocate returns n distinct free frames, each zero-filled with a
// single reference. All-or-nothing: when fewer than n frames are free
// it fails without allocating any.
func (a *Allocator) Allocate(n int) ([]Frame, error) {
	if n <= 0 {
		return nil, fmt.Errorf("allocate: count must be positive, got %d", n)
	}

	a.mu.Lock()
	if len(a.free) < n {
		a.mu.Unlock()
		if a.metrics != nil {
			a.metrics.RecordAllocFailure()
		}
		return nil, fmt.Errorf("allocate %d frames, %d free: %w", n, len(a.free), ErrOutOfMemory)
	}

	frames := make([]Frame, n)
	for i := 0; i < n; i++ {
		f := a.free[len(a.free)-1]
		a.free = a.free[:len(a.free)-1]
		a.meta[f] = frameMeta{state: stateUsed, refs: 1}
		frames[i] = f
		clear(a.arena[uint64(f)*PageSize : (uint64(f)+1)*PageSize])
	}
	a.mu.Unlock()

	a.publishGauges()
	return frames, nil
}

// Free returns solely-owned frames to the free set. Every frame must
// currently be allocated with exactly one reference; otherwise nothing
// is freed and ErrInvalidFrame is returned.
func (a *Allocator) Free(frames []Frame) error {
	a.mu.Lock()
	for _, f := range frames {
		if err := a.checkOwned(f); err != nil {
			a.mu.Unlock()
			return err
		}
	}
	for _, f := range frames {
		a.meta[f] = frameMeta{}
		a.free = append(a.free, f)
	}
	a.mu.Unlock()

	a.publishGauges()
	return nil
}

// Retain adds a reference to an allocated frame.
func (a *Allocator) Retain(f Frame) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.allocated(f) {
		return fmt.Errorf("retain frame %d: %w", f, ErrInvalidFrame)
	}
	a.meta[f].refs++
	return nil
}

// Release drops one reference from an allocated frame, returning the
// frame to the free set when the last reference goes away. Reports
// whether the frame was freed.
func (a *Allocator) Release(f Frame) (bool, error) {
	a.mu.Lock()
	if !a.allocated(f) {
		a.mu.Unlock()
		return false, fmt.Errorf("release frame %d: %w", f, ErrInvalidFrame)
	}

	a.meta[f].refs--
	freed := a.meta[f].refs == 0
	if freed {
		a.meta[f] = frameMeta{}
		a.free = append(a.free, f)
	}
	a.mu.Unlock()

	if freed {
		a.publishGauges()
	}
	return freed, nil
}

// Refs returns the reference count of an allocated frame.
func (a *Allocator) Refs(f Frame) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.allocated(f) {
		return 0, fmt.Errorf("refs of frame %d: %w", f, ErrInvalidFrame)
	}
	return a.meta[f].refs, nil
}

// Data returns the frame's backing bytes. The window stays valid for
// the allocator's lifetime; callers must hold a reference to f.
func (a *Allocator) Data(f Frame) []byte {
	if uint64(f) >= uint64(len(a.meta)) {
		return nil
	}
	return a.arena[uint64(f)*PageSize : (uint64(f)+1)*PageSize]
}

// Total returns the number of frames managed.
func (a *Allocator) Total() uint64 {
	return uint64(len(a.meta))
}

// FreeCount returns the number of free frames.
func (a *Allocator) FreeCount() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.free))
}

// Stats returns a snapshot of the frame pool.
func (a *Allocator) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := Stats{
		Total: uint64(len(a.meta)),
		Free:  uint64(len(a.free)),
	}
	s.Used = s.Total - s.Free
	for i := range a.meta {
		if a.meta[i].state == stateUsed && a.meta[i].refs > 1 {
			s.Shared++
		}
	}
	return s
}

func (a *Allocator) allocated(f Frame) bool {
	return uint64(f) < uint64(len(a.meta)) && a.meta[f].state == stateUsed
}

func (a *Allocator) checkOwned(f Frame) error {
	if !a.allocated(f) {
		return fmt.Errorf("free frame %d: not allocated: %w", f, ErrInvalidFrame)
	}
	if a.meta[f].refs != 1 {
		return fmt.Errorf("free frame %d: %d references outstanding: %w", f, a.meta[f].refs, ErrInvalidFrame)
	}
	return nil
}

func (a *Allocator) publishGauges() {
	a.mu.Lock()
	m := a.metrics
	free := len(a.free)
	used := len(a.meta) - free
	a.mu.Unlock()

	if m != nil {
		m.SetFrames(free, used)
	}
}
