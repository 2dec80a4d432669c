package proc

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/addrspace"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

var (
	ErrNoSuchProcess = errors.New("no such process")
	ErrTerminated    = errors.New("process terminated")
	ErrBadHandle     = errors.New("bad file descriptor")
	ErrBadTransition = errors.New("invalid state transition")
)

// Table manages process control blocks and enforces the lifecycle
// state machine. Terminated is absorbing: once a process exits its
// address space and descriptors are reclaimed and no transition leads
// back out.
type Table struct {
	mu      sync.RWMutex
	procs   map[uint32]*PCB
	nextPID uint32
	clock   Clock
	stdio   Endpoint
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewTable creates an empty process table. stdio backs descriptors 0
// through 2 of every process and may be nil.
func NewTable(clock Clock, stdio Endpoint, log *logging.Logger) *Table {
	if clock == nil {
		clock = RealClock()
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Table{
		procs:   make(map[uint32]*PCB),
		nextPID: 1,
		clock:   clock,
		stdio:   stdio,
		log:     log.Named("proc"),
	}
}

// WithMetrics attaches metrics collection
func (t *Table) WithMetrics(m *monitoring.Metrics) *Table {
	t.metrics = m
	return t
}

// Spawn registers a new process in the Ready state. The table takes
// ownership of the space and releases it when the process exits.
func (t *Table) Spawn(name string, space *addrspace.Space) (*PCB, error) {
	if space == nil {
		return nil, fmt.Errorf("spawn %q: nil address space", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	pid := t.nextPID
	t.nextPID++
	p := &PCB{
		PID:       pid,
		Name:      name,
		CreatedAt: t.clock.Now(),
		state:     StateReady,
		space:     space,
		files:     newFileTable(t.stdio),
	}
	t.procs[pid] = p

	if t.metrics != nil {
		t.metrics.IncProcessesTotal()
	}
	t.recountLocked()
	t.log.Info("process spawned", zap.Uint32("pid", pid), zap.String("name", name))
	return p, nil
}

// Clone creates a child of parentPID in the Ready state. The child
// inherits the parent's descriptors; its address space is a
// copy-on-write twin unless shareVM asks for the parent's own.
func (t *Table) Clone(parentPID uint32, name string, shareVM bool) (*PCB, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.procs[parentPID]
	if !ok {
		return nil, fmt.Errorf("clone from pid %d: %w", parentPID, ErrNoSuchProcess)
	}
	if parent.state == StateTerminated {
		return nil, fmt.Errorf("clone from pid %d: %w", parentPID, ErrTerminated)
	}
	if name == "" {
		name = parent.Name
	}

	var space *addrspace.Space
	if shareVM {
		space = parent.space.Acquire()
	} else {
		forked, err := parent.space.Fork()
		if err != nil {
			return nil, fmt.Errorf("clone from pid %d: %w", parentPID, err)
		}
		space = forked
	}

	pid := t.nextPID
	t.nextPID++
	child := &PCB{
		PID:       pid,
		Name:      name,
		Parent:    parentPID,
		CreatedAt: t.clock.Now(),
		state:     StateReady,
		sharedVM:  shareVM,
		space:     space,
		files:     parent.files.clone(),
	}
	t.procs[pid] = child

	if t.metrics != nil {
		t.metrics.IncProcessesTotal()
	}
	t.recountLocked()
	t.log.Info("process cloned",
		zap.Uint32("pid", pid),
		zap.Uint32("parent", parentPID),
		zap.Bool("share_vm", shareVM))
	return child, nil
}

// MarkRunning moves a Ready process onto the CPU.
func (t *Table) MarkRunning(pid uint32) error {
	return t.transition(pid, StateReady, StateRunning, "")
}

// MarkReady takes a Running process off the CPU.
func (t *Table) MarkReady(pid uint32) error {
	return t.transition(pid, StateRunning, StateReady, "")
}

// Block parks a Running process; on names what it waits for, either
// "timer" or "channel:<name>".
func (t *Table) Block(pid uint32, on string) error {
	return t.transition(pid, StateRunning, StateBlocked, on)
}

// Wake returns a Blocked process to Ready.
func (t *Table) Wake(pid uint32) error {
	return t.transition(pid, StateBlocked, StateReady, "")
}

func (t *Table) transition(pid uint32, from, to State, on string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	p, ok := t.procs[pid]
	if !ok {
		return fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	}
	if p.state == StateTerminated {
		return fmt.Errorf("pid %d: %w", pid, ErrTerminated)
	}
	if p.state != from {
		return fmt.Errorf("pid %d: %s to %s: %w", pid, p.state, to, ErrBadTransition)
	}
	p.state = to
	p.blockedOn = on
	t.recountLocked()
	return nil
}

// Exit moves a process to Terminated, closes its descriptors, and
// releases its address space. Exiting twice is a no-op.
func (t *Table) Exit(pid uint32, code int32) error {
	t.mu.Lock()
	p, ok := t.procs[pid]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	}
	if p.state == StateTerminated {
		t.mu.Unlock()
		return nil
	}
	p.state = StateTerminated
	p.blockedOn = ""
	p.exitCode = code
	space := p.space
	p.space = nil
	files := p.files
	p.files = nil
	t.recountLocked()
	t.mu.Unlock()

	if files != nil {
		files.closeAll()
	}
	if space != nil {
		space.Release()
	}
	t.log.Info("process exited", zap.Uint32("pid", pid), zap.Int32("code", code))
	return nil
}

// Sleep blocks pid on the timer for d, then returns it to Running.
func (t *Table) Sleep(pid uint32, d time.Duration) error {
	if d <= 0 {
		return t.alive(pid)
	}
	if err := t.Block(pid, "timer"); err != nil {
		return err
	}
	t.clock.Sleep(d)
	if err := t.Wake(pid); err != nil {
		return err
	}
	return t.MarkRunning(pid)
}

// Yield cycles a Running process through Ready, giving others a turn.
func (t *Table) Yield(pid uint32) error {
	if err := t.MarkReady(pid); err != nil {
		return err
	}
	runtime.Gosched()
	return t.MarkRunning(pid)
}

func (t *Table) alive(pid uint32) error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	if !ok {
		return fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	}
	if p.state == StateTerminated {
		return fmt.Errorf("pid %d: %w", pid, ErrTerminated)
	}
	return nil
}

// Space returns the address space of a live process.
func (t *Table) Space(pid uint32) (*addrspace.Space, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	if !ok {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	}
	if p.state == StateTerminated || p.space == nil {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrTerminated)
	}
	return p.space, nil
}

// File resolves a descriptor for a live process.
func (t *Table) File(pid, fd uint32) (Endpoint, error) {
	files, err := t.filesOf(pid)
	if err != nil {
		return nil, err
	}
	ep, ok := files.get(fd)
	if !ok {
		return nil, fmt.Errorf("pid %d fd %d: %w", pid, fd, ErrBadHandle)
	}
	return ep, nil
}

// InstallFile assigns the next descriptor to ep. Numbers are never
// reused within a process.
func (t *Table) InstallFile(pid uint32, ep Endpoint) (uint32, error) {
	files, err := t.filesOf(pid)
	if err != nil {
		return 0, err
	}
	return files.install(ep), nil
}

// CloseFile drops a descriptor. The endpoint itself stays open; FIFO
// and device lifetimes are owned elsewhere.
func (t *Table) CloseFile(pid, fd uint32) error {
	files, err := t.filesOf(pid)
	if err != nil {
		return err
	}
	if !files.close(fd) {
		return fmt.Errorf("pid %d fd %d: %w", pid, fd, ErrBadHandle)
	}
	return nil
}

func (t *Table) filesOf(pid uint32) (*fileTable, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	if !ok {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNoSuchProcess)
	}
	if p.state == StateTerminated || p.files == nil {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrTerminated)
	}
	return p.files, nil
}

// Get returns a snapshot of one process.
func (t *Table) Get(pid uint32) (types.ProcessInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.procs[pid]
	if !ok {
		return types.ProcessInfo{}, false
	}
	return t.infoLocked(p, false), true
}

// List returns snapshots of every process ordered by PID.
func (t *Table) List() []types.ProcessInfo {
	return t.snapshot(false)
}

// Dump is List with per-process region detail included.
func (t *Table) Dump() []types.ProcessInfo {
	return t.snapshot(true)
}

func (t *Table) snapshot(regions bool) []types.ProcessInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.ProcessInfo, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, t.infoLocked(p, regions))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (t *Table) infoLocked(p *PCB, withRegions bool) types.ProcessInfo {
	info := types.ProcessInfo{
		PID:       p.PID,
		Name:      p.Name,
		State:     types.ProcessState(p.state.String()),
		SharedVM:  p.sharedVM,
		CreatedAt: p.CreatedAt,
	}
	if p.Parent != 0 {
		parent := p.Parent
		info.ParentPID = &parent
	}
	if p.state == StateBlocked && p.blockedOn != "" {
		on := p.blockedOn
		info.BlockedOn = &on
	}
	if p.state == StateTerminated {
		code := p.exitCode
		info.ExitCode = &code
	}
	if withRegions && p.space != nil {
		for _, r := range p.space.Regions() {
			info.Regions = append(info.Regions, types.RegionInfo{
				Base:    r.Base,
				Pages:   r.Pages,
				Perms:   r.Perms.String(),
				Backing: r.Backing.Label(),
			})
		}
	}
	return info
}

// Count returns the number of processes that have not terminated.
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, p := range t.procs {
		if p.state != StateTerminated {
			n++
		}
	}
	return n
}

func (t *Table) recountLocked() {
	if t.metrics == nil {
		return
	}
	counts := make(map[State]int, 4)
	for _, p := range t.procs {
		counts[p.state]++
	}
	live := 0
	for _, s := range []State{StateReady, StateRunning, StateBlocked, StateTerminated} {
		t.metrics.SetProcessState(s.String(), counts[s])
		if s != StateTerminated {
			live += counts[s]
		}
	}
	t.metrics.SetProcessesActive(live)
}
