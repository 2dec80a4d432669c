package proc

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/addrspace"
)

// State tracks where a process sits in its lifecycle.
type State uint8

const (
	StateReady State = iota
	StateRunning
	StateBlocked
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateBlocked:
		return "blocked"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Endpoint is anything a file descriptor can reach: a device or a
// channel end. Read may block until data arrives or the endpoint is
// closed, in which case it returns 0, nil.
type Endpoint interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
}

// PCB is one process control block. Identity fields are fixed at
// creation; everything mutable is owned by the Table and read through
// its accessors.
type PCB struct {
	PID       uint32
	Name      string
	Parent    uint32 // 0 when spawned directly
	CreatedAt time.Time

	state     State
	blockedOn string
	exitCode  int32
	sharedVM  bool
	space     *addrspace.Space
	files     *fileTable
}

// fileTable maps descriptors to endpoints. Descriptors 0 through 2 are
// wired to standard I/O at creation and numbers are never reused.
type fileTable struct {
	mu   sync.Mutex
	next uint32
	open map[uint32]Endpoint
}

func newFileTable(stdio Endpoint) *fileTable {
	ft := &fileTable{next: 3, open: make(map[uint32]Endpoint, 4)}
	if stdio != nil {
		ft.open[0] = stdio
		ft.open[1] = stdio
		ft.open[2] = stdio
	}
	return ft
}

func (ft *fileTable) install(ep Endpoint) uint32 {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	fd := ft.next
	ft.next++
	ft.open[fd] = ep
	return fd
}

func (ft *fileTable) get(fd uint32) (Endpoint, bool) {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ep, ok := ft.open[fd]
	return ep, ok
}

func (ft *fileTable) close(fd uint32) bool {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	if _, ok := ft.open[fd]; !ok {
		return false
	}
	delete(ft.open, fd)
	return true
}

func (ft *fileTable) closeAll() {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	ft.open = make(map[uint32]Endpoint)
}

// clone shares the endpoints with the child, the way fork inherits
// open descriptors.
func (ft *fileTable) clone() *fileTable {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	dup := &fileTable{next: ft.next, open: make(map[uint32]Endpoint, len(ft.open))}
	for fd, ep := range ft.open {
		dup.open[fd] = ep
	}
	return dup
}
