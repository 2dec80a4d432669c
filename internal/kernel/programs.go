package kernel

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoProgram means an entry id or name resolves to nothing.
var ErrNoProgram = errors.New("no such program")

// Program is the code a context executes. It runs on its own goroutine
// with ctx as its only window into the kernel; returning ends the
// context with exit code 0.
type Program func(ctx *Context)

type registration struct {
	name string
	prog Program
}

// ProgramRegistry assigns stable entry ids to named programs so clone
// can name its child's starting point with a plain integer.
type ProgramRegistry struct {
	mu      sync.RWMutex
	byEntry map[uint32]registration
	byName  map[string]uint32
	next    uint32
}

// NewProgramRegistry creates an empty registry. Entry ids start at 1;
// 0 always resolves to nothing.
func NewProgramRegistry() *ProgramRegistry {
	return &ProgramRegistry{
		byEntry: make(map[uint32]registration),
		byName:  make(map[string]uint32),
		next:    1,
	}
}

// Register adds a program under name and returns its entry id.
// Registering a taken name fails.
func (r *ProgramRegistry) Register(name string, prog Program) (uint32, error) {
	if name == "" || prog == nil {
		return 0, fmt.Errorf("program needs a name and a body: %w", ErrNoProgram)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byName[name]; ok {
		return 0, fmt.Errorf("program %q already registered", name)
	}
	entry := r.next
	r.next++
	r.byEntry[entry] = registration{name: name, prog: prog}
	r.byName[name] = entry
	return entry, nil
}

// Lookup resolves an entry id to its name and program.
func (r *ProgramRegistry) Lookup(entry uint32) (string, Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.byEntry[entry]
	if !ok {
		return "", nil, fmt.Errorf("entry %d: %w", entry, ErrNoProgram)
	}
	return reg.name, reg.prog, nil
}

// Entry resolves a program name to its entry id.
func (r *ProgramRegistry) Entry(name string) (uint32, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.byName[name]
	if !ok {
		return 0, fmt.Errorf("program %q: %w", name, ErrNoProgram)
	}
	return entry, nil
}
