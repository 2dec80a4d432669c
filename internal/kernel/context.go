package kernel

import (
	"runtime"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/syscall"
)

// Staging slots sit well above the default placement range so program
// mappings and syscall argument buffers never collide. Each context
// gets its own slot, sized for the largest single I/O transfer.
const (
	scratchOffset uint64 = 768 << 20
	scratchStride uint64 = 2 << 20
)

// Context is a program's window into the kernel. Every helper goes
// through the numeric syscall surface with the context's own PID, so
// typed and raw callers observe identical semantics.
//
// A context belongs to exactly one goroutine; the helpers are not safe
// for concurrent use within one context.
type Context struct {
	// PID identifies this execution context in the process table.
	PID uint32

	k *Kernel
}

// Invoke runs a raw numeric syscall. Negative results are errno codes.
func (c *Context) Invoke(num syscall.Number, args ...uint64) int64 {
	return c.k.syscalls.Invoke(c.PID, num, args...)
}

func toErr(res int64) error {
	if res < 0 {
		return syscall.Errno(res)
	}
	return nil
}

// Sleep blocks the context for a whole number of seconds.
func (c *Context) Sleep(seconds uint64) error {
	return toErr(c.Invoke(syscall.SysSleep, seconds))
}

// Yield gives other runnable contexts a turn.
func (c *Context) Yield() error {
	return toErr(c.Invoke(syscall.SysYield))
}

// Exit terminates the context with code and does not return.
func (c *Context) Exit(code int32) {
	c.Invoke(syscall.SysExit, uint64(uint32(code)))
	runtime.Goexit()
}

// Log writes a line to the kernel log.
func (c *Context) Log(msg string) error {
	if msg == "" {
		return syscall.InvalidArgument
	}
	addr, pages, err := c.stageBytes([]byte(msg))
	if err != nil {
		return err
	}
	defer c.unstage(addr, pages)
	return toErr(c.Invoke(syscall.SysLog, addr, uint64(len(msg))))
}

// Mmap maps pages at addr. A zero page count derives the extent from
// the mapped device; handle is ignored for anonymous mappings.
func (c *Context) Mmap(addr, pages, flags uint64, handle uint32, offset uint64) error {
	return toErr(c.Invoke(syscall.SysMmap, addr, pages, flags, uint64(handle), offset))
}

// Munmap removes pages starting at addr.
func (c *Context) Munmap(addr, pages uint64) error {
	return toErr(c.Invoke(syscall.SysMunmap, addr, pages))
}

// Mprotect changes the permissions of an exactly covered range.
func (c *Context) Mprotect(addr, pages, flags uint64) error {
	return toErr(c.Invoke(syscall.SysMprotect, addr, pages, flags))
}

// Open resolves a device or channel path to a descriptor.
func (c *Context) Open(path string) (uint32, error) {
	addr, pages, err := c.stageBytes([]byte(path))
	if err != nil {
		return 0, err
	}
	defer c.unstage(addr, pages)

	res := c.Invoke(syscall.SysOpen, addr, uint64(len(path)))
	if res < 0 {
		return 0, syscall.Errno(res)
	}
	return uint32(res), nil
}

// Close releases a descriptor.
func (c *Context) Close(fd uint32) error {
	return toErr(c.Invoke(syscall.SysClose, uint64(fd)))
}

// Read fills p from a descriptor, blocking on empty channels. It
// returns 0 bytes only when the endpoint is closed and drained.
func (c *Context) Read(fd uint32, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, toErr(c.Invoke(syscall.SysRead, uint64(fd), 0, 0))
	}
	addr, pages, err := c.stage(uint64(len(p)))
	if err != nil {
		return 0, err
	}
	defer c.unstage(addr, pages)

	res := c.Invoke(syscall.SysRead, uint64(fd), addr, uint64(len(p)))
	if res < 0 {
		return 0, syscall.Errno(res)
	}
	if err := c.Peek(addr, p[:res]); err != nil {
		return 0, err
	}
	return int(res), nil
}

// Write sends p to a descriptor, blocking while a channel is full.
func (c *Context) Write(fd uint32, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, toErr(c.Invoke(syscall.SysWrite, uint64(fd), 0, 0))
	}
	addr, pages, err := c.stageBytes(p)
	if err != nil {
		return 0, err
	}
	defer c.unstage(addr, pages)

	res := c.Invoke(syscall.SysWrite, uint64(fd), addr, uint64(len(p)))
	if res < 0 {
		return 0, syscall.Errno(res)
	}
	return int(res), nil
}

// Mkfifo creates a named channel at an absolute path.
func (c *Context) Mkfifo(path string) error {
	addr, pages, err := c.stageBytes([]byte(path))
	if err != nil {
		return err
	}
	defer c.unstage(addr, pages)
	return toErr(c.Invoke(syscall.SysMkfifo, addr, uint64(len(path))))
}

// Clone starts a child context at a registered program entry. The
// child gets a copy-on-write image of this context's address space.
func (c *Context) Clone(entry uint32) error {
	return toErr(c.Invoke(syscall.SysClone, uint64(entry)))
}

// Entry resolves a registered program name to its clone entry id.
func (c *Context) Entry(name string) (uint32, error) {
	return c.k.programs.Entry(name)
}

// Peek copies from the context's memory into p, like a load.
func (c *Context) Peek(addr uint64, p []byte) error {
	space, err := c.k.procs.Space(c.PID)
	if err != nil {
		return err
	}
	return space.ReadAt(p, addr)
}

// Poke copies p into the context's memory, like a store.
func (c *Context) Poke(addr uint64, p []byte) error {
	space, err := c.k.procs.Space(c.PID)
	if err != nil {
		return err
	}
	return space.WriteAt(p, addr)
}

// stage maps the context's staging slot with room for n bytes. Helpers
// that pass pointer arguments park them here for the call's duration.
func (c *Context) stage(n uint64) (uint64, uint64, error) {
	pages := (n + frame.PageSize - 1) / frame.PageSize
	if pages == 0 {
		pages = 1
	}
	addr := c.k.userBase + scratchOffset + uint64(c.PID)*scratchStride
	flags := syscall.ProtRead | syscall.ProtWrite | syscall.MapAnonymous
	if err := toErr(c.Invoke(syscall.SysMmap, addr, pages, flags, 0, 0)); err != nil {
		return 0, 0, err
	}
	return addr, pages, nil
}

func (c *Context) stageBytes(data []byte) (uint64, uint64, error) {
	addr, pages, err := c.stage(uint64(len(data)))
	if err != nil {
		return 0, 0, err
	}
	if err := c.Poke(addr, data); err != nil {
		c.unstage(addr, pages)
		return 0, 0, err
	}
	return addr, pages, nil
}

func (c *Context) unstage(addr, pages uint64) {
	_ = c.Invoke(syscall.SysMunmap, addr, pages)
}
