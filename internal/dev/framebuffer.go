package dev

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/region"
)

// Framebuffer exposes a linear pixel buffer. Its frames come from the
// physical allocator at boot and the device keeps a reference to each
// for as long as the kernel runs, so mappings come and go without the
// pixels moving.
type Framebuffer struct {
	width  int
	height int
	bpp    int
	bytes  uint64
	alloc  *frame.Allocator
	frames []frame.Frame
}

func NewFramebuffer(alloc *frame.Allocator, width, height, bpp int, log *logging.Logger) (*Framebuffer, error) {
	if width <= 0 || height <= 0 || bpp <= 0 {
		return nil, fmt.Errorf("framebuffer %dx%dx%d: invalid geometry", width, height, bpp)
	}
	bytes := uint64(width) * uint64(height) * uint64(bpp)
	pages := (bytes + frame.PageSize - 1) / frame.PageSize

	frames, err := alloc.Allocate(int(pages))
	if err != nil {
		return nil, fmt.Errorf("framebuffer %dx%dx%d: %w", width, height, bpp, err)
	}
	if log != nil {
		log.Info("framebuffer ready",
			zap.Int("width", width),
			zap.Int("height", height),
			zap.Int("bpp", bpp),
			zap.Uint64("pages", pages))
	}
	return &Framebuffer{
		width:  width,
		height: height,
		bpp:    bpp,
		bytes:  bytes,
		alloc:  alloc,
		frames: frames,
	}, nil
}

func (fb *Framebuffer) Name() string { return "fb" }
func (fb *Framebuffer) Path() string { return "/dev/fb" }

func (fb *Framebuffer) Width() int         { return fb.width }
func (fb *Framebuffer) Height() int        { return fb.height }
func (fb *Framebuffer) BytesPerPixel() int { return fb.bpp }

func (fb *Framebuffer) DeviceName() string { return "fb" }
func (fb *Framebuffer) ByteSize() uint64   { return fb.bytes }

// Capability allows reading and writing pixels, never execution.
func (fb *Framebuffer) Capability() region.Perm { return region.RW }

func (fb *Framebuffer) ResolvePage(pageIdx uint64) (frame.Frame, error) {
	if pageIdx >= uint64(len(fb.frames)) {
		return 0, fmt.Errorf("framebuffer page %d beyond %d", pageIdx, len(fb.frames))
	}
	return fb.frames[pageIdx], nil
}

// Read copies pixel memory from the start of the buffer. Mapping the
// device is the fast path; descriptor reads exist for probing.
func (fb *Framebuffer) Read(p []byte) (int, error) {
	n := len(p)
	if uint64(n) > fb.bytes {
		n = int(fb.bytes)
	}
	fb.copyOut(p[:n])
	return n, nil
}

// Write stores pixels at the start of the buffer.
func (fb *Framebuffer) Write(p []byte) (int, error) {
	n := len(p)
	if uint64(n) > fb.bytes {
		n = int(fb.bytes)
	}
	fb.copyIn(p[:n])
	return n, nil
}

func (fb *Framebuffer) copyOut(p []byte) {
	off := 0
	for off < len(p) {
		data := fb.alloc.Data(fb.frames[off/frame.PageSize])
		off += copy(p[off:], data[off%frame.PageSize:])
	}
}

func (fb *Framebuffer) copyIn(p []byte) {
	off := 0
	for off < len(p) {
		data := fb.alloc.Data(fb.frames[off/frame.PageSize])
		off += copy(data[off%frame.PageSize:], p[off:])
	}
}
