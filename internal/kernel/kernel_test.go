package kernel

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/boot"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/syscall"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func newTestKernel(t *testing.T, profile *boot.Profile) *Kernel {
	t.Helper()
	k, err := New(config.Default(), profile, logging.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = k.Shutdown(ctx)
	})
	return k
}

func waitState(t *testing.T, k *Kernel, pid uint32, state types.ProcessState) {
	t.Helper()
	require.Eventually(t, func() bool {
		info, ok := k.Process(pid)
		return ok && info.State == state
	}, waitFor, tick, "pid %d never reached %s", pid, state)
}

func waitExit(t *testing.T, k *Kernel, pid uint32, code int32) {
	t.Helper()
	waitState(t, k, pid, types.StateTerminated)
	info, ok := k.Process(pid)
	require.True(t, ok)
	require.NotNil(t, info.ExitCode)
	assert.Equal(t, code, *info.ExitCode)
}

func TestBootAssemblesMachine(t *testing.T) {
	k := newTestKernel(t, nil)

	assert.True(t, strings.HasPrefix(k.BootID(), "boot_"), "boot id %q", k.BootID())

	devices := k.Devices()
	require.Len(t, devices, 3)
	assert.Equal(t, "/dev/fb", devices[0].Path)
	assert.Equal(t, "/dev/null", devices[1].Path)
	assert.Equal(t, "/dev/ttyS0", devices[2].Path)
	assert.True(t, devices[0].Mappable)
	assert.Equal(t, uint64(768), devices[0].Pages)

	mem := k.MemoryStats()
	assert.Equal(t, uint64(16384), mem.TotalFrames) // 64 MB of 4 KB pages
	assert.Equal(t, uint64(768), mem.UsedFrames)    // framebuffer backing
	assert.Equal(t, 4096, mem.PageSize)

	stats := k.Stats()
	assert.Zero(t, stats.Processes)
	assert.Zero(t, stats.Channels)
}

func TestProfileControlsMachineShape(t *testing.T) {
	profile := &boot.Profile{
		MemoryMB:    8,
		Framebuffer: boot.Framebuffer{Enabled: false},
		Fifos:       []string{"/boot/status"},
	}
	k := newTestKernel(t, profile)

	mem := k.MemoryStats()
	assert.Equal(t, uint64(2048), mem.TotalFrames)
	assert.Zero(t, mem.UsedFrames)

	require.Len(t, k.Devices(), 2) // null and serial only

	channels := k.Channels()
	require.Len(t, channels, 1)
	assert.Equal(t, "/boot/status", channels[0].Name)
}

// A context maps the framebuffer with a zero page count, stores a
// pixel through the mapping, and the device sees it.
func TestFramebufferMappingAndPixel(t *testing.T) {
	k := newTestKernel(t, nil)

	const fbBase = uint64(0x50000000)
	const pixelOff = uint64((5*1024 + 10) * 4) // pixel (10,5) on a 1024-wide screen
	pixel := []byte{0xFF, 0xFF, 0xFF, 0xFF}

	freeAtBoot := k.MemoryStats().FreeFrames

	mapped := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	unlock := func() { once.Do(func() { close(release) }) }
	defer unlock()

	_, err := k.Register("fb-painter", func(ctx *Context) {
		fd, err := ctx.Open("/dev/fb")
		if !assert.NoError(t, err) {
			return
		}
		if !assert.NoError(t, ctx.Mmap(fbBase, 0, syscall.ProtRead|syscall.ProtWrite, fd, 0)) {
			return
		}
		assert.NoError(t, ctx.Poke(fbBase+pixelOff, pixel))
		close(mapped)
		<-release
	})
	require.NoError(t, err)

	pid, err := k.Spawn("fb-painter")
	require.NoError(t, err)

	select {
	case <-mapped:
	case <-time.After(waitFor):
		t.Fatal("framebuffer never mapped")
	}

	// The whole display came out of a zero page count.
	var fbRegion types.RegionInfo
	found := false
	for _, info := range k.Snapshot().Processes {
		if info.PID != pid {
			continue
		}
		for _, r := range info.Regions {
			if r.Base == fbBase {
				fbRegion, found = r, true
			}
		}
	}
	require.True(t, found, "framebuffer region missing from dump")
	assert.Equal(t, uint64(768), fbRegion.Pages)
	assert.Equal(t, "rw-", fbRegion.Perms)
	assert.Equal(t, "device:fb", fbRegion.Backing)

	// Device pages fault in shared: no frames were consumed.
	mem := k.MemoryStats()
	assert.Equal(t, freeAtBoot, mem.FreeFrames)
	assert.GreaterOrEqual(t, mem.SharedFrames, uint64(1))

	// The store is visible through the device itself.
	fb, err := k.devices.Resolve("/dev/fb")
	require.NoError(t, err)
	buf := make([]byte, pixelOff+4)
	n, err := fb.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(buf), n)
	assert.Equal(t, pixel, buf[pixelOff:])
	assert.Equal(t, []byte{0, 0, 0, 0}, buf[:4], "untouched pixels stay zero")

	unlock()
	waitExit(t, k, pid, 0)
	assert.Equal(t, freeAtBoot, k.MemoryStats().FreeFrames)
}

// A parent creates a channel, clones a child that writes into it, and
// blocks reading until the child's bytes arrive.
func TestCloneAndChannelHandoff(t *testing.T) {
	k := newTestKernel(t, nil)

	gate := make(chan struct{})
	var once sync.Once
	open := func() { once.Do(func() { close(gate) }) }
	defer open()

	type outcome struct {
		n   int
		s   string
		err error
	}
	got := make(chan outcome, 1)

	_, err := k.Register("pipe-child", func(ctx *Context) {
		<-gate
		fd, err := ctx.Open("/pipe")
		if !assert.NoError(t, err) {
			return
		}
		n, err := ctx.Write(fd, []byte("OK\n"))
		assert.NoError(t, err)
		assert.Equal(t, 3, n)
		assert.NoError(t, ctx.Close(fd))
	})
	require.NoError(t, err)

	_, err = k.Register("pipe-parent", func(ctx *Context) {
		if !assert.NoError(t, ctx.Mkfifo("/pipe")) {
			return
		}
		entry, err := ctx.Entry("pipe-child")
		if !assert.NoError(t, err) {
			return
		}
		if !assert.NoError(t, ctx.Clone(entry)) {
			return
		}
		fd, err := ctx.Open("/pipe")
		if !assert.NoError(t, err) {
			return
		}
		buf := make([]byte, 3)
		n, err := ctx.Read(fd, buf)
		got <- outcome{n: n, s: string(buf[:n]), err: err}
	})
	require.NoError(t, err)

	parent, err := k.Spawn("pipe-parent")
	require.NoError(t, err)

	// The parent must visibly block on the empty channel before the
	// child is allowed to write.
	require.Eventually(t, func() bool {
		info, ok := k.Process(parent)
		return ok && info.State == types.StateBlocked &&
			info.BlockedOn != nil && *info.BlockedOn == "channel:/pipe"
	}, waitFor, tick)

	open()

	select {
	case res := <-got:
		require.NoError(t, res.err)
		assert.Equal(t, 3, res.n)
		assert.Equal(t, "OK\n", res.s)
	case <-time.After(waitFor):
		t.Fatal("parent read never completed")
	}

	waitExit(t, k, parent, 0)

	var child types.ProcessInfo
	for _, info := range k.Processes() {
		if info.Name == "pipe-child" {
			child = info
		}
	}
	require.NotZero(t, child.PID, "child missing from process table")
	require.NotNil(t, child.ParentPID)
	assert.Equal(t, parent, *child.ParentPID)
	assert.False(t, child.SharedVM)
	waitExit(t, k, child.PID, 0)

	// Both contexts are gone; the channel remains until removed.
	assert.Zero(t, k.Stats().Processes)
	assert.Equal(t, 1, k.Stats().Channels)
}

func TestSleepBlocksOnTimer(t *testing.T) {
	k := newTestKernel(t, nil)

	_, err := k.Register("sleeper", func(ctx *Context) {
		assert.NoError(t, ctx.Sleep(1))
	})
	require.NoError(t, err)

	pid, err := k.Spawn("sleeper")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		info, ok := k.Process(pid)
		return ok && info.State == types.StateBlocked &&
			info.BlockedOn != nil && *info.BlockedOn == "timer"
	}, time.Second, tick)

	require.Eventually(t, func() bool {
		info, ok := k.Process(pid)
		return ok && info.State == types.StateTerminated
	}, 3*time.Second, tick)
}

func TestExitCodeSurvivesInTable(t *testing.T) {
	k := newTestKernel(t, nil)

	_, err := k.Register("quitter", func(ctx *Context) {
		assert.NoError(t, ctx.Log("going down"))
		ctx.Exit(42)
	})
	require.NoError(t, err)

	pid, err := k.Spawn("quitter")
	require.NoError(t, err)
	waitExit(t, k, pid, 42)
}

func TestProgramPanicBecomesFault(t *testing.T) {
	k := newTestKernel(t, nil)

	_, err := k.Register("crasher", func(ctx *Context) {
		panic("wild pointer")
	})
	require.NoError(t, err)

	pid, err := k.Spawn("crasher")
	require.NoError(t, err)
	waitExit(t, k, pid, -1)

	// The kernel survives its contexts.
	_, err = k.Register("survivor", func(ctx *Context) {})
	require.NoError(t, err)
	next, err := k.Spawn("survivor")
	require.NoError(t, err)
	waitExit(t, k, next, 0)
}

func TestShutdownReleasesBlockedReader(t *testing.T) {
	k := newTestKernel(t, nil)

	type outcome struct {
		n   int
		err error
	}
	got := make(chan outcome, 1)

	_, err := k.Register("hanging-reader", func(ctx *Context) {
		if !assert.NoError(t, ctx.Mkfifo("/hang")) {
			return
		}
		fd, err := ctx.Open("/hang")
		if !assert.NoError(t, err) {
			return
		}
		buf := make([]byte, 8)
		n, err := ctx.Read(fd, buf)
		got <- outcome{n: n, err: err}
	})
	require.NoError(t, err)

	pid, err := k.Spawn("hanging-reader")
	require.NoError(t, err)
	waitState(t, k, pid, types.StateBlocked)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, k.Shutdown(ctx))

	select {
	case res := <-got:
		assert.NoError(t, res.err)
		assert.Zero(t, res.n, "closed and drained reads zero bytes")
	case <-time.After(waitFor):
		t.Fatal("blocked reader never released")
	}
	waitExit(t, k, pid, 0)
}

func TestEventStreamCarriesLifecycle(t *testing.T) {
	k := newTestKernel(t, nil)

	subID, ch := k.Events().Subscribe(64)
	defer k.Events().Unsubscribe(subID)

	_, err := k.Register("announcer", func(ctx *Context) {
		assert.NoError(t, ctx.Mkfifo("/evt"))
	})
	require.NoError(t, err)

	pid, err := k.Spawn("announcer")
	require.NoError(t, err)

	want := []types.EventType{
		types.EventProcessCreated,
		types.EventChannelCreated,
		types.EventProcessExited,
	}
	seen := make(map[types.EventType]types.Event)
	deadline := time.After(waitFor)
	for len(seen) < len(want) {
		select {
		case evt := <-ch:
			for _, evtType := range want {
				if evt.Type == evtType {
					seen[evt.Type] = evt
				}
			}
		case <-deadline:
			t.Fatalf("event stream incomplete, saw %v", seen)
		}
	}

	created := seen[types.EventProcessCreated]
	assert.True(t, strings.HasPrefix(created.ID, "evt_"), "event id %q", created.ID)
	assert.Equal(t, pid, created.Payload["pid"])
	assert.Equal(t, "announcer", created.Payload["name"])
	assert.Equal(t, "/evt", seen[types.EventChannelCreated].Payload["name"])
}

func TestSpawnUnknownProgram(t *testing.T) {
	k := newTestKernel(t, nil)

	_, err := k.Spawn("ghost")
	assert.ErrorIs(t, err, ErrNoProgram)
	assert.Zero(t, k.Stats().Processes)
}

func TestCloneUnknownEntryFails(t *testing.T) {
	k := newTestKernel(t, nil)

	errs := make(chan error, 1)
	_, err := k.Register("bad-parent", func(ctx *Context) {
		errs <- ctx.Clone(4096)
	})
	require.NoError(t, err)

	pid, err := k.Spawn("bad-parent")
	require.NoError(t, err)

	select {
	case cloneErr := <-errs:
		assert.ErrorIs(t, cloneErr, syscall.InvalidArgument)
	case <-time.After(waitFor):
		t.Fatal("clone result never arrived")
	}
	waitExit(t, k, pid, 0)
}
