package kernel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/boot"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/dev"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/events"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/ipc/fifo"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/addrspace"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/proc"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/syscall"
)

// Kernel owns every subsystem: the frame pool, the device registry,
// the channel namespace, the process table and the syscall surface.
// Programs run as goroutines that reach all of it through a Context.
type Kernel struct {
	cfg     *config.Config
	profile *boot.Profile
	log     *logging.Logger
	metrics *monitoring.Metrics

	bootID   string
	bootedAt time.Time
	userBase uint64

	alloc    *frame.Allocator
	devices  *dev.Registry
	serial   *dev.Serial
	fb       *dev.Framebuffer
	channels *fifo.Namespace
	procs    *proc.Table
	programs *ProgramRegistry
	bus      *events.Bus
	syscalls *syscall.Dispatcher

	wg sync.WaitGroup
}

// New boots a kernel for the given machine profile. The profile wins
// over config wherever both size the same thing.
func New(cfg *config.Config, profile *boot.Profile, log *logging.Logger) (*Kernel, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if profile == nil {
		profile = boot.Default()
	}
	if log == nil {
		log = logging.NewNop()
	}

	memMB := cfg.Memory.TotalMB
	if profile.MemoryMB > 0 {
		memMB = profile.MemoryMB
	}
	userBase := cfg.Memory.UserBase
	if profile.UserBase > 0 {
		userBase = profile.UserBase
	}

	frames := uint64(memMB) << 20 / frame.PageSize
	alloc, err := frame.New(frames, log)
	if err != nil {
		return nil, fmt.Errorf("frame pool: %w", err)
	}

	k := &Kernel{
		cfg:      cfg,
		profile:  profile,
		log:      log.Named("kernel"),
		bootID:   id.NewBootID().String(),
		bootedAt: time.Now().UTC(),
		userBase: userBase,
		alloc:    alloc,
		devices:  dev.NewRegistry(log),
		programs: NewProgramRegistry(),
		bus:      events.New(log),
	}

	if err := k.attachDevices(log); err != nil {
		return nil, err
	}

	k.channels = fifo.NewNamespace(0, log).WithEvents(k.bus)
	for _, name := range profile.Fifos {
		if _, err := k.channels.Create(name); err != nil {
			return nil, fmt.Errorf("boot channel %q: %w", name, err)
		}
	}

	k.procs = proc.NewTable(proc.RealClock(), dev.NewNull(), log)
	k.syscalls = syscall.NewDispatcher(k.procs, k.channels, k.devices, k, log).WithEvents(k.bus)

	k.log.Info("Kernel booted",
		zap.String("boot_id", k.bootID),
		zap.Int("memory_mb", memMB),
		zap.Uint64("frames", frames),
		zap.Uint64("user_base", userBase),
	)
	k.bus.Publish(types.EventKernelBooted, map[string]interface{}{
		"boot_id":   k.bootID,
		"memory_mb": memMB,
		"frames":    frames,
	})
	return k, nil
}

func (k *Kernel) attachDevices(log *logging.Logger) error {
	if err := k.devices.Register(dev.NewNull()); err != nil {
		return err
	}

	if k.profile.Serial.Pty {
		serial, err := dev.NewSerialPty(log)
		if err != nil {
			k.log.Warn("Pty unavailable, serial console falls back to stdout", zap.Error(err))
			serial = dev.NewSerial()
		}
		k.serial = serial
	} else {
		k.serial = dev.NewSerial()
	}
	if err := k.devices.Register(k.serial); err != nil {
		return err
	}

	if fbCfg := k.profile.Framebuffer; fbCfg.Enabled {
		fb, err := dev.NewFramebuffer(k.alloc, fbCfg.Width, fbCfg.Height, fbCfg.BytesPerPixel, log)
		if err != nil {
			return fmt.Errorf("framebuffer: %w", err)
		}
		if err := k.devices.Register(fb); err != nil {
			return err
		}
		k.fb = fb
	}
	return nil
}

// WithMetrics attaches one collector to every subsystem.
func (k *Kernel) WithMetrics(m *monitoring.Metrics) *Kernel {
	k.metrics = m
	k.alloc.WithMetrics(m)
	k.channels.WithMetrics(m)
	k.procs.WithMetrics(m)
	k.syscalls.WithMetrics(m)
	k.bus.WithMetrics(m)
	return k
}

// Register adds a program that Spawn and clone can start.
func (k *Kernel) Register(name string, prog Program) (uint32, error) {
	return k.programs.Register(name, prog)
}

// Spawn starts a registered program as a fresh root context with an
// empty address space and returns its pid.
func (k *Kernel) Spawn(name string) (uint32, error) {
	entry, err := k.programs.Entry(name)
	if err != nil {
		return 0, err
	}
	_, prog, err := k.programs.Lookup(entry)
	if err != nil {
		return 0, err
	}

	space := addrspace.New(k.alloc, k.userBase, k.log)
	pcb, err := k.procs.Spawn(name, space)
	if err != nil {
		space.Release()
		return 0, err
	}

	k.bus.Publish(types.EventProcessCreated, map[string]interface{}{
		"pid":  pcb.PID,
		"name": name,
	})
	k.launch(pcb.PID, prog)
	return pcb.PID, nil
}

// SpawnChild implements syscall.Spawner: it clones the parent's
// address space copy-on-write and starts the entry program in it.
func (k *Kernel) SpawnChild(parent uint32, entry uint32) (uint32, error) {
	name, prog, err := k.programs.Lookup(entry)
	if err != nil {
		return 0, err
	}
	pcb, err := k.procs.Clone(parent, name, false)
	if err != nil {
		return 0, err
	}

	k.bus.Publish(types.EventProcessCreated, map[string]interface{}{
		"pid":    pcb.PID,
		"name":   name,
		"parent": parent,
	})
	k.launch(pcb.PID, prog)
	return pcb.PID, nil
}

// launch runs prog on its own goroutine. The context ends when prog
// returns, calls Exit, or panics; all three paths reclaim through the
// same idempotent exit.
func (k *Kernel) launch(pid uint32, prog Program) {
	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		defer k.finalize(pid)
		defer func() {
			if r := recover(); r != nil {
				k.log.Error("Context crashed",
					zap.Uint32("pid", pid),
					zap.Any("panic", r),
				)
				_ = k.procs.Exit(pid, -1)
			}
		}()

		if err := k.procs.MarkRunning(pid); err != nil {
			return
		}
		prog(&Context{PID: pid, k: k})
	}()
}

func (k *Kernel) finalize(pid uint32) {
	_ = k.procs.Exit(pid, 0)

	payload := map[string]interface{}{"pid": pid}
	if info, ok := k.procs.Get(pid); ok && info.ExitCode != nil {
		payload["code"] = *info.ExitCode
	}
	k.bus.Publish(types.EventProcessExited, payload)
}

// Shutdown closes every channel to release blocked contexts, waits for
// running programs within ctx's deadline, then halts the event stream
// and the serial console.
func (k *Kernel) Shutdown(ctx context.Context) error {
	k.log.Info("Kernel shutting down", zap.Int("contexts", k.procs.Count()))
	k.channels.CloseAll()

	done := make(chan struct{})
	go func() {
		k.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("shutdown timed out with %d contexts running", k.procs.Count())
		k.log.Warn("Contexts still running at shutdown", zap.Int("count", k.procs.Count()))
	}

	k.bus.Publish(types.EventKernelShutdown, map[string]interface{}{
		"boot_id":        k.bootID,
		"uptime_seconds": k.Uptime().Seconds(),
	})
	k.bus.Close()
	if cerr := k.serial.Close(); cerr != nil && err == nil {
		err = cerr
	}
	k.log.Info("Kernel halted", zap.Duration("uptime", k.Uptime()))
	return err
}

// BootID identifies this boot on dumps and the event stream.
func (k *Kernel) BootID() string { return k.bootID }

// Uptime reports time since boot.
func (k *Kernel) Uptime() time.Duration { return time.Since(k.bootedAt) }

// Events exposes the lifecycle event bus.
func (k *Kernel) Events() *events.Bus { return k.bus }

// Syscall invokes a raw syscall on behalf of pid, for diagnostics.
func (k *Kernel) Syscall(pid uint32, num syscall.Number, args ...uint64) int64 {
	return k.syscalls.Invoke(pid, num, args...)
}

// MemoryStats reports the physical frame pool.
func (k *Kernel) MemoryStats() types.MemoryStats {
	s := k.alloc.Stats()
	return types.MemoryStats{
		PageSize:     frame.PageSize,
		TotalFrames:  s.Total,
		FreeFrames:   s.Free,
		UsedFrames:   s.Used,
		SharedFrames: s.Shared,
	}
}

// Processes lists every context the table still knows.
func (k *Kernel) Processes() []types.ProcessInfo { return k.procs.List() }

// Process fetches one context by pid.
func (k *Kernel) Process(pid uint32) (types.ProcessInfo, bool) { return k.procs.Get(pid) }

// Channels lists every named channel.
func (k *Kernel) Channels() []types.ChannelInfo { return k.channels.List() }

// Devices lists every registered device.
func (k *Kernel) Devices() []types.DeviceInfo { return k.devices.List() }

// Stats summarizes the kernel for the monitor's health endpoint.
func (k *Kernel) Stats() types.Stats {
	return types.Stats{
		Processes: k.procs.Count(),
		Channels:  k.channels.Count(),
		Memory:    k.MemoryStats(),
	}
}

// Snapshot captures the full kernel state for dumps.
func (k *Kernel) Snapshot() types.KernelSnapshot {
	return types.KernelSnapshot{
		BootID:    k.bootID,
		TakenAt:   time.Now().UTC(),
		Uptime:    k.Uptime().Seconds(),
		Memory:    k.MemoryStats(),
		Processes: k.procs.Dump(),
		Channels:  k.channels.List(),
		Devices:   k.devices.List(),
	}
}
