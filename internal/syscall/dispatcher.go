package syscall

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/dev"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/events"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/ipc/fifo"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/region"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/proc"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

const (
	maxPathLen = 4096
	maxLogLen  = 4096
	maxIOSize  = 1 << 20

	maxSleepSeconds = math.MaxInt64 / int64(time.Second)
)

// Spawner launches a cloned context running a registered program.
// entry is a program ID; the child starts there and never returns
// through the caller.
type Spawner interface {
	SpawnChild(parent uint32, entry uint32) (uint32, error)
}

// Dispatcher is the numeric syscall surface. Every call carries the
// calling PID; addresses in the arguments resolve through that
// process's own address space.
type Dispatcher struct {
	procs    *proc.Table
	channels *fifo.Namespace
	devices  *dev.Registry
	spawner  Spawner
	log      *logging.Logger
	klog     *logging.Logger
	metrics  *monitoring.Metrics
	events   *events.Bus
}

func NewDispatcher(procs *proc.Table, channels *fifo.Namespace, devices *dev.Registry, spawner Spawner, log *logging.Logger) *Dispatcher {
	if log == nil {
		log = logging.NewNop()
	}
	return &Dispatcher{
		procs:    procs,
		channels: channels,
		devices:  devices,
		spawner:  spawner,
		log:      log.Named("syscall"),
		klog:     log.Named("klog"),
	}
}

// WithMetrics attaches metrics collection
func (d *Dispatcher) WithMetrics(m *monitoring.Metrics) *Dispatcher {
	d.metrics = m
	return d
}

// WithEvents publishes mapping and blocking transitions to bus.
func (d *Dispatcher) WithEvents(bus *events.Bus) *Dispatcher {
	d.events = bus
	return d
}

func (d *Dispatcher) publish(t types.EventType, payload map[string]interface{}) {
	if d.events != nil {
		d.events.Publish(t, payload)
	}
}

// Invoke runs one syscall for pid. The result is signed: negative
// values are Errno codes, anything else is the success value.
func (d *Dispatcher) Invoke(pid uint32, num Number, args ...uint64) int64 {
	start := time.Now()
	result := d.dispatch(pid, num, args)

	if d.metrics != nil {
		outcome := "ok"
		if result < 0 {
			outcome = Errno(result).String()
			d.metrics.RecordSyscallError(num.String(), outcome)
		}
		d.metrics.RecordSyscall(num.String(), outcome, time.Since(start))
	}
	d.log.Debug("syscall",
		zap.Uint32("pid", pid),
		zap.String("num", num.String()),
		zap.Int64("result", result))
	return result
}

func (d *Dispatcher) dispatch(pid uint32, num Number, args []uint64) int64 {
	switch num {
	case SysSleep:
		return d.sysSleep(pid, int64(arg(args, 0)))
	case SysYield:
		return errnoResult(d.procs.Yield(pid))
	case SysExit:
		return errnoResult(d.procs.Exit(pid, int32(arg(args, 0))))
	case SysLog:
		return d.sysLog(pid, arg(args, 0), arg(args, 1))
	case SysMmap:
		return d.sysMmap(pid, arg(args, 0), arg(args, 1), arg(args, 2), arg(args, 3), arg(args, 4))
	case SysMunmap:
		return d.sysMunmap(pid, arg(args, 0), arg(args, 1))
	case SysMprotect:
		return d.sysMprotect(pid, arg(args, 0), arg(args, 1), arg(args, 2))
	case SysOpen:
		return d.sysOpen(pid, arg(args, 0), arg(args, 1))
	case SysClose:
		return d.sysClose(pid, arg(args, 0))
	case SysRead:
		return d.sysRead(pid, arg(args, 0), arg(args, 1), arg(args, 2))
	case SysWrite:
		return d.sysWrite(pid, arg(args, 0), arg(args, 1), arg(args, 2))
	case SysClone:
		return d.sysClone(pid, arg(args, 0))
	case SysMkfifo:
		return d.sysMkfifo(pid, arg(args, 0), arg(args, 1))
	default:
		return int64(NoSys)
	}
}

func arg(args []uint64, i int) uint64 {
	if i < len(args) {
		return args[i]
	}
	return 0
}

func errnoResult(err error) int64 {
	return int64(Translate(err))
}

func (d *Dispatcher) sysSleep(pid uint32, seconds int64) int64 {
	if seconds < 0 || seconds > maxSleepSeconds {
		return int64(InvalidArgument)
	}
	return errnoResult(d.procs.Sleep(pid, time.Duration(seconds)*time.Second))
}

func (d *Dispatcher) sysLog(pid uint32, ptr, n uint64) int64 {
	if n == 0 || n > maxLogLen {
		return int64(InvalidArgument)
	}
	msg, errno := d.readString(pid, ptr, n)
	if errno != OK {
		return int64(errno)
	}
	d.klog.Info(msg, zap.Uint32("pid", pid))
	return 0
}

func (d *Dispatcher) sysMmap(pid uint32, hint, pages, flags, handle, offset uint64) int64 {
	space, err := d.procs.Space(pid)
	if err != nil {
		return errnoResult(err)
	}

	perms := region.Perm(flags & (ProtRead | ProtWrite | ProtExec))
	var backing region.Backing
	if flags&MapAnonymous != 0 && handle < 3 {
		backing = region.Anon()
	} else {
		if handle > math.MaxUint32 {
			return int64(BadHandle)
		}
		ep, err := d.procs.File(pid, uint32(handle))
		if err != nil {
			return errnoResult(err)
		}
		src, ok := ep.(region.Source)
		if !ok {
			// The handle works for I/O but has no mappable memory.
			return int64(InvalidArgument)
		}
		backing = region.FromSource(src, offset)
	}

	base, err := space.Map(hint, pages, perms, backing)
	if err != nil {
		return errnoResult(err)
	}
	d.publish(types.EventRegionMapped, map[string]interface{}{
		"pid":   pid,
		"base":  base,
		"pages": pages,
	})
	return 0
}

func (d *Dispatcher) sysMunmap(pid uint32, addr, pages uint64) int64 {
	space, err := d.procs.Space(pid)
	if err != nil {
		return errnoResult(err)
	}
	if err := space.Unmap(addr, pages); err != nil {
		return errnoResult(err)
	}
	d.publish(types.EventRegionUnmapped, map[string]interface{}{
		"pid":   pid,
		"base":  addr,
		"pages": pages,
	})
	return 0
}

func (d *Dispatcher) sysMprotect(pid uint32, addr, pages, flags uint64) int64 {
	space, err := d.procs.Space(pid)
	if err != nil {
		return errnoResult(err)
	}
	perms := region.Perm(flags & (ProtRead | ProtWrite | ProtExec))
	return errnoResult(space.Protect(addr, pages, perms))
}

func (d *Dispatcher) sysOpen(pid uint32, ptr, n uint64) int64 {
	path, errno := d.readPath(pid, ptr, n)
	if errno != OK {
		return int64(errno)
	}

	var ep proc.Endpoint
	if device, err := d.devices.Resolve(path); err == nil {
		ep = device
	} else if ch, err := d.channels.Lookup(path); err == nil {
		ep = ch
	} else {
		return int64(NoEntry)
	}

	fd, err := d.procs.InstallFile(pid, ep)
	if err != nil {
		return errnoResult(err)
	}
	return int64(fd)
}

func (d *Dispatcher) sysClose(pid uint32, handle uint64) int64 {
	if handle > math.MaxUint32 {
		return int64(BadHandle)
	}
	return errnoResult(d.procs.CloseFile(pid, uint32(handle)))
}

func (d *Dispatcher) sysRead(pid uint32, handle, ptr, n uint64) int64 {
	if handle > math.MaxUint32 {
		return int64(BadHandle)
	}
	if n > maxIOSize {
		return int64(InvalidArgument)
	}
	ep, err := d.procs.File(pid, uint32(handle))
	if err != nil {
		return errnoResult(err)
	}
	if n == 0 {
		return 0
	}
	space, err := d.procs.Space(pid)
	if err != nil {
		return errnoResult(err)
	}
	// The destination must be writable before the read can block.
	if err := space.Check(ptr, n, true); err != nil {
		return errnoResult(err)
	}

	buf := make([]byte, n)
	read, err := d.blockingIO(pid, ep, func() (int, error) { return ep.Read(buf) })
	if err != nil {
		return errnoResult(err)
	}
	if err := space.WriteAt(buf[:read], ptr); err != nil {
		return errnoResult(err)
	}
	return int64(read)
}

func (d *Dispatcher) sysWrite(pid uint32, handle, ptr, n uint64) int64 {
	if handle > math.MaxUint32 {
		return int64(BadHandle)
	}
	if n > maxIOSize {
		return int64(InvalidArgument)
	}
	ep, err := d.procs.File(pid, uint32(handle))
	if err != nil {
		return errnoResult(err)
	}
	if n == 0 {
		return 0
	}
	space, err := d.procs.Space(pid)
	if err != nil {
		return errnoResult(err)
	}

	buf := make([]byte, n)
	if err := space.ReadAt(buf, ptr); err != nil {
		return errnoResult(err)
	}
	written, err := d.blockingIO(pid, ep, func() (int, error) { return ep.Write(buf) })
	if written > 0 {
		// Progress before a close still counts.
		return int64(written)
	}
	if err != nil {
		return errnoResult(err)
	}
	return 0
}

func (d *Dispatcher) sysClone(pid uint32, entry uint64) int64 {
	if d.spawner == nil {
		return int64(NoSys)
	}
	if entry > math.MaxUint32 {
		return int64(InvalidArgument)
	}
	if _, err := d.spawner.SpawnChild(pid, uint32(entry)); err != nil {
		return errnoResult(err)
	}
	return 0
}

func (d *Dispatcher) sysMkfifo(pid uint32, ptr, n uint64) int64 {
	path, errno := d.readPath(pid, ptr, n)
	if errno != OK {
		return int64(errno)
	}
	if _, err := d.channels.Create(path); err != nil {
		return errnoResult(err)
	}
	return 0
}

// blockingIO runs op with Blocked bookkeeping when the endpoint is a
// channel, so the monitor sees what the context waits on.
func (d *Dispatcher) blockingIO(pid uint32, ep proc.Endpoint, op func() (int, error)) (int, error) {
	marked := false
	if ch, ok := ep.(*fifo.Fifo); ok {
		on := "channel:" + ch.Name()
		if marked = d.procs.Block(pid, on) == nil; marked {
			d.publish(types.EventProcessStateChanged, map[string]interface{}{
				"pid":   pid,
				"state": string(types.StateBlocked),
				"on":    on,
			})
		}
	}
	n, err := op()
	if marked {
		if werr := d.procs.Wake(pid); werr == nil {
			_ = d.procs.MarkRunning(pid)
			d.publish(types.EventProcessStateChanged, map[string]interface{}{
				"pid":   pid,
				"state": string(types.StateRunning),
			})
		}
	}
	return n, err
}

func (d *Dispatcher) readPath(pid uint32, ptr, n uint64) (string, Errno) {
	if n == 0 || n > maxPathLen {
		return "", InvalidArgument
	}
	return d.readString(pid, ptr, n)
}

func (d *Dispatcher) readString(pid uint32, ptr, n uint64) (string, Errno) {
	space, err := d.procs.Space(pid)
	if err != nil {
		return "", Translate(err)
	}
	buf := make([]byte, n)
	if err := space.ReadAt(buf, ptr); err != nil {
		return "", Translate(err)
	}
	return string(buf), OK
}
