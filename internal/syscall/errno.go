package syscall

import (
	"errors"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/dev"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/ipc/fifo"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/addrspace"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/frame"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/mm/region"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/proc"
)

// Errno is the numeric failure code carried in a syscall result.
// Results are signed: zero or positive means success, negative is one
// of these codes.
type Errno int32

const (
	OK               Errno = 0
	NoSys            Errno = -1
	InvalidArgument  Errno = -2
	AddressInUse     Errno = -3
	OutOfMemory      Errno = -4
	NotMapped        Errno = -5
	PermissionDenied Errno = -6
	AlreadyExists    Errno = -7
	BadHandle        Errno = -8
	Closed           Errno = -9
	NoEntry          Errno = -10
)

// Error lets negative codes travel as Go errors on typed wrappers.
func (e Errno) Error() string {
	return e.String()
}

func (e Errno) String() string {
	switch e {
	case OK:
		return "ok"
	case NoSys:
		return "nosys"
	case InvalidArgument:
		return "invalid_argument"
	case AddressInUse:
		return "address_in_use"
	case OutOfMemory:
		return "out_of_memory"
	case NotMapped:
		return "not_mapped"
	case PermissionDenied:
		return "permission_denied"
	case AlreadyExists:
		return "already_exists"
	case BadHandle:
		return "bad_handle"
	case Closed:
		return "closed"
	case NoEntry:
		return "no_entry"
	default:
		return "unknown"
	}
}

// Translate maps a domain error onto its errno. Unknown errors come
// out as InvalidArgument.
func Translate(err error) Errno {
	switch {
	case err == nil:
		return OK
	case errors.Is(err, frame.ErrOutOfMemory):
		return OutOfMemory
	case errors.Is(err, region.ErrOverlap):
		return AddressInUse
	case errors.Is(err, region.ErrNotMapped):
		return NotMapped
	case errors.Is(err, region.ErrInvalidRegion):
		return InvalidArgument
	case errors.Is(err, addrspace.ErrPermission):
		return PermissionDenied
	case errors.Is(err, proc.ErrBadHandle):
		return BadHandle
	case errors.Is(err, proc.ErrNoSuchProcess):
		return NoEntry
	case errors.Is(err, fifo.ErrExists), errors.Is(err, dev.ErrExists):
		return AlreadyExists
	case errors.Is(err, fifo.ErrNotFound), errors.Is(err, dev.ErrNotFound):
		return NoEntry
	case errors.Is(err, fifo.ErrClosed):
		return Closed
	default:
		return InvalidArgument
	}
}
