package syscall

import "strconv"

// Number identifies one syscall at the numeric ABI.
type Number uint32

const (
	SysSleep    Number = 1
	SysYield    Number = 2
	SysExit     Number = 3
	SysLog      Number = 4
	SysMmap     Number = 5
	SysMunmap   Number = 6
	SysMprotect Number = 7
	SysOpen     Number = 8
	SysClose    Number = 9
	SysRead     Number = 10
	SysWrite    Number = 11
	SysClone    Number = 12
	SysMkfifo   Number = 13
)

func (n Number) String() string {
	switch n {
	case SysSleep:
		return "sleep"
	case SysYield:
		return "yield"
	case SysExit:
		return "exit"
	case SysLog:
		return "k_log"
	case SysMmap:
		return "mmap"
	case SysMunmap:
		return "munmap"
	case SysMprotect:
		return "mprotect"
	case SysOpen:
		return "open"
	case SysClose:
		return "close"
	case SysRead:
		return "read"
	case SysWrite:
		return "write"
	case SysClone:
		return "clone"
	case SysMkfifo:
		return "mkfifo"
	default:
		return "sys_" + strconv.FormatUint(uint64(n), 10)
	}
}

// Protection and mapping flag bits for mmap and mprotect.
const (
	ProtRead     uint64 = 0x1
	ProtWrite    uint64 = 0x2
	ProtExec     uint64 = 0x4
	MapAnonymous uint64 = 0x8
)

// MapDefault is the usual anonymous read-write mapping request.
const MapDefault = ProtRead | ProtWrite | MapAnonymous
