// Package kernel assembles the subsystems into a bootable machine and
// runs programs against it.
//
// A program is a Go function handed a Context, which is the only way
// in: every Context helper funnels through the numeric syscall
// dispatcher with the context's PID, so programs observe exactly the
// semantics a raw caller would. Contexts run on goroutines; clone
// starts a child at a registered program entry with a copy-on-write
// image of the parent's address space.
//
// The kernel also carries the monitor surface: snapshots, statistics
// and the lifecycle event bus the diagnostics server streams from.
package kernel
