// Package syscall implements the numeric syscall surface.
//
// The Dispatcher resolves the calling process, validates arguments,
// and routes into the memory, process, channel, and device layers.
// Results are signed: zero or positive is the success value, negative
// is an Errno. Buffer and path arguments are addresses in the caller's
// own address space and every access through them is permission
// checked.
package syscall
