// Package addrspace implements per-process virtual address spaces.
//
// A Space combines a region table (what ranges are mapped, with which
// permissions and backing) with a page table (which virtual pages hold
// which physical frames). Anonymous mappings are populated eagerly with
// zeroed frames; device mappings resolve their frames lazily on first
// access. Fork produces a copy-on-write twin: both sides share frames
// until one writes, at which point the writer gets a private copy.
//
// All user memory access from the kernel goes through ReadAt and
// WriteAt, which validate the whole range against the region table
// before moving a single byte.
package addrspace
