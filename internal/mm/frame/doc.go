// Package frame implements the physical page allocator.
//
// Memory is a fixed arena carved into 4 KiB frames at boot. Allocation
// is all-or-nothing: a request for n frames either returns n distinct
// zeroed frames or changes nothing. Every frame carries a reference
// count so copy-on-write sharers and device mappings can hold the same
// frame; Release frees it only when the last reference drops.
package frame
