// Package diag captures kernel state to disk.
//
// A dump is one KernelSnapshot serialized to JSON and compressed with
// zstd, named after a fresh dump id so captures never collide. Dumps
// are the offline counterpart of the live monitor API.
package diag
