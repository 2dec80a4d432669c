// Package proc implements the process table.
//
// Each process is a PCB: an address space, a descriptor table, and a
// lifecycle state (Ready, Running, Blocked, Terminated). The Table
// validates every transition and treats Terminated as absorbing; exit
// reclaims the address space and descriptors immediately. Timer
// blocking goes through a Clock so tests can drive it manually.
package proc
