// Package fifo implements named byte channels for inter-process
// communication.
//
// A channel queues at most its capacity in bytes. Reads block while
// the channel is open and empty and return 0 bytes only once it is
// closed and drained. Writes block while the queue is full and wake
// exactly one parked reader when data arrives. The Namespace maps
// absolute paths to channels and owns their lifetime.
package fifo
