// Package types provides shared data structures for the kernel.
//
// This package defines the types that cross the boundary between the
// kernel proper and its monitor surface (HTTP API, event stream, state
// dumps), keeping domain packages free of JSON concerns.
//
// Core Types:
//   - ProcessInfo: one execution context
//   - RegionInfo: one mapped virtual region
//   - MemoryStats: physical frame pool counters
//   - ChannelInfo: one named FIFO channel
//   - DeviceInfo: one registered device
//   - KernelSnapshot: full state capture for dumps
//
// Event Types:
//   - Event, EventType: monitor stream payloads
//
// Example Usage:
//
//	ev := types.Event{
//	    ID:        string(id.NewEventID()),
//	    Type:      types.EventProcessCreated,
//	    Timestamp: time.Now(),
//	    Payload:   map[string]interface{}{"pid": pid},
//	}
package types
