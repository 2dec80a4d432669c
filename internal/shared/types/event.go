package types

import "time"

// EventType classifies kernel events on the monitor stream
type EventType string

const (
	EventProcessCreated      EventType = "process.created"
	EventProcessStateChanged EventType = "process.state_changed"
	EventProcessExited       EventType = "process.exited"
	EventRegionMapped        EventType = "region.mapped"
	EventRegionUnmapped      EventType = "region.unmapped"
	EventChannelCreated      EventType = "channel.created"
	EventChannelRemoved      EventType = "channel.removed"
	EventKernelBooted        EventType = "kernel.booted"
	EventKernelShutdown      EventType = "kernel.shutdown"
)

// Event is one kernel lifecycle event
type Event struct {
	ID        string                 `json:"id"` // evt_<ulid>
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}
