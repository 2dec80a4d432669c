package types

import "time"

// ProcessState represents PCB scheduling states
type ProcessState string

const (
	StateReady      ProcessState = "ready"
	StateRunning    ProcessState = "running"
	StateBlocked    ProcessState = "blocked"
	StateTerminated ProcessState = "terminated"
)

// ProcessInfo describes one execution context for the monitor API
type ProcessInfo struct {
	PID       uint32       `json:"pid"`
	Name      string       `json:"name"`
	State     ProcessState `json:"state"`
	ParentPID *uint32      `json:"parent_pid,omitempty"`
	BlockedOn *string      `json:"blocked_on,omitempty"` // "timer" or "channel:<name>"
	SharedVM  bool         `json:"shared_vm"`
	ExitCode  *int32       `json:"exit_code,omitempty"`
	CreatedAt time.Time    `json:"created_at"`

	// Regions are filled only for state dumps
	Regions []RegionInfo `json:"regions,omitempty"`
}

// RegionInfo describes one mapped virtual region
type RegionInfo struct {
	Base    uint64 `json:"base"`
	Pages   uint64 `json:"pages"`
	Perms   string `json:"perms"`   // "rw-" style
	Backing string `json:"backing"` // "anonymous" or "device:<name>"
}

// MemoryStats describes the physical frame pool
type MemoryStats struct {
	PageSize     int    `json:"page_size"`
	TotalFrames  uint64 `json:"total_frames"`
	FreeFrames   uint64 `json:"free_frames"`
	UsedFrames   uint64 `json:"used_frames"`
	SharedFrames uint64 `json:"shared_frames"` // refcount > 1
}

// ChannelInfo describes one named FIFO channel
type ChannelInfo struct {
	Name           string    `json:"name"`
	Capacity       int       `json:"capacity"`
	Queued         int       `json:"queued"`
	BlockedReaders int       `json:"blocked_readers"`
	BlockedWriters int       `json:"blocked_writers"`
	Closed         bool      `json:"closed"`
	CreatedAt      time.Time `json:"created_at"`
}

// DeviceInfo describes one registered device
type DeviceInfo struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Bytes    uint64 `json:"bytes"`
	Pages    uint64 `json:"pages"`
	Mappable bool   `json:"mappable"`
}

// KernelSnapshot is the full state capture written by the dump path
type KernelSnapshot struct {
	BootID    string        `json:"boot_id"`
	TakenAt   time.Time     `json:"taken_at"`
	Uptime    float64       `json:"uptime_seconds"`
	Memory    MemoryStats   `json:"memory"`
	Processes []ProcessInfo `json:"processes"`
	Channels  []ChannelInfo `json:"channels"`
	Devices   []DeviceInfo  `json:"devices"`
}

// Stats contains kernel-wide statistics for the monitor
type Stats struct {
	Processes int         `json:"processes"`
	Channels  int         `json:"channels"`
	Memory    MemoryStats `json:"memory"`
}
