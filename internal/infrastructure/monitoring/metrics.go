package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Syscall metrics
	SyscallsTotal   *prometheus.CounterVec
	SyscallDuration *prometheus.HistogramVec
	SyscallErrors   *prometheus.CounterVec

	// Physical memory metrics
	FramesFree    prometheus.Gauge
	FramesUsed    prometheus.Gauge
	CowCopies     prometheus.Counter
	PageFaults    *prometheus.CounterVec
	AllocFailures prometheus.Counter

	// Process metrics
	ProcessesByState *prometheus.GaugeVec
	ProcessesTotal   prometheus.Counter

	// Channel metrics
	ChannelsActive prometheus.Gauge
	ChannelBytes   *prometheus.CounterVec
	BlockedParties *prometheus.GaugeVec

	// Monitor HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Event stream metrics
	WSConnections   prometheus.Gauge
	EventsPublished *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalSyscalls   int64
	TotalErrors     int64
	ActiveProcesses int64
	FreeFrames      int64
	UsedFrames      int64
	ActiveChannels  int64
	TotalDuration   float64 // sum of all syscall durations
	SyscallCount    int64   // count for averaging
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		// Syscall metrics
		SyscallsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscalls_total",
				Help: "Total number of syscalls dispatched",
			},
			[]string{"syscall", "result"},
		),
		SyscallDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_syscall_duration_seconds",
				Help:    "Syscall duration in seconds",
				Buckets: []float64{.000001, .00001, .0001, .001, .01, .1, 1, 10},
			},
			[]string{"syscall"},
		),
		SyscallErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_syscall_errors_total",
				Help: "Total number of syscall failures",
			},
			[]string{"syscall", "errno"},
		),

		// Physical memory metrics
		FramesFree: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_frames_free",
				Help: "Number of free physical page frames",
			},
		),
		FramesUsed: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_frames_used",
				Help: "Number of allocated physical page frames",
			},
		),
		CowCopies: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_cow_copies_total",
				Help: "Total number of copy-on-write frame duplications",
			},
		),
		PageFaults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_page_faults_total",
				Help: "Total number of resolved page faults",
			},
			[]string{"kind"},
		),
		AllocFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_alloc_failures_total",
				Help: "Total number of frame allocation failures",
			},
		),

		// Process metrics
		ProcessesByState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kernel_processes",
				Help: "Number of processes by scheduling state",
			},
			[]string{"state"},
		),
		ProcessesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "kernel_processes_total",
				Help: "Total number of processes created",
			},
		),

		// Channel metrics
		ChannelsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_channels_active",
				Help: "Number of live FIFO channels",
			},
		),
		ChannelBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_channel_bytes_total",
				Help: "Total bytes moved through FIFO channels",
			},
			[]string{"direction"},
		),
		BlockedParties: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "kernel_channel_blocked",
				Help: "Contexts currently blocked on FIFO channels",
			},
			[]string{"side"},
		),

		// Monitor HTTP metrics
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_monitor_requests_total",
				Help: "Total number of monitor HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "kernel_monitor_request_duration_seconds",
				Help:    "Monitor HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		// Event stream metrics
		WSConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_ws_connections",
				Help: "Number of active event stream connections",
			},
		),
		EventsPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "kernel_events_published_total",
				Help: "Total number of kernel events published",
			},
			[]string{"type"},
		),

		// System metrics
		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "kernel_uptime_seconds",
				Help: "Kernel uptime in seconds",
			},
		),
	}

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime continuously updates the uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}

// RecordSyscall records one dispatched syscall and its outcome
func (m *Metrics) RecordSyscall(name, result string, duration time.Duration) {
	m.SyscallsTotal.WithLabelValues(name, result).Inc()
	m.SyscallDuration.WithLabelValues(name).Observe(duration.Seconds())

	// Update snapshot
	m.mu.Lock()
	m.snapshot.TotalSyscalls++
	m.snapshot.TotalDuration += duration.Seconds()
	m.snapshot.SyscallCount++
	if result != "ok" {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordSyscallError records a syscall failure with its errno name
func (m *Metrics) RecordSyscallError(name, errno string) {
	m.SyscallErrors.WithLabelValues(name, errno).Inc()
}

// RecordHTTPRequest records a monitor HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPageFault records a resolved page fault ("device" or "cow")
func (m *Metrics) RecordPageFault(kind string) {
	m.PageFaults.WithLabelValues(kind).Inc()
}

// RecordCowCopy records one copy-on-write duplication
func (m *Metrics) RecordCowCopy() {
	m.CowCopies.Inc()
}

// RecordAllocFailure records a failed frame allocation
func (m *Metrics) RecordAllocFailure() {
	m.AllocFailures.Inc()
}

// SetFrames sets the free/used frame gauges
func (m *Metrics) SetFrames(free, used int) {
	m.FramesFree.Set(float64(free))
	m.FramesUsed.Set(float64(used))
	m.mu.Lock()
	m.snapshot.FreeFrames = int64(free)
	m.snapshot.UsedFrames = int64(used)
	m.mu.Unlock()
}

// SetProcessState sets the gauge for one scheduling state
func (m *Metrics) SetProcessState(state string, count int) {
	m.ProcessesByState.WithLabelValues(state).Set(float64(count))
}

// SetProcessesActive sets the live process count in the snapshot
func (m *Metrics) SetProcessesActive(count int) {
	m.mu.Lock()
	m.snapshot.ActiveProcesses = int64(count)
	m.mu.Unlock()
}

// IncProcessesTotal increments the created-process counter
func (m *Metrics) IncProcessesTotal() {
	m.ProcessesTotal.Inc()
}

// SetChannelsActive sets the live channel count
func (m *Metrics) SetChannelsActive(count int) {
	m.ChannelsActive.Set(float64(count))
	m.mu.Lock()
	m.snapshot.ActiveChannels = int64(count)
	m.mu.Unlock()
}

// RecordChannelBytes records bytes moved through a channel ("read" or "write")
func (m *Metrics) RecordChannelBytes(direction string, n int) {
	m.ChannelBytes.WithLabelValues(direction).Add(float64(n))
}

// IncBlockedParties counts one context parking on a channel ("readers" or "writers")
func (m *Metrics) IncBlockedParties(side string) {
	m.BlockedParties.WithLabelValues(side).Inc()
}

// DecBlockedParties counts one context leaving a channel wait
func (m *Metrics) DecBlockedParties(side string) {
	m.BlockedParties.WithLabelValues(side).Dec()
}

// RecordEvent records a published kernel event
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// IncWSConnections increments event stream connections
func (m *Metrics) IncWSConnections() {
	m.WSConnections.Inc()
}

// DecWSConnections decrements event stream connections
func (m *Metrics) DecWSConnections() {
	m.WSConnections.Dec()
}
