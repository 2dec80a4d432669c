package monitoring

// Snapshot returns a copy of the current metric values for the JSON API
func (m *Metrics) Snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// AverageSyscallSeconds returns the mean syscall duration so far
func (m *Metrics) AverageSyscallSeconds() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.SyscallCount == 0 {
		return 0
	}
	return m.snapshot.TotalDuration / float64(m.snapshot.SyscallCount)
}

// ErrorRate returns the fraction of syscalls that failed
func (m *Metrics) ErrorRate() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.snapshot.TotalSyscalls == 0 {
		return 0
	}
	return float64(m.snapshot.TotalErrors) / float64(m.snapshot.TotalSyscalls)
}
