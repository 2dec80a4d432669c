/*
Package monitoring provides performance monitoring and metrics collection.

# Overview

This package implements Prometheus-based metrics collection for the kernel,
tracking syscalls, physical memory, processes, FIFO channels, and the
monitor server itself.

# Features

- Syscall metrics (count by result, latency, errno breakdown)
- Physical memory metrics (free/used frames, CoW copies, page faults)
- Process lifecycle metrics (count by state, total created)
- FIFO channel metrics (live channels, bytes moved, blocked parties)
- Event stream metrics (connections, published events)
- Monitor HTTP request metrics

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to the monitor router
	router.Use(monitoring.Middleware(metrics))

	// Record kernel activity
	metrics.SetFrames(free, used)
	metrics.RecordPageFault("cow")

	// Time syscalls
	timer := monitoring.NewTimer(metrics, "mmap")
	// ... dispatch ...
	timer.Stop("ok")

# Metrics Endpoint

Expose metrics via the standard Prometheus endpoint:

	import "github.com/prometheus/client_golang/prometheus/promhttp"
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
*/
package monitoring
