// Package logging provides structured logging using uber/zap.
//
// Every kernel subsystem logs through a named child of one root
// logger, so entries carry their origin ("kernel.mm", "kernel.ipc",
// "kernel.syscall") and a single Sync on shutdown flushes everything.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// Example Usage:
//
//	log := logging.NewDefault()
//	mmLog := log.Named("mm")
//	mmLog.Info("region mapped", zap.Uint64("base", base), zap.Uint64("pages", pages))
package logging
