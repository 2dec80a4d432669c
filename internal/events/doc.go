// Package events distributes kernel lifecycle events to monitor
// subscribers.
//
// The bus decouples the subsystems that produce events (process table,
// channel namespace, kernel boot path) from the consumers that watch
// them (the websocket event stream). Delivery is best-effort per
// subscriber: each subscriber owns a bounded buffer and slow consumers
// drop events instead of back-pressuring syscall paths.
package events
