package fifo

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/events"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

// Namespace maps absolute paths to channels. Creating a taken path
// fails; removal closes the channel for every holder.
type Namespace struct {
	mu       sync.RWMutex
	channels map[string]*Fifo
	capacity int
	log      *logging.Logger
	metrics  *monitoring.Metrics
	events   *events.Bus
}

// NewNamespace creates an empty namespace. capacity 0 selects
// DefaultCapacity for every channel.
func NewNamespace(capacity int, log *logging.Logger) *Namespace {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Namespace{
		channels: make(map[string]*Fifo),
		capacity: capacity,
		log:      log.Named("ipc"),
	}
}

// WithMetrics attaches metrics collection
func (ns *Namespace) WithMetrics(m *monitoring.Metrics) *Namespace {
	ns.metrics = m
	return ns
}

// WithEvents publishes channel lifecycle events to bus.
func (ns *Namespace) WithEvents(bus *events.Bus) *Namespace {
	ns.events = bus
	return ns
}

// Create registers a new channel under an absolute path.
func (ns *Namespace) Create(name string) (*Fifo, error) {
	if !strings.HasPrefix(name, "/") || len(name) < 2 {
		return nil, fmt.Errorf("%q: %w", name, ErrInvalidName)
	}
	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, ok := ns.channels[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, ErrExists)
	}
	f := newFifo(name, ns.capacity, ns.metrics)
	ns.channels[name] = f

	if ns.metrics != nil {
		ns.metrics.SetChannelsActive(len(ns.channels))
	}
	ns.log.Info("channel created", zap.String("name", name), zap.Int("capacity", ns.capacity))
	if ns.events != nil {
		ns.events.Publish(types.EventChannelCreated, map[string]interface{}{
			"name":     name,
			"capacity": ns.capacity,
		})
	}
	return f, nil
}

// Lookup resolves a path to its channel.
func (ns *Namespace) Lookup(name string) (*Fifo, error) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	f, ok := ns.channels[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	return f, nil
}

// Remove unlinks a channel and closes it, releasing every blocked
// reader and writer.
func (ns *Namespace) Remove(name string) error {
	ns.mu.Lock()
	f, ok := ns.channels[name]
	if !ok {
		ns.mu.Unlock()
		return fmt.Errorf("%q: %w", name, ErrNotFound)
	}
	delete(ns.channels, name)
	if ns.metrics != nil {
		ns.metrics.SetChannelsActive(len(ns.channels))
	}
	ns.mu.Unlock()

	f.Close()
	ns.log.Info("channel removed", zap.String("name", name))
	if ns.events != nil {
		ns.events.Publish(types.EventChannelRemoved, map[string]interface{}{"name": name})
	}
	return nil
}

// Count reports how many channels exist.
func (ns *Namespace) Count() int {
	ns.mu.RLock()
	defer ns.mu.RUnlock()
	return len(ns.channels)
}

// List returns snapshots of every channel ordered by name.
func (ns *Namespace) List() []types.ChannelInfo {
	ns.mu.RLock()
	channels := make([]*Fifo, 0, len(ns.channels))
	for _, f := range ns.channels {
		channels = append(channels, f)
	}
	ns.mu.RUnlock()

	out := make([]types.ChannelInfo, 0, len(channels))
	for _, f := range channels {
		out = append(out, f.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CloseAll closes every channel, used at shutdown to release blocked
// contexts. Channels stay listed so the monitor can still see them.
func (ns *Namespace) CloseAll() {
	ns.mu.RLock()
	channels := make([]*Fifo, 0, len(ns.channels))
	for _, f := range ns.channels {
		channels = append(channels, f)
	}
	ns.mu.RUnlock()

	for _, f := range channels {
		f.Close()
	}
}
