package events

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/id"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/shared/types"
)

// DefaultBuffer is the per-subscriber channel depth when Subscribe is
// called with a non-positive buffer.
const DefaultBuffer = 64

// Bus fans kernel lifecycle events out to subscribers. Publishing never
// blocks: a subscriber that falls behind loses events rather than
// stalling the kernel path that produced them.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]chan types.Event
	closed  bool
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// New creates an event bus.
func New(log *logging.Logger) *Bus {
	return &Bus{
		subs: make(map[string]chan types.Event),
		log:  log.Named("events"),
	}
}

// WithMetrics attaches performance monitoring.
func (b *Bus) WithMetrics(m *monitoring.Metrics) *Bus {
	b.metrics = m
	return b
}

// Subscribe registers a new subscriber and returns its id plus the
// delivery channel. The channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe(buffer int) (string, <-chan types.Event) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan types.Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return "", ch
	}

	subID := id.Default().GenerateWithPrefix("sub")
	b.subs[subID] = ch
	b.log.Debug("Subscriber attached",
		zap.String("sub_id", subID),
		zap.Int("buffer", buffer),
	)
	return subID, ch
}

// Unsubscribe removes a subscriber and closes its channel. Unknown ids
// are ignored.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[subID]
	if !ok {
		return
	}
	delete(b.subs, subID)
	close(ch)
	b.log.Debug("Subscriber detached", zap.String("sub_id", subID))
}

// Publish delivers an event to every subscriber that has room for it.
func (b *Bus) Publish(t types.EventType, payload map[string]interface{}) {
	evt := types.Event{
		ID:        id.NewEventID().String(),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	if b.metrics != nil {
		b.metrics.RecordEvent(string(t))
	}
	for subID, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.log.Warn("Subscriber lagging, event dropped",
				zap.String("sub_id", subID),
				zap.String("type", string(t)),
			)
		}
	}
}

// Count returns the number of attached subscribers.
func (b *Bus) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the bus down and closes every subscriber channel.
// Publish becomes a no-op and Subscribe hands back closed channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for subID, ch := range b.subs {
		delete(b.subs, subID)
		close(ch)
	}
}
