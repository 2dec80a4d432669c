package ws

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/kernel/internal/events"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/kernel/internal/infrastructure/monitoring"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second

	// subscriberBuffer is deeper than the bus default: a monitor UI
	// refresh can burst many process events at once.
	subscriberBuffer = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // the monitor enforces origin policy via CORS config
	},
}

// Stream pushes kernel lifecycle events over WebSocket connections.
type Stream struct {
	bus     *events.Bus
	log     *logging.Logger
	metrics *monitoring.Metrics
}

// NewStream creates a stream handler over the event bus.
func NewStream(bus *events.Bus, log *logging.Logger) *Stream {
	if log == nil {
		log = logging.NewNop()
	}
	return &Stream{bus: bus, log: log.Named("stream")}
}

// WithMetrics attaches connection gauges.
func (s *Stream) WithMetrics(m *monitoring.Metrics) *Stream {
	s.metrics = m
	return s
}

// HandleConnection upgrades the request and forwards events until the
// client hangs up or the bus closes.
func (s *Stream) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.New().String()
	if s.metrics != nil {
		s.metrics.IncWSConnections()
		defer s.metrics.DecWSConnections()
	}

	subID, ch := s.bus.Subscribe(subscriberBuffer)
	defer s.bus.Unsubscribe(subID)
	s.log.Info("Event stream attached",
		zap.String("conn_id", connID),
		zap.String("remote", c.ClientIP()),
	)

	if err := s.send(conn, gin.H{
		"type":    "system",
		"message": "connected to kernel event stream",
	}); err != nil {
		return
	}

	// The client never speaks; its read pump only notices hangups.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				s.send(conn, gin.H{"type": "system", "message": "kernel halted"})
				return
			}
			if err := s.send(conn, evt); err != nil {
				s.log.Debug("Event stream write failed",
					zap.String("conn_id", connID),
					zap.Error(err),
				)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			s.log.Info("Event stream detached", zap.String("conn_id", connID))
			return
		}
	}
}

func (s *Stream) send(conn *websocket.Conn, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(data)
}
