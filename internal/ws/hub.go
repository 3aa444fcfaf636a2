package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/domain/supervisor"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
)

// DefaultBuffer is the per-subscriber queue length
const DefaultBuffer = 8

const writeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // read-only diagnostics feed
	},
}

// Message is the envelope written to clients
type Message struct {
	Type    string               `json:"type"`
	Message string               `json:"message,omitempty"`
	Data    *supervisor.Snapshot `json:"data,omitempty"`
}

type subscriber struct {
	send chan []byte
}

// Hub fans status snapshots out to websocket subscribers. A subscriber whose
// queue is full misses the newest snapshot instead of stalling the publisher.
type Hub struct {
	logger  *zap.Logger
	metrics *monitoring.Metrics
	buffer  int

	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	last   []byte
	closed bool
}

// NewHub creates a hub. buffer <= 0 uses DefaultBuffer.
func NewHub(logger *zap.Logger, metrics *monitoring.Metrics, buffer int) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{
		logger:  logger,
		metrics: metrics,
		buffer:  buffer,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Publish implements supervisor.SnapshotSink.
func (h *Hub) Publish(snap supervisor.Snapshot) {
	payload, err := sonic.Marshal(Message{Type: "status", Data: &snap})
	if err != nil {
		h.logger.Error("Failed to encode snapshot", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.last = payload

	for sub := range h.subs {
		select {
		case sub.send <- payload:
			h.metrics.RecordWSMessage("sent")
		default:
			h.metrics.RecordWSMessage("dropped")
		}
	}
}

// Subscribe registers a queue. The returned func removes it.
func (h *Hub) Subscribe() (<-chan []byte, func()) {
	queue, _, unsubscribe := h.SubscribeWithLast()
	return queue, unsubscribe
}

// SubscribeWithLast registers a queue and returns the payload published just
// before it, taken under the same lock. Every later snapshot arrives on the
// queue, so a caller replaying last never sees a snapshot twice.
func (h *Hub) SubscribeWithLast() (<-chan []byte, []byte, func()) {
	sub := &subscriber{send: make(chan []byte, h.buffer)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(sub.send)
		return sub.send, nil, func() {}
	}
	h.subs[sub] = struct{}{}
	last := h.last
	h.mu.Unlock()

	var once sync.Once
	return sub.send, last, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[sub]; ok {
				delete(h.subs, sub)
				close(sub.send)
			}
		})
	}
}

// Subscribers returns the number of live subscribers
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Close disconnects every subscriber. Later publishes are ignored.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subs {
		delete(h.subs, sub)
		close(sub.send)
	}
}

// HandleConnection upgrades the request and streams snapshots until the
// client goes away or the hub closes.
func (h *Hub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.metrics.IncWSConnections()
	defer h.metrics.DecWSConnections()

	queue, last, unsubscribe := h.SubscribeWithLast()
	defer unsubscribe()

	if err := h.send(conn, Message{Type: "system", Message: "connected"}); err != nil {
		return
	}
	if last != nil {
		if err := h.write(conn, last); err != nil {
			return
		}
	}

	// Clients never send anything meaningful; reading detects disconnects
	// and services control frames.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case payload, ok := <-queue:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := h.write(conn, payload); err != nil {
				h.logger.Debug("WebSocket write failed", zap.Error(err))
				return
			}
		case <-gone:
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

func (h *Hub) send(conn *websocket.Conn, msg Message) error {
	payload, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return h.write(conn, payload)
}

func (h *Hub) write(conn *websocket.Conn, payload []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, payload)
}
