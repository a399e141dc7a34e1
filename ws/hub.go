package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"crypto_tracker/metrics"
	"crypto_tracker/models"
	"crypto_tracker/utils"
)

const (
	// EventCryptoUpdate is emitted once per successful refresh cycle.
	EventCryptoUpdate = "crypto_update"

	HeartbeatInterval = 10 * time.Second
	WriteTimeout      = 5 * time.Second

	maxMessageSize = 4096
)

type Config struct {
	QueueSize    int           // per-subscriber pending messages before it is dropped
	WriteTimeout time.Duration // deadline for a single frame write
	PingInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:    4,
		WriteTimeout: WriteTimeout,
		PingInterval: HeartbeatInterval,
	}
}

// Event is the frame sent to subscribers.
type Event struct {
	Event string       `json:"event"`
	Data  EventPayload `json:"data"`
}

type EventPayload struct {
	Data     models.MarketBatch       `json:"data"`
	Analysis models.StatisticsSummary `json:"analysis"`
}

// Hub accepts websocket subscribers and fans out refresh cycles to them.
// Publish never waits on a subscriber: each one has a bounded queue and is
// dropped when the queue is full.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*subscriber]struct{}
}

func NewHub(cfg Config) *Hub {
	def := DefaultConfig()
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*subscriber]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the connection as a subscriber.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		utils.Logger.Warnw("Websocket upgrade failed", "error", err, "remote_addr", r.RemoteAddr)
		return
	}

	s := &subscriber{
		id:   uuid.New().String(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, h.cfg.QueueSize),
	}
	h.add(s)
	utils.Logger.Infow("Client connected", "client_id", s.id, "remote_addr", r.RemoteAddr)

	go s.writePump()
	go s.readPump()
}

// Publish implements sink.Publisher.
func (h *Hub) Publish(ctx context.Context, result models.RefreshCycleResult) {
	msg, err := json.Marshal(Event{
		Event: EventCryptoUpdate,
		Data:  EventPayload{Data: result.Batch, Analysis: result.Summary},
	})
	if err != nil {
		utils.Error(err, "Failed to encode live update")
		return
	}

	var slow []*subscriber
	h.mu.RLock()
	delivered := 0
	for s := range h.clients {
		select {
		case s.send <- msg:
			delivered++
		default:
			slow = append(slow, s)
		}
	}
	total := len(h.clients)
	h.mu.RUnlock()

	for _, s := range slow {
		utils.Logger.Warnw("Dropping slow subscriber", "client_id", s.id)
		metrics.IncrementDroppedSubscribers()
		h.remove(s)
	}

	utils.Logger.Debugw("Live update published",
		"subscribers", total,
		"delivered", delivered,
		"dropped", len(slow),
	)
}

// Count returns the number of active subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*subscriber, 0, len(h.clients))
	for s := range h.clients {
		all = append(all, s)
	}
	h.mu.RUnlock()

	for _, s := range all {
		h.remove(s)
	}
}

func (h *Hub) add(s *subscriber) {
	h.mu.Lock()
	h.clients[s] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	metrics.SetSubscribers(n)
}

// remove unregisters s and closes its queue; the write pump then closes the
// connection. Safe to call more than once.
func (h *Hub) remove(s *subscriber) {
	h.mu.Lock()
	if _, ok := h.clients[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, s)
	close(s.send)
	n := len(h.clients)
	h.mu.Unlock()

	metrics.SetSubscribers(n)
	utils.Logger.Infow("Client disconnected", "client_id", s.id)
}
