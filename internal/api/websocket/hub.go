package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/publisher"
)

// envelope is a broadcast plus the keys clients filter on
type envelope struct {
	msg    ServerMessage
	gameID string
	season string
	teams  []string
}

// Hub maintains the set of active clients and broadcasts processed-game
// events to them. It implements publisher.Sink.
type Hub struct {
	clientsMu sync.RWMutex
	clients   map[*Client]bool

	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	stopOnce   sync.Once

	metricsMu        sync.Mutex
	totalConnections int64
	totalMessages    int64
	dropped          int64

	log *logrus.Entry
}

var _ publisher.Sink = (*Hub)(nil)

// NewHub creates a new Hub instance
func NewHub(log *logrus.Entry) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan envelope, 1000),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run(ctx context.Context) {
	h.log.Info("hub started")
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case e := <-h.broadcast:
			h.fanOut(e)
		}
	}
}

// Register adds a client to the hub. It is a no-op once the hub stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// PublishGame broadcasts a processed game
func (h *Hub) PublishGame(_ context.Context, s publisher.GameSummary) error {
	h.enqueue(envelope{
		msg:    ServerMessage{Type: MessageTypeGameProcessed, Payload: s, Timestamp: time.Now()},
		gameID: s.GameID,
		season: s.Season,
		teams:  []string{s.HomeTeam, s.AwayTeam},
	})
	return nil
}

// PublishMiscount broadcasts an unresolved quarter
func (h *Hub) PublishMiscount(_ context.Context, rec pbp.MiscountRecord) error {
	h.enqueue(envelope{
		msg:    ServerMessage{Type: MessageTypeMiscount, Payload: rec, Timestamp: time.Now()},
		gameID: rec.GameID,
		season: rec.Season,
		teams:  []string{rec.Team},
	})
	return nil
}

func (h *Hub) enqueue(e envelope) {
	select {
	case h.broadcast <- e:
	default:
		h.log.WithField("type", e.msg.Type).Warn("broadcast buffer full, dropping message")
	}
}

func (h *Hub) registerClient(c *Client) {
	h.clientsMu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.clientsMu.Unlock()

	h.metricsMu.Lock()
	h.totalConnections++
	h.metricsMu.Unlock()

	c.log.WithField("clients", n).Info("client connected")
}

func (h *Hub) unregisterClient(c *Client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
		c.log.WithField("clients", len(h.clients)).Info("client disconnected")
	}
}

func (h *Hub) fanOut(e envelope) {
	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	sent, dropped := 0, 0
	for _, c := range clients {
		if !c.Filter().Matches(e.gameID, e.season, e.teams...) {
			continue
		}
		if c.TrySend(e.msg) {
			sent++
			continue
		}
		// too slow to keep up
		dropped++
		c.log.Warn("client buffer full, disconnecting")
		go h.Unregister(c)
	}

	h.metricsMu.Lock()
	if sent > 0 {
		h.totalMessages++
	}
	h.dropped += int64(dropped)
	h.metricsMu.Unlock()
}

// Stats returns hub counters
func (h *Hub) Stats() map[string]interface{} {
	h.metricsMu.Lock()
	defer h.metricsMu.Unlock()
	return map[string]interface{}{
		"active_clients":     h.ClientCount(),
		"total_connections":  h.totalConnections,
		"total_messages":     h.totalMessages,
		"dropped_clients":    h.dropped,
		"broadcast_capacity": cap(h.broadcast),
		"broadcast_usage":    len(h.broadcast),
	}
}

// ClientCount returns the number of active clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) shutdown() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	h.log.WithField("clients", len(h.clients)).Info("shutting down hub")
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}
