package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512

	// Buffer size for outbound messages
	sendBufferSize = 256
)

// Client is one websocket subscriber
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan ServerMessage
	hub  *Hub
	log  *logrus.Entry

	filterMu sync.RWMutex
	filter   Filter

	mu               sync.Mutex
	closed           bool
	connectedAt      time.Time
	messagesSent     int64
	messagesReceived int64
}

func newClient(id string, conn *websocket.Conn, hub *Hub, log *logrus.Entry) *Client {
	return &Client{
		ID:          id,
		conn:        conn,
		send:        make(chan ServerMessage, sendBufferSize),
		hub:         hub,
		log:         log.WithField("client_id", id),
		connectedAt: time.Now(),
	}
}

// ReadPump reads client frames until the connection fails
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			var msg ClientMessage
			if err := c.conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					c.log.WithError(err).Warn("unexpected close")
				}
				return
			}

			c.mu.Lock()
			c.messagesReceived++
			c.mu.Unlock()
			c.handleClientMessage(msg)
		}
	}
}

// WritePump drains the send buffer to the connection and keeps it alive with pings
func (c *Client) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.log.WithError(err).Debug("write failed")
				return
			}

			c.mu.Lock()
			c.messagesSent++
			c.mu.Unlock()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// TrySend queues a message without blocking. It returns false when the
// buffer is full or the client is closed.
func (c *Client) TrySend(msg ServerMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// close stops further sends and ends WritePump. Safe to call twice.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// SetFilter replaces the subscription filter
func (c *Client) SetFilter(f Filter) {
	c.filterMu.Lock()
	defer c.filterMu.Unlock()
	c.filter = f
}

// Filter returns the current subscription filter
func (c *Client) Filter() Filter {
	c.filterMu.RLock()
	defer c.filterMu.RUnlock()
	return c.filter
}

// Stats returns connection statistics
func (c *Client) Stats() ConnectionStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionStats{
		ClientID:         c.ID,
		ConnectedAt:      c.connectedAt,
		MessagesSent:     c.messagesSent,
		MessagesReceived: c.messagesReceived,
		BufferSize:       sendBufferSize,
		BufferUsed:       len(c.send),
	}
}

func (c *Client) handleClientMessage(msg ClientMessage) {
	switch msg.Type {
	case MessageTypeSubscribe:
		var f Filter
		if len(msg.Payload) > 0 {
			if err := json.Unmarshal(msg.Payload, &f); err != nil {
				c.sendError("invalid_filter", "failed to parse filter")
				return
			}
		}
		c.SetFilter(f)
		c.log.WithFields(logrus.Fields{
			"seasons":  f.Seasons,
			"teams":    f.Teams,
			"game_ids": f.GameIDs,
		}).Debug("subscribed")
		c.reply(MessageTypeSubscribed, f)
	case MessageTypeUnsubscribe:
		c.SetFilter(Filter{})
		c.reply(MessageTypeSubscribed, Filter{})
	case MessageTypeHeartbeat:
		c.reply(MessageTypeHeartbeat, c.Stats())
	default:
		c.sendError("unknown_message_type", fmt.Sprintf("unknown message type: %s", msg.Type))
	}
}

func (c *Client) reply(t MessageType, payload interface{}) {
	c.TrySend(ServerMessage{Type: t, Payload: payload, Timestamp: time.Now()})
}

func (c *Client) sendError(code, message string) {
	c.reply(MessageTypeError, ErrorMessage{Code: code, Message: message})
}
