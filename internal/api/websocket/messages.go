package websocket

import (
	"encoding/json"
	"time"
)

// MessageType identifies a websocket frame
type MessageType string

const (
	MessageTypeGameProcessed MessageType = "game_processed"
	MessageTypeMiscount      MessageType = "miscount"
	MessageTypeSubscribe     MessageType = "subscribe"
	MessageTypeSubscribed    MessageType = "subscribed"
	MessageTypeUnsubscribe   MessageType = "unsubscribe"
	MessageTypeHeartbeat     MessageType = "heartbeat"
	MessageTypeError         MessageType = "error"
)

// ServerMessage is sent from the server to clients
type ServerMessage struct {
	Type      MessageType `json:"type"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// ClientMessage is sent from clients to the server
type ClientMessage struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorMessage is the payload of an error frame
type ErrorMessage struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ConnectionStats is returned in heartbeat responses
type ConnectionStats struct {
	ClientID         string    `json:"client_id"`
	ConnectedAt      time.Time `json:"connected_at"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	BufferSize       int       `json:"buffer_size"`
	BufferUsed       int       `json:"buffer_used"`
}

// Filter narrows what a client receives. Empty fields match everything.
type Filter struct {
	Seasons []string `json:"seasons,omitempty"`
	Teams   []string `json:"teams,omitempty"`
	GameIDs []string `json:"game_ids,omitempty"`
}

// Empty reports whether the filter accepts everything
func (f Filter) Empty() bool {
	return len(f.Seasons) == 0 && len(f.Teams) == 0 && len(f.GameIDs) == 0
}

// Matches checks an event against the filter. A team filter matches when any
// of teams is listed.
func (f Filter) Matches(gameID, season string, teams ...string) bool {
	if f.Empty() {
		return true
	}
	if len(f.GameIDs) > 0 && !contains(f.GameIDs, gameID) {
		return false
	}
	if len(f.Seasons) > 0 && !contains(f.Seasons, season) {
		return false
	}
	if len(f.Teams) > 0 {
		for _, t := range teams {
			if contains(f.Teams, t) {
				return true
			}
		}
		return false
	}
	return true
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
