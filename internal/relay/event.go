package relay

import "foodfortalk/internal/models"

type EventType string

const (
	EventMessage        EventType = "message"
	EventPrivateMessage EventType = "private_message"
	EventUserJoined     EventType = "user_joined"
	EventUserLeft       EventType = "user_left"
	EventParticipants   EventType = "participants"
	EventError          EventType = "error"
)

// Event is the server-to-client envelope. Seq is stamped per connection by
// the transport's writer, so each connection observes a strictly increasing
// sequence and a logical event is never delivered twice on the same socket.
type Event struct {
	Seq            uint64               `json:"seq"`
	Type           EventType            `json:"type"`
	Message        *models.Message      `json:"message,omitempty"`
	ConversationID string               `json:"conversation_id,omitempty"`
	User           *models.Participant  `json:"user,omitempty"`
	UserID         string               `json:"user_id,omitempty"`
	Participants   []models.Participant `json:"participants,omitempty"`
	Code           string               `json:"code,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// Conn is the transport-level handle the relay holds for a connected
// participant. The transport adapter owns the underlying socket; the relay
// only enqueues events and may ask for the connection to be closed.
type Conn interface {
	// Deliver enqueues an outbound event. It must not block; a transport
	// that cannot keep up drops the event and deals with its own teardown.
	Deliver(ev Event)
	// Close tears the connection down. Safe to call more than once.
	Close(reason string)
}
