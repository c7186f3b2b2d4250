package relay

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"foodfortalk/internal/models"
)

// HistorySink receives copies of relayed messages for best-effort storage.
// conversationKey is empty for public and system messages.
type HistorySink interface {
	SaveMessage(msg models.Message, conversationKey string) error
}

// Router dispatches inbound chat events to their recipients. It holds no
// state of its own beyond the registry reference; sender identity always
// comes from the connection-bound participant id, never from the payload.
type Router struct {
	reg     *Registry
	history HistorySink
	log     *slog.Logger
}

func NewRouter(reg *Registry, history HistorySink, log *slog.Logger) *Router {
	return &Router{reg: reg, history: history, log: log}
}

// Publish broadcasts a public message to every registered participant,
// including the sender's own echo.
func (rt *Router) Publish(senderID, content string, sentAt time.Time) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	sender, _, ok := rt.reg.get(senderID)
	if !ok {
		return models.Message{}, ErrNotRegistered
	}

	msg := models.Message{
		ID:         uuid.New().String(),
		Kind:       models.KindPublic,
		SenderID:   sender.ID,
		SenderName: sender.BlurredName,
		Content:    content,
		SentAt:     normalizeSentAt(sentAt),
	}

	rt.reg.mu.RLock()
	targets := rt.reg.connsLocked("")
	rt.reg.mu.RUnlock()

	ev := Event{Type: EventMessage, Message: &msg}
	for _, c := range targets {
		c.Deliver(ev)
	}

	rt.persist(msg, "")
	return msg, nil
}

// PublishPrivate delivers a message to exactly the sender and the recipient
// of the derived conversation.
func (rt *Router) PublishPrivate(senderID, recipientID, content string, sentAt time.Time) (models.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Message{}, ErrEmptyMessage
	}
	key, err := ConversationKey(senderID, recipientID)
	if err != nil {
		return models.Message{}, err
	}
	sender, senderConn, ok := rt.reg.get(senderID)
	if !ok {
		return models.Message{}, ErrNotRegistered
	}
	_, recipientConn, ok := rt.reg.get(recipientID)
	if !ok {
		return models.Message{}, ErrRecipientUnknown
	}

	msg := models.Message{
		ID:             uuid.New().String(),
		Kind:           models.KindPrivate,
		SenderID:       sender.ID,
		SenderName:     sender.BlurredName,
		RecipientID:    recipientID,
		ConversationID: key,
		Content:        content,
		SentAt:         normalizeSentAt(sentAt),
	}

	ev := Event{Type: EventPrivateMessage, ConversationID: key, Message: &msg}
	senderConn.Deliver(ev)
	recipientConn.Deliver(ev)

	rt.persist(msg, key)
	return msg, nil
}

// persist hands the message to the history sink without blocking delivery.
// Storage failures are logged and otherwise ignored.
func (rt *Router) persist(msg models.Message, conversationKey string) {
	if rt.history == nil {
		return
	}
	go func() {
		if err := rt.history.SaveMessage(msg, conversationKey); err != nil {
			rt.log.Warn("Failed to store chat message", "message_id", msg.ID, "kind", msg.Kind, "error", err)
		}
	}()
}

// The relay never rewrites a sender-side timestamp; it only fills one in
// when the client omitted it.
func normalizeSentAt(sentAt time.Time) time.Time {
	if sentAt.IsZero() {
		return time.Now()
	}
	return sentAt
}
