package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"foodfortalk/internal/db"
	"foodfortalk/internal/models"
	"foodfortalk/internal/relay"
	"foodfortalk/internal/session"
)

const (
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = (pongWait * 9) / 10
	sessionCheckTick = 5 * time.Second
	maxMessageSize   = 8192
	maxEventsPerSec  = 10
	sendBufferSize   = 64
)

var allowedOrigins []string

func SetAllowedOrigins(origins []string) {
	allowedOrigins = origins
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(allowedOrigins) == 0 || origin == "" {
		return false
	}

	normalizedOrigin, ok := normalizeHTTPSOrigin(origin)
	if !ok {
		return false
	}

	for _, allowed := range allowedOrigins {
		if strings.EqualFold(strings.TrimSpace(allowed), normalizedOrigin) {
			return true
		}
	}
	return false
}

func normalizeHTTPSOrigin(origin string) (string, bool) {
	originURL, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || originURL.Scheme == "" || originURL.Host == "" {
		return "", false
	}
	if !strings.EqualFold(originURL.Scheme, "https") {
		return "", false
	}
	if (originURL.Path != "" && originURL.Path != "/") || originURL.RawQuery != "" || originURL.Fragment != "" || originURL.User != nil {
		return "", false
	}
	return "https://" + strings.ToLower(originURL.Host), true
}

// inboundEvent is the client-to-server frame. Any sender id a client embeds
// is ignored: authorization uses only the identity bound at upgrade time.
type inboundEvent struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	RecipientID string `json:"recipient_id"`
	Timestamp   int64  `json:"timestamp"` // sender-side, unix milliseconds
}

// WSHandler is the transport adapter between WebSocket connections and the
// relay. It resolves identity at connect time, feeds inbound events to the
// router and pumps relay events back out.
type WSHandler struct {
	DB       *db.Database
	Registry *relay.Registry
	Router   *relay.Router
}

func NewWSHandler(database *db.Database, registry *relay.Registry, router *relay.Router) *WSHandler {
	return &WSHandler{DB: database, Registry: registry, Router: router}
}

// wsClient implements relay.Conn. The writer goroutine owns seq, so each
// connection sees a strictly increasing sequence on the wire.
type wsClient struct {
	connID     string
	conn       *websocket.Conn
	sessionID  string
	identity   models.Participant
	send       chan relay.Event
	done       chan struct{}
	closeOnce  sync.Once
	seq        uint64
	eventCount int
	lastReset  time.Time
}

func (c *wsClient) Deliver(ev relay.Event) {
	select {
	case <-c.done:
	case c.send <- ev:
	default:
		// slow consumer; drop rather than stall the relay
	}
}

func (c *wsClient) Close(reason string) {
	c.closeOnce.Do(func() {
		code := websocket.CloseNormalClosure
		if reason != "" {
			code = websocket.ClosePolicyViolation
		}
		deadline := time.Now().Add(writeWait)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		close(c.done)
		_ = c.conn.Close()
	})
}

func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.FromRequest(r)
	if sessionID == "" {
		http.Error(w, "Not authenticated", http.StatusUnauthorized)
		return
	}

	// Identity is always re-resolved on a fresh transport connection;
	// nothing a client cached survives a reconnect.
	identity, err := h.DB.ResolveSession(sessionID)
	if err != nil {
		slog.Warn("WebSocket session resolution failed", "error", err)
		http.Error(w, "Session expired or invalid", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("WebSocket upgrade error", "error", err)
		return
	}

	client := &wsClient{
		connID:    uuid.New().String(),
		conn:      conn,
		sessionID: sessionID,
		identity:  identity,
		send:      make(chan relay.Event, sendBufferSize),
		done:      make(chan struct{}),
		lastReset: time.Now(),
	}

	slog.Info("WebSocket connected", "conn_id", client.connID, "participant_id", identity.ID)

	go h.writePump(client)
	h.readPump(client)
}

func (h *WSHandler) readPump(client *wsClient) {
	defer func() {
		// a dead socket is an implicit unregister; Drop is a no-op if this
		// connection was already replaced or revoked
		h.Registry.Drop(client.identity.ID, client)
		client.Close("")
		slog.Info("WebSocket disconnected", "conn_id", client.connID, "participant_id", client.identity.ID)
	}()

	client.conn.SetReadLimit(maxMessageSize)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			break
		}

		if !h.validateClientSession(client) {
			return
		}

		if time.Since(client.lastReset) > time.Second {
			client.eventCount = 0
			client.lastReset = time.Now()
		}
		client.eventCount++
		if client.eventCount > maxEventsPerSec {
			slog.Warn("WebSocket rate limit exceeded", "participant_id", client.identity.ID)
			return
		}

		var ev inboundEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "join":
			h.Registry.Register(client.identity, client)
			client.Deliver(relay.Event{
				Type:         relay.EventParticipants,
				Participants: h.Registry.Participants(),
			})

		case "send_message":
			if _, err := h.Router.Publish(client.identity.ID, ev.Content, sentAt(ev.Timestamp)); err != nil {
				client.Deliver(errorEvent(err))
			}

		case "send_private_message":
			if _, err := h.Router.PublishPrivate(client.identity.ID, ev.RecipientID, ev.Content, sentAt(ev.Timestamp)); err != nil {
				client.Deliver(errorEvent(err))
			}

		default:
			slog.Warn("Unknown websocket event", "type", ev.Type, "participant_id", client.identity.ID)
		}
	}
}

func (h *WSHandler) writePump(client *wsClient) {
	ticker := time.NewTicker(pingPeriod)
	sessionTicker := time.NewTicker(sessionCheckTick)
	defer func() {
		ticker.Stop()
		sessionTicker.Stop()
		client.Close("")
	}()

	for {
		select {
		case <-client.done:
			return

		case ev := <-client.send:
			client.seq++
			ev.Seq = client.seq
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteJSON(ev); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-sessionTicker.C:
			if !h.validateClientSession(client) {
				return
			}
		}
	}
}

// validateClientSession re-checks the credential against the store so that a
// revocation lands even if the terminator never saw this connection.
func (h *WSHandler) validateClientSession(client *wsClient) bool {
	if _, err := h.DB.ResolveSession(client.sessionID); err != nil {
		slog.Warn("Closing websocket with invalid session", "conn_id", client.connID, "participant_id", client.identity.ID)
		client.Close("session invalidated")
		return false
	}
	return true
}

func errorEvent(err error) relay.Event {
	code := "DELIVERY_FAILED"
	switch {
	case errors.Is(err, relay.ErrEmptyMessage):
		code = "EMPTY_MESSAGE"
	case errors.Is(err, relay.ErrNotRegistered):
		code = "NOT_REGISTERED"
	case errors.Is(err, relay.ErrRecipientUnknown):
		code = "RECIPIENT_UNKNOWN"
	case errors.Is(err, relay.ErrInvalidConversation):
		code = "INVALID_CONVERSATION"
	}
	return relay.Event{Type: relay.EventError, Code: code, Error: err.Error()}
}

func sentAt(unixMilli int64) time.Time {
	if unixMilli <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(unixMilli)
}
