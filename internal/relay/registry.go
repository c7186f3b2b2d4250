package relay

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"foodfortalk/internal/models"
)

type entry struct {
	participant models.Participant
	conn        Conn
	joinedAt    time.Time
}

// Registry tracks currently connected participants. It is the only shared
// mutable structure in the relay; every mutation serializes through its
// mutex and broadcasts work from a snapshot taken under the lock.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		order:   make([]string, 0),
		log:     log,
	}
}

// Register adds a participant. Registering an id that is already present is
// an idempotent re-join: the entry is replaced, the previous connection
// handle is closed so duplicate sessions cannot linger, and no second join
// announcement goes out.
func (r *Registry) Register(p models.Participant, conn Conn) {
	r.mu.Lock()
	old, rejoined := r.entries[p.ID]
	r.entries[p.ID] = &entry{participant: p, conn: conn, joinedAt: time.Now()}
	if !rejoined {
		r.order = append(r.order, p.ID)
	}
	others := r.connsLocked(p.ID)
	r.mu.Unlock()

	if rejoined {
		if old.conn != nil && old.conn != conn {
			old.conn.Close("replaced by a newer connection")
		}
		r.log.Info("Participant re-joined", "participant_id", p.ID)
		return
	}

	r.log.Info("Participant joined", "participant_id", p.ID, "display_name", p.BlurredName)

	joined := Event{Type: EventUserJoined, User: &p}
	system := Event{Type: EventMessage, Message: systemMessage(fmt.Sprintf("%s joined the chat", p.BlurredName))}
	for _, c := range others {
		c.Deliver(joined)
		c.Deliver(system)
	}
}

// Unregister removes the participant if present and announces the departure
// to everyone still registered. Unknown ids are a no-op. The connection
// handle is not closed here; the transport owns it.
func (r *Registry) Unregister(participantID string) {
	r.mu.Lock()
	e, ok := r.entries[participantID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.entries, participantID)
	r.removeFromOrderLocked(participantID)
	remaining := r.connsLocked("")
	r.mu.Unlock()

	r.log.Info("Participant left", "participant_id", participantID)

	left := Event{Type: EventUserLeft, UserID: participantID}
	system := Event{Type: EventMessage, Message: systemMessage(fmt.Sprintf("%s left the chat", e.participant.BlurredName))}
	for _, c := range remaining {
		c.Deliver(left)
		c.Deliver(system)
	}
}

// Drop unregisters participantID only while conn is still its live handle.
// The transport calls this from its teardown path so that a connection
// replaced during a re-join cannot evict its successor.
func (r *Registry) Drop(participantID string, conn Conn) {
	r.mu.RLock()
	e, ok := r.entries[participantID]
	r.mu.RUnlock()
	if !ok || e.conn != conn {
		return
	}
	r.Unregister(participantID)
}

// Participants returns a join-ordered snapshot of who is online.
func (r *Registry) Participants() []models.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Map(r.order, func(id string, _ int) models.Participant {
		return r.entries[id].participant
	})
}

func (r *Registry) get(participantID string) (models.Participant, Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[participantID]
	if !ok {
		return models.Participant{}, nil, false
	}
	return e.participant, e.conn, true
}

// connsLocked snapshots every live connection except exceptID.
// Callers must hold r.mu.
func (r *Registry) connsLocked(exceptID string) []Conn {
	conns := make([]Conn, 0, len(r.entries))
	for id, e := range r.entries {
		if id == exceptID {
			continue
		}
		conns = append(conns, e.conn)
	}
	return conns
}

func (r *Registry) removeFromOrderLocked(participantID string) {
	for i, id := range r.order {
		if id == participantID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func systemMessage(content string) *models.Message {
	return &models.Message{
		ID:      uuid.New().String(),
		Kind:    models.KindSystem,
		Content: content,
		SentAt:  time.Now(),
	}
}
