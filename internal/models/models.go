package models

import (
	"strings"
	"time"
)

type MessageKind string

const (
	KindPublic  MessageKind = "public"
	KindPrivate MessageKind = "private"
	KindSystem  MessageKind = "system"
)

// Participant is the identity other attendees see: an opaque id and a
// blurred display name. The full profile stays hidden until someone spends
// their session on a profile view.
type Participant struct {
	ID          string `json:"id"`
	BlurredName string `json:"blurred_name"`
}

// ParticipantRecord is the stored identity behind a Participant.
type ParticipantRecord struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasscodeHash string    `json:"-"`
	Revoked      bool      `json:"revoked"`
	CreatedAt    time.Time `json:"created_at"`
}

func (p *ParticipantRecord) Participant() Participant {
	return Participant{ID: p.ID, BlurredName: BlurName(p.FullName)}
}

type Message struct {
	ID             string      `json:"id"`
	Kind           MessageKind `json:"kind"`
	SenderID       string      `json:"sender_id,omitempty"`
	SenderName     string      `json:"sender_name,omitempty"`
	RecipientID    string      `json:"recipient_id,omitempty"`
	ConversationID string      `json:"conversation_id,omitempty"`
	Content        string      `json:"content"`
	SentAt         time.Time   `json:"sent_at"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// BlurName masks a full name down to the first rune of each word,
// e.g. "Ada Lovelace" -> "A*** L***".
func BlurName(fullName string) string {
	words := strings.Fields(fullName)
	if len(words) == 0 {
		return "***"
	}
	masked := make([]string, 0, len(words))
	for _, w := range words {
		r := []rune(w)
		masked = append(masked, string(r[0])+"***")
	}
	return strings.Join(masked, " ")
}
