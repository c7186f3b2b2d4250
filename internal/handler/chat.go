package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"foodfortalk/internal/db"
	"foodfortalk/internal/middleware"
	"foodfortalk/internal/relay"
	"foodfortalk/internal/session"
)

const historyLimit = 100

// ChatHandler answers "who is online" and chat history queries.
type ChatHandler struct {
	DB       *db.Database
	Registry *relay.Registry
}

func (h *ChatHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"participants": h.Registry.Participants(),
	})
}

// History serves the stored public channel, or with ?with={id} the private
// conversation between the caller and that participant. Transcripts stay
// readable even after the other party's access was revoked.
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.FromRequest(r)
	identity, err := h.DB.ResolveSession(sessionID)
	if err != nil {
		middleware.WriteJSONError(w, "Session expired or invalid", "SESSION_INVALID", http.StatusUnauthorized)
		return
	}

	with := strings.TrimSpace(r.URL.Query().Get("with"))
	if with == "" {
		messages, err := h.DB.PublicHistory(historyLimit)
		if err != nil {
			slog.Error("Failed to load public history", "error", err)
			middleware.WriteJSONError(w, "Internal server error", "INTERNAL", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
		return
	}

	key, err := relay.ConversationKey(identity.ID, with)
	if err != nil {
		middleware.WriteJSONError(w, "Invalid conversation", "INVALID_CONVERSATION", http.StatusBadRequest)
		return
	}

	messages, err := h.DB.ConversationHistory(key, historyLimit)
	if err != nil {
		slog.Error("Failed to load conversation history", "conversation_key", key, "error", err)
		middleware.WriteJSONError(w, "Internal server error", "INTERNAL", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
