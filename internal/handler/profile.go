package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"foodfortalk/internal/db"
	"foodfortalk/internal/middleware"
	"foodfortalk/internal/relay"
	"foodfortalk/internal/session"
)

// ProfileHandler implements the one-shot reveal: viewing someone's full
// profile spends the viewer's own access to the event.
type ProfileHandler struct {
	DB         *db.Database
	Terminator *relay.Terminator
}

func (h *ProfileHandler) ViewProfile(w http.ResponseWriter, r *http.Request) {
	sessionID, _ := session.FromRequest(r)
	identity, err := h.DB.ResolveSession(sessionID)
	if err != nil {
		middleware.WriteJSONError(w, "Session expired or invalid", "SESSION_INVALID", http.StatusUnauthorized)
		return
	}

	targetID := r.PathValue("id")
	record, err := h.DB.GetParticipantByID(targetID)
	if errors.Is(err, db.ErrNotFound) {
		middleware.WriteJSONError(w, "Profile not found", "PROFILE_NOT_FOUND", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("Failed to load profile", "target_id", targetID, "error", err)
		middleware.WriteJSONError(w, "Internal server error", "INTERNAL", http.StatusInternalServerError)
		return
	}

	// Reveal first, then revoke the viewer. The response carries the only
	// copy of the unblurred profile this participant will ever get.
	writeJSON(w, http.StatusOK, record)

	if err := h.Terminator.RevokeAndDisconnect(identity.ID); err != nil {
		slog.Error("Failed to revoke viewer after profile view", "viewer_id", identity.ID, "error", err)
		return
	}
	slog.Info("Profile viewed, viewer revoked", "viewer_id", identity.ID, "target_id", targetID)
}
