package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"foodfortalk/internal/auth"
	"foodfortalk/internal/db"
	"foodfortalk/internal/middleware"
	"foodfortalk/internal/models"
	"foodfortalk/internal/session"
)

// AuthHandler implements the secret login issued to Food for Talk
// participants ahead of the event.
type AuthHandler struct {
	DB         *db.Database
	SessionTTL time.Duration
}

type LoginRequest struct {
	Email    string `json:"email"`
	Passcode string `json:"passcode"`
}

type LoginResponse struct {
	Token       string             `json:"token"`
	Participant models.Participant `json:"participant"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteJSONError(w, "Invalid request body", "BAD_REQUEST", http.StatusBadRequest)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Passcode == "" {
		middleware.WriteJSONError(w, "Email and passcode are required", "MISSING_FIELDS", http.StatusBadRequest)
		return
	}

	record, err := h.DB.GetParticipantByEmail(email)
	if errors.Is(err, db.ErrNotFound) {
		middleware.WriteJSONError(w, "Invalid email or passcode", "INVALID_CREDENTIALS", http.StatusUnauthorized)
		return
	}
	if err != nil {
		slog.Error("Failed to look up participant", "error", err)
		middleware.WriteJSONError(w, "Internal server error", "INTERNAL", http.StatusInternalServerError)
		return
	}

	if record.Revoked {
		middleware.WriteJSONError(w, "Access has been revoked", "ACCESS_REVOKED", http.StatusUnauthorized)
		return
	}

	ok, err := auth.ComparePasscode(req.Passcode, record.PasscodeHash)
	if err != nil || !ok {
		middleware.WriteJSONError(w, "Invalid email or passcode", "INVALID_CREDENTIALS", http.StatusUnauthorized)
		return
	}

	sessionID := uuid.New().String()
	if err := h.DB.CreateSession(sessionID, record.ID, time.Now().Add(h.SessionTTL)); err != nil {
		slog.Error("Failed to create session", "participant_id", record.ID, "error", err)
		middleware.WriteJSONError(w, "Internal server error", "INTERNAL", http.StatusInternalServerError)
		return
	}

	token := session.Mint(sessionID, record.ID)
	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.SessionTTL / time.Second),
		HttpOnly: true,
		Secure:   session.IsSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})

	slog.Info("Secret login succeeded", "participant_id", record.ID)
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Participant: record.Participant()})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if sessionID, _ := session.FromRequest(r); sessionID != "" {
		if err := h.DB.DeleteSession(sessionID); err != nil {
			slog.Warn("Failed to delete session on logout", "error", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   session.IsSecureRequest(r),
		SameSite: http.SameSiteStrictMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode JSON response", "error", err)
	}
}
