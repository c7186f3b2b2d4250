package middleware

import (
	"encoding/json"
	"net/http"

	"foodfortalk/internal/db"
	"foodfortalk/internal/models"
	"foodfortalk/internal/session"
)

var authDB *db.Database

func SetAuthDatabase(database *db.Database) {
	authDB = database
}

func WriteJSONError(w http.ResponseWriter, message, code string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// RequireAuth rejects requests whose credential does not resolve to a live,
// unrevoked participant. Handlers re-resolve for their own use; this guard
// only keeps dead sessions off the API surface.
func RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID, _ := session.FromRequest(r)
		if sessionID == "" {
			WriteJSONError(w, "Not authenticated", "UNAUTHORIZED", http.StatusUnauthorized)
			return
		}

		if authDB != nil {
			if _, err := authDB.ResolveSession(sessionID); err != nil {
				WriteJSONError(w, "Session expired or invalid", "SESSION_INVALID", http.StatusUnauthorized)
				return
			}
		}

		next(w, r)
	}
}
