package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/google/uuid"

	"foodfortalk/internal/auth"
	"foodfortalk/internal/db"
	"foodfortalk/internal/handler"
	"foodfortalk/internal/middleware"
	"foodfortalk/internal/relay"
	"foodfortalk/internal/session"
)

func main() {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		log.Fatal("Failed to load configuration: ", err)
	}
	if len(cfg.SessionSecret) < 32 {
		log.Fatal("SESSION_SECRET must be at least 32 characters")
	}

	setupLogging(cfg.LogLevel)

	session.SetSecret(cfg.SessionSecret)
	session.SetTrustedProxies(cfg.TrustedProxies)

	allowedOrigins, err := parseAllowedOrigins(cfg.AllowedOrigins)
	if err != nil {
		log.Fatal(err)
	}
	handler.SetAllowedOrigins(allowedOrigins)

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer database.Close()

	middleware.SetAuthDatabase(database)

	if cfg.SeedFile != "" {
		if err := seedParticipants(database, cfg.SeedFile); err != nil {
			log.Fatal("Failed to seed participants: ", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go runCleanupTasks(ctx, database)

	slog.Info("Database initialized successfully")

	registry := relay.NewRegistry(slog.Default())
	router := relay.NewRouter(registry, database, slog.Default())
	terminator := relay.NewTerminator(registry, database, slog.Default())

	wsHandler := handler.NewWSHandler(database, registry, router)
	authHandler := &handler.AuthHandler{DB: database, SessionTTL: cfg.SessionTTL}
	chatHandler := &handler.ChatHandler{DB: database, Registry: registry}
	profileHandler := &handler.ProfileHandler{DB: database, Terminator: terminator}

	loginLimiter := middleware.NewRateLimiter(ctx, 10, time.Minute)
	if cfg.TrustedProxies != "" {
		loginLimiter.SetTrustedProxies(strings.Split(cfg.TrustedProxies, ","))
	}

	mux := newMux(database, wsHandler, authHandler, chatHandler, profileHandler, loginLimiter)

	server := &http.Server{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:     bodyLimitMiddleware(securityHeadersMiddleware(corsMiddleware(loggingMiddleware(mux), allowedOrigins))),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		slog.Info("Food for Talk relay starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server error: ", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown error", "error", err)
	}

	slog.Info("Server stopped")
}

func newMux(
	database *db.Database,
	wsHandler *handler.WSHandler,
	authHandler *handler.AuthHandler,
	chatHandler *handler.ChatHandler,
	profileHandler *handler.ProfileHandler,
	loginLimiter *middleware.RateLimiter,
) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := database.Ping(); err != nil {
			slog.Error("Health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status":   "unhealthy",
				"database": "disconnected",
			})
			return
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	mux.HandleFunc("POST /api/auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)).ServeHTTP)
	mux.HandleFunc("POST /api/auth/logout", authHandler.Logout)

	mux.HandleFunc("GET /api/chat/participants", middleware.RequireAuth(chatHandler.ListParticipants))
	mux.HandleFunc("GET /api/chat/history", middleware.RequireAuth(chatHandler.History))
	mux.HandleFunc("POST /api/profiles/{id}/view", middleware.RequireAuth(profileHandler.ViewProfile))

	mux.HandleFunc("GET /ws", wsHandler.HandleWebSocket)

	return mux
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

type seedEntry struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Passcode string `json:"passcode"`
}

// seedParticipants loads the event's guest list. Existing participants are
// left untouched so re-running the server never rotates anyone's passcode.
func seedParticipants(database *db.Database, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var entries []seedEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("malformed seed file %s: %w", path, err)
	}

	created := 0
	for _, e := range entries {
		email := strings.ToLower(strings.TrimSpace(e.Email))
		if email == "" || e.FullName == "" || e.Passcode == "" {
			return fmt.Errorf("seed entry missing email, full_name or passcode")
		}
		hash, err := auth.HashPasscode(e.Passcode)
		if err != nil {
			return err
		}
		err = database.CreateParticipant(uuid.New().String(), email, e.FullName, hash)
		if err == db.ErrParticipantExists {
			continue
		}
		if err != nil {
			return err
		}
		created++
	}

	slog.Info("Seeded participants", "file", path, "created", created, "total", len(entries))
	return nil
}

func runCleanupTasks(ctx context.Context, database *db.Database) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Cleanup tasks stopped")
			return
		case <-ticker.C:
			cleaned, err := database.CleanupExpiredSessions()
			if err != nil {
				slog.Error("Failed to cleanup expired sessions", "error", err)
			} else if cleaned > 0 {
				slog.Info("Cleaned up expired sessions", "count", cleaned)
			}
		}
	}
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") {
			// Avoid caching responses that may include credentials or the
			// one-shot profile reveal.
			w.Header().Set("Cache-Control", "no-store")
			w.Header().Set("Pragma", "no-cache")
		}
		w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		next.ServeHTTP(w, r)
	})
}

const maxBodySize = 64 * 1024

func bodyLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "POST" || r.Method == "PUT" {
			r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler, allowedOrigins []string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" && isOriginAllowed(origin, allowedOrigins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func parseAllowedOrigins(raw string) ([]string, error) {
	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))

	for _, entry := range parts {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if entry == "*" || strings.HasPrefix(entry, "*.") {
			return nil, fmt.Errorf("ALLOWED_ORIGINS entries must be full https origins; wildcard values are not allowed: %q", entry)
		}

		normalized, ok := normalizeOrigin(entry)
		if !ok {
			return nil, fmt.Errorf("ALLOWED_ORIGINS entry is invalid (%q). Use full https origins only, e.g. https://foodfortalk.example.com", entry)
		}

		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		origins = append(origins, normalized)
	}

	if len(origins) == 0 {
		return nil, fmt.Errorf("ALLOWED_ORIGINS must include at least one full https origin")
	}
	return origins, nil
}

func isOriginAllowed(origin string, allowedOrigins []string) bool {
	normalizedOrigin, ok := normalizeOrigin(origin)
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

func normalizeOrigin(origin string) (string, bool) {
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
