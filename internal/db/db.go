// Package db is the identity/session store and the best-effort chat history
// store behind the relay, backed by SQLite.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"foodfortalk/internal/models"
	"foodfortalk/internal/relay"
)

var ErrParticipantExists = errors.New("participant already exists")
var ErrNotFound = errors.New("not found")

const currentSchemaVersion = 1

type Database struct {
	*sql.DB
}

func New(dataSourceName string) (*Database, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(4) // SQLite is single-writer; more connections waste FDs and increase lock contention
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(2 * time.Minute)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Database{db}, nil
}

func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return err
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}

	if version < 1 {
		tx, err := db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := createTablesInTx(tx); err != nil {
			return err
		}
		if _, err := tx.Exec("PRAGMA user_version = 1"); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}

	return nil
}

func createTablesInTx(tx *sql.Tx) error {
	_, err := tx.Exec(`
		CREATE TABLE IF NOT EXISTS participants (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			full_name TEXT NOT NULL,
			passcode_hash TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			revoked_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			participant_id TEXT NOT NULL REFERENCES participants(id) ON DELETE CASCADE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			expires_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			conversation_key TEXT NOT NULL DEFAULT '',
			sender_id TEXT NOT NULL DEFAULT '',
			sender_name TEXT NOT NULL DEFAULT '',
			recipient_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			sent_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_participant_id ON sessions(participant_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_key, sent_at);
		CREATE INDEX IF NOT EXISTS idx_messages_sent_at ON messages(sent_at);
	`)
	return err
}

func (db *Database) CreateParticipant(id, email, fullName, passcodeHash string) error {
	_, err := db.Exec(
		"INSERT INTO participants (id, email, full_name, passcode_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		id, email, fullName, passcodeHash, time.Now(),
	)
	if err != nil && isUniqueViolation(err) {
		return ErrParticipantExists
	}
	return err
}

func (db *Database) GetParticipantByEmail(email string) (*models.ParticipantRecord, error) {
	return db.scanParticipant(db.QueryRow(
		"SELECT id, email, full_name, passcode_hash, revoked, created_at FROM participants WHERE email = ?", email))
}

func (db *Database) GetParticipantByID(id string) (*models.ParticipantRecord, error) {
	return db.scanParticipant(db.QueryRow(
		"SELECT id, email, full_name, passcode_hash, revoked, created_at FROM participants WHERE id = ?", id))
}

func (db *Database) scanParticipant(row *sql.Row) (*models.ParticipantRecord, error) {
	var p models.ParticipantRecord
	err := row.Scan(&p.ID, &p.Email, &p.FullName, &p.PasscodeHash, &p.Revoked, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

const MaxSessionsPerParticipant = 5

func (db *Database) CreateSession(sessionID, participantID string, expiresAt time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO sessions (id, participant_id, created_at, expires_at) VALUES (?, ?, ?, ?)",
		sessionID, participantID, time.Now(), expiresAt,
	); err != nil {
		return err
	}

	// Evict oldest sessions beyond the cap
	if _, err := tx.Exec(`
		DELETE FROM sessions WHERE id IN (
			SELECT id FROM sessions
			WHERE participant_id = ?
			ORDER BY created_at DESC
			LIMIT -1 OFFSET ?
		)`, participantID, MaxSessionsPerParticipant,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ResolveSession maps a session credential to a participant identity with a
// blurred display name. Unknown, expired and revoked credentials all come
// back as relay.ErrInvalidCredential; the caller learns nothing more.
func (db *Database) ResolveSession(sessionID string) (models.Participant, error) {
	var expiresAt time.Time
	var revoked bool
	var p models.ParticipantRecord
	err := db.QueryRow(`
		SELECT s.expires_at, p.id, p.full_name, p.revoked
		FROM sessions s JOIN participants p ON p.id = s.participant_id
		WHERE s.id = ?`, sessionID,
	).Scan(&expiresAt, &p.ID, &p.FullName, &revoked)
	if err == sql.ErrNoRows {
		return models.Participant{}, relay.ErrInvalidCredential
	}
	if err != nil {
		return models.Participant{}, err
	}
	if revoked || time.Now().After(expiresAt) {
		return models.Participant{}, relay.ErrInvalidCredential
	}
	return p.Participant(), nil
}

// RevokeParticipant marks the participant revoked and deletes every session
// they hold. Idempotent; the first revocation timestamp is preserved.
func (db *Database) RevokeParticipant(participantID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE participants SET revoked = 1, revoked_at = COALESCE(revoked_at, ?) WHERE id = ?",
		time.Now(), participantID,
	); err != nil {
		return err
	}
	if _, err := tx.Exec("DELETE FROM sessions WHERE participant_id = ?", participantID); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *Database) DeleteSession(sessionID string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

func (db *Database) CleanupExpiredSessions() (int64, error) {
	result, err := db.Exec("DELETE FROM sessions WHERE expires_at < ?", time.Now())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SaveMessage implements relay.HistorySink.
func (db *Database) SaveMessage(msg models.Message, conversationKey string) error {
	_, err := db.Exec(`
		INSERT INTO messages (id, kind, conversation_key, sender_id, sender_name, recipient_id, content, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, string(msg.Kind), conversationKey, msg.SenderID, msg.SenderName, msg.RecipientID, msg.Content, msg.SentAt,
	)
	return err
}

func (db *Database) PublicHistory(limit int) ([]models.Message, error) {
	return db.queryMessages(
		"SELECT id, kind, conversation_key, sender_id, sender_name, recipient_id, content, sent_at FROM messages WHERE conversation_key = '' ORDER BY sent_at LIMIT ?",
		limit)
}

// ConversationHistory returns a private conversation's stored transcript.
// Rows survive participant revocation, so the other party keeps read access.
func (db *Database) ConversationHistory(conversationKey string, limit int) ([]models.Message, error) {
	return db.queryMessages(
		"SELECT id, kind, conversation_key, sender_id, sender_name, recipient_id, content, sent_at FROM messages WHERE conversation_key = ? ORDER BY sent_at LIMIT ?",
		conversationKey, limit)
}

func (db *Database) queryMessages(query string, args ...any) ([]models.Message, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var kind string
		if err := rows.Scan(&m.ID, &kind, &m.ConversationID, &m.SenderID, &m.SenderName, &m.RecipientID, &m.Content, &m.SentAt); err != nil {
			return nil, err
		}
		m.Kind = models.MessageKind(kind)
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
