package relay

import "log/slog"

// CredentialRevoker invalidates a participant's login credential so that
// future identity resolution fails. Implementations must be idempotent.
type CredentialRevoker interface {
	RevokeParticipant(participantID string) error
}

// Terminator implements the one-shot "view profile" consequence: the
// viewer's credential is invalidated, their presence entry removed (with the
// standard leave broadcast) and their transport connection closed.
type Terminator struct {
	reg     *Registry
	revoker CredentialRevoker
	log     *slog.Logger
}

func NewTerminator(reg *Registry, revoker CredentialRevoker, log *slog.Logger) *Terminator {
	return &Terminator{reg: reg, revoker: revoker, log: log}
}

// RevokeAndDisconnect is idempotent: revoking an already-revoked id is a
// no-op, and an id with no live connection only gets its credential marked.
func (t *Terminator) RevokeAndDisconnect(participantID string) error {
	if err := t.revoker.RevokeParticipant(participantID); err != nil {
		return err
	}

	_, conn, ok := t.reg.get(participantID)
	t.reg.Unregister(participantID)
	if ok && conn != nil {
		conn.Close("access revoked")
	}

	t.log.Info("Participant access revoked", "participant_id", participantID, "was_connected", ok)
	return nil
}
