package relay

import "errors"

var (
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrNotRegistered       = errors.New("participant not registered")
	ErrRecipientUnknown    = errors.New("recipient unknown")
	ErrInvalidConversation = errors.New("invalid conversation")
	ErrEmptyMessage        = errors.New("message content is empty")
)
