package chat

import "errors"

// Domain-level errors for chat behaviors. Conversation and group membership
// themselves are owned by the external conversation service; this core only
// reads them to decide event fan-out.
var (
	ErrNotParticipant = errors.New("chat: sender is not a participant in the conversation")
	ErrEmptyMessage   = errors.New("chat: empty message content")
	ErrUnknownKind    = errors.New("chat: unknown message kind")
)
