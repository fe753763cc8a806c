package chat

import "time"

// TypingQuietInterval is how long a typing signal stays set without an
// explicit clear before the relay clears it on the sender's behalf.
const TypingQuietInterval = 2 * time.Second

// TypingSignal is ephemeral: emitted on input activity, never persisted.
// Receivers apply "set typing = X" semantics, so duplicates are harmless.
type TypingSignal struct {
	ConversationID string
	UserID         string
	IsTyping       bool
}
