package chat

import (
	"errors"
	"strings"
	"time"
)

// MessageKind represents the content kind of a message.
type MessageKind string

const (
	MessageKindText  MessageKind = "text"
	MessageKindGif   MessageKind = "gif"
	MessageKindVoice MessageKind = "voice"
)

// Valid reports whether k is a known content kind.
func (k MessageKind) Valid() bool {
	switch k {
	case MessageKindText, MessageKindGif, MessageKindVoice:
		return true
	}
	return false
}

// Message is an immutable envelope in a conversation. It is persisted by the
// message store before any live delivery; the relay never buffers it.
type Message struct {
	ID             string      `db:"id"`
	ConversationID string      `db:"conversation_id"`
	SenderID       string      `db:"sender_id"`
	Content        string      `db:"content"`
	Kind           MessageKind `db:"type"`
	CreatedAt      time.Time   `db:"created_at"`
}

// NewMessage validates and normalizes m, defaulting the kind to text and the
// timestamp to now.
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, errors.New("conversation_id and sender_id are required")
	}

	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return nil, ErrEmptyMessage
	}

	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	if !m.Kind.Valid() {
		return nil, ErrUnknownKind
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	return &m, nil
}
