// Package relay implements best-effort live forwarding of chat events.
// Delivery here is distinct from persistence: a miss means the recipient
// catches up via history fetch, never a retry or a queue.
package relay

import (
	"encoding/json"
	"sync"
	"time"

	chat "messenger/internal/pkg/chat/application/domain"
)

// Sender delivers a payload to a user's live connection, reporting false when
// the user is unreachable. Satisfied by realtime.Registry.
type Sender interface {
	NotifyUser(userID string, payload []byte) bool
}

// Relay fans out message and typing envelopes to live recipients. It holds the
// per-sender typing auto-clear timers; everything else is stateless.
type Relay struct {
	sender Sender

	mu           sync.Mutex
	typingTimers map[string]*time.Timer
	quiet        time.Duration
}

// New constructs a Relay delivering through sender.
func New(sender Sender) *Relay {
	return &Relay{
		sender:       sender,
		typingTimers: make(map[string]*time.Timer),
		quiet:        chat.TypingQuietInterval,
	}
}

type messageFrame struct {
	Type    string         `json:"type"`
	Message messagePayload `json:"message"`
}

type messagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	Kind           string    `json:"type"`
	CreatedAt      time.Time `json:"created_at"`
}

type typingFrame struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

// RelayMessage forwards an already-persisted envelope to every listed
// recipient with a live connection and returns the delivered count. Absent
// recipients see the message via history fetch on next connect.
func (r *Relay) RelayMessage(msg chat.Message, recipientIDs []string) int {
	payload, err := json.Marshal(messageFrame{
		Type: "new_message",
		Message: messagePayload{
			ID:             msg.ID,
			ConversationID: msg.ConversationID,
			SenderID:       msg.SenderID,
			Content:        msg.Content,
			Kind:           string(msg.Kind),
			CreatedAt:      msg.CreatedAt,
		},
	})
	if err != nil {
		return 0
	}

	delivered := 0
	for _, id := range recipientIDs {
		if r.sender.NotifyUser(id, payload) {
			delivered++
		}
	}
	return delivered
}

// RelayTyping forwards a typing signal to live recipients in arrival order,
// with no coalescing. A set signal arms a quiet-interval timer that clears
// typing on the sender's behalf if no explicit clear arrives; an explicit
// clear disarms it.
func (r *Relay) RelayTyping(sig chat.TypingSignal, recipientIDs []string) {
	r.forwardTyping(sig, recipientIDs)

	key := sig.ConversationID + "/" + sig.UserID

	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.typingTimers[key]; ok {
		timer.Stop()
		delete(r.typingTimers, key)
	}
	if !sig.IsTyping {
		return
	}

	cleared := chat.TypingSignal{
		ConversationID: sig.ConversationID,
		UserID:         sig.UserID,
		IsTyping:       false,
	}
	r.typingTimers[key] = time.AfterFunc(r.quiet, func() {
		r.mu.Lock()
		delete(r.typingTimers, key)
		r.mu.Unlock()
		r.forwardTyping(cleared, recipientIDs)
	})
}

func (r *Relay) forwardTyping(sig chat.TypingSignal, recipientIDs []string) {
	payload, err := json.Marshal(typingFrame{
		Type:           "typing",
		ConversationID: sig.ConversationID,
		UserID:         sig.UserID,
		IsTyping:       sig.IsTyping,
	})
	if err != nil {
		return
	}
	for _, id := range recipientIDs {
		r.sender.NotifyUser(id, payload)
	}
}

// Stop cancels all pending typing auto-clear timers.
func (r *Relay) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, timer := range r.typingTimers {
		timer.Stop()
		delete(r.typingTimers, key)
	}
}
