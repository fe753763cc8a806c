package task

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	qport "messenger/internal/infrastructure/queue/port"
	chat "messenger/internal/pkg/chat/application/domain"
	"messenger/internal/pkg/chat/application/usecase"
	repoAdapter "messenger/internal/pkg/chat/persistence/repository/adapter"
	"messenger/internal/pkg/relay"
)

// SendMessageTaskType is the queue task name for sending a message within the chat domain.
const SendMessageTaskType = "chat:send_message"

// SendMessageTaskPayload is the JSON payload transported via the queue.
// Kept decoupled from domain types to avoid tight coupling with JSON tags.
type SendMessageTaskPayload struct {
	ConversationID string `json:"conversationId"`
	SenderID       string `json:"senderId"`
	Content        string `json:"content"`
	Kind           string `json:"kind"`
}

// RegisterSendMessageTask binds the task handler to the provided server.
// The handler persists through the send-message use case and then pushes the
// stored envelope to live participants; persistence comes first so a relay
// miss is never message loss.
func RegisterSendMessageTask(srv qport.Server, pool *pgxpool.Pool, live *relay.Relay) {
	srv.Register(SendMessageTaskType, func(ctx context.Context, t qport.Task) error {
		var p SendMessageTaskPayload
		if err := json.Unmarshal(t.Payload, &p); err != nil {
			// malformed payload: do not retry indefinitely
			return err
		}

		repo := repoAdapter.NewPgChatRepository(pool)

		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		msg, err := usecase.NewSendMessageUseCase(repo).Execute(ctx, usecase.SendMessageInput{
			ConversationID: p.ConversationID,
			SenderID:       p.SenderID,
			Content:        p.Content,
			Kind:           chat.MessageKind(p.Kind),
		})
		if err != nil {
			// Retry/backoff policy is controlled by the adapter/server.
			return err
		}

		participantIDs, err := usecase.NewListParticipantsUseCase(repo).Execute(ctx, usecase.ListParticipantsInput{
			ConversationID: p.ConversationID,
		})
		if err != nil {
			// The message is persisted; recipients catch up via history.
			return nil
		}
		live.RelayMessage(*msg, participantIDs)
		return nil
	})
}
