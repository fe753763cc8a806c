package usecase

import (
	"context"
	"fmt"

	chat "messenger/internal/pkg/chat/application/domain"
	repository "messenger/internal/pkg/chat/persistence/repository/port"
)

// SendMessageInput carries the data needed to send a new message.
type SendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           chat.MessageKind
}

// SendMessageUseCase persists a message for a conversation after checking
// membership. Live delivery is the relay's job and happens after Execute
// returns; persistence is the durability guarantee.
type SendMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewSendMessageUseCase(repo repository.ChatRepository) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo}
}

// Execute validates and persists a new message for a conversation.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (*chat.Message, error) {
	if in.ConversationID == "" || in.SenderID == "" {
		return nil, fmt.Errorf("conversationId and senderId are required")
	}

	isParticipant, err := uc.Repo.IsParticipant(ctx, in.ConversationID, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !isParticipant {
		return nil, chat.ErrNotParticipant
	}

	msg, err := chat.NewMessage(chat.Message{
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Kind:           in.Kind,
	})
	if err != nil {
		return nil, err
	}

	id, err := uc.Repo.SaveMessage(ctx, *msg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	msg.ID = id
	return msg, nil
}
