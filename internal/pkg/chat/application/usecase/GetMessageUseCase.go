package usecase

import (
	"context"
	"fmt"

	chat "messenger/internal/pkg/chat/application/domain"
	repository "messenger/internal/pkg/chat/persistence/repository/port"
)

// GetMessageInput carries parameters to fetch messages of a conversation.
type GetMessageInput struct {
	ConversationID string
	Limit          int
	Offset         int
}

// GetMessageUseCase fetches messages for a given conversation. History
// retrieval is how a recipient sees messages that missed live delivery.
type GetMessageUseCase struct {
	Repo repository.ChatRepository
}

func NewGetMessageUseCase(repo repository.ChatRepository) *GetMessageUseCase {
	return &GetMessageUseCase{Repo: repo}
}

// Execute returns messages for the conversation honoring limit/offset
func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) ([]chat.Message, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("conversationId is required")
	}
	msgs, err := uc.Repo.GetMessagesByConversation(ctx, in.ConversationID, in.Limit, in.Offset)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return msgs, nil
}
