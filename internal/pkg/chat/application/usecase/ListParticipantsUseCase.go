package usecase

import (
	"context"
	"fmt"

	repository "messenger/internal/pkg/chat/persistence/repository/port"
)

// ListParticipantsInput identifies the conversation whose membership to read.
type ListParticipantsInput struct {
	ConversationID string
}

// ListParticipantsUseCase resolves the fan-out set for a conversation: relayed
// messages and typing signals go to exactly these users, and membership of the
// sender is checked against the same list. The set is owned by the external
// conversation service; this is a read-only view.
type ListParticipantsUseCase struct {
	Repo repository.ChatRepository
}

func NewListParticipantsUseCase(repo repository.ChatRepository) *ListParticipantsUseCase {
	return &ListParticipantsUseCase{Repo: repo}
}

func (uc *ListParticipantsUseCase) Execute(ctx context.Context, in ListParticipantsInput) ([]string, error) {
	if in.ConversationID == "" {
		return nil, fmt.Errorf("conversation_id is required")
	}

	ids, err := uc.Repo.ListParticipantIDs(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	return ids, nil
}
