package repository

import (
	"context"

	chat "messenger/internal/pkg/chat/application/domain"
)

// ChatRepository defines the persistence operations the relay core consumes.
// The message store is the system of record: a live-delivery miss after
// SaveMessage succeeds is never message loss.
type ChatRepository interface {
	SaveMessage(ctx context.Context, m chat.Message) (string, error)
	GetMessagesByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error)

	// Membership lookups, owned by the external conversation service.
	IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error)
	ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error)

	// ListContactIDs returns the distinct users who share at least one open
	// conversation with userID; presence events fan out to exactly this set.
	ListContactIDs(ctx context.Context, userID string) ([]string, error)

	// ListGroupMemberIDs backs the one-to-many group broadcast path, which
	// shares the live-connection lookup primitive with 1:1 relay.
	ListGroupMemberIDs(ctx context.Context, groupID string) ([]string, error)
}
