package adapter

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "messenger/internal/pkg/chat/application/domain"
)

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

func (r *PgChatRepository) SaveMessage(ctx context.Context, m chat.Message) (string, error) {
	if r == nil || r.pool == nil {
		return "", errors.New("PgChatRepository: nil pool")
	}
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, content, type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, m.ConversationID, m.SenderID, m.Content, string(m.Kind), m.CreatedAt)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *PgChatRepository) GetMessagesByConversation(ctx context.Context, conversationID string, limit int, offset int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, type, created_at
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []chat.Message
	for rows.Next() {
		var (
			msg  chat.Message
			kind string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Content, &kind, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.Kind = chat.MessageKind(kind)
		msgs = append(msgs, msg)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return msgs, nil
}

func (r *PgChatRepository) IsParticipant(ctx context.Context, conversationID string, userID string) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New("PgChatRepository: nil pool")
	}
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM conversation_participants
			WHERE conversation_id = $1 AND user_id = $2
		)
	`, conversationID, userID).Scan(&exists)
	return exists, err
}

func (r *PgChatRepository) ListParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM conversation_participants WHERE conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PgChatRepository) ListContactIDs(ctx context.Context, userID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT other.user_id
		FROM conversation_participants own
		JOIN conversation_participants other
		  ON other.conversation_id = own.conversation_id
		WHERE own.user_id = $1 AND other.user_id <> $1
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

func (r *PgChatRepository) ListGroupMemberIDs(ctx context.Context, groupID string) ([]string, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New("PgChatRepository: nil pool")
	}
	rows, err := r.pool.Query(ctx, `
		SELECT user_id FROM group_members WHERE group_id = $1
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanIDs(rows rowScanner) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return ids, nil
}
