package usecase

import (
	"context"
	"errors"
	"testing"

	chat "messenger/internal/pkg/chat/application/domain"
)

type fakeChatRepository struct {
	participants map[string][]string
	saved        []chat.Message
	saveErr      error
	memberErr    error
}

func (f *fakeChatRepository) SaveMessage(_ context.Context, m chat.Message) (string, error) {
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, m)
	return "msg-1", nil
}

func (f *fakeChatRepository) GetMessagesByConversation(_ context.Context, conversationID string, limit, offset int) ([]chat.Message, error) {
	var out []chat.Message
	for _, m := range f.saved {
		if m.ConversationID == conversationID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeChatRepository) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	if f.memberErr != nil {
		return false, f.memberErr
	}
	for _, id := range f.participants[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeChatRepository) ListParticipantIDs(_ context.Context, conversationID string) ([]string, error) {
	return f.participants[conversationID], nil
}

func (f *fakeChatRepository) ListContactIDs(_ context.Context, userID string) ([]string, error) {
	return nil, nil
}

func (f *fakeChatRepository) ListGroupMemberIDs(_ context.Context, groupID string) ([]string, error) {
	return f.participants[groupID], nil
}

func TestSendMessagePersistsForParticipant(t *testing.T) {
	repo := &fakeChatRepository{participants: map[string][]string{
		"conv-1": {"alice", "bob"},
	}}
	uc := NewSendMessageUseCase(repo)

	msg, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("execute failed: %v", err)
	}
	if msg.ID != "msg-1" {
		t.Fatalf("message id = %q, want store-assigned msg-1", msg.ID)
	}
	if msg.Kind != chat.MessageKindText {
		t.Fatalf("kind = %q, want defaulted text", msg.Kind)
	}
	if len(repo.saved) != 1 {
		t.Fatalf("saved %d messages, want 1", len(repo.saved))
	}
}

func TestSendMessageRejectsNonParticipant(t *testing.T) {
	repo := &fakeChatRepository{participants: map[string][]string{
		"conv-1": {"alice", "bob"},
	}}
	uc := NewSendMessageUseCase(repo)

	_, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "mallory",
		Content:        "hi",
	})
	if !errors.Is(err, chat.ErrNotParticipant) {
		t.Fatalf("err = %v, want ErrNotParticipant", err)
	}
	if len(repo.saved) != 0 {
		t.Fatal("message from non-participant was persisted")
	}
}

func TestSendMessageWrapsPersistenceFailures(t *testing.T) {
	repo := &fakeChatRepository{
		participants: map[string][]string{"conv-1": {"alice"}},
		saveErr:      errors.New("connection reset"),
	}
	uc := NewSendMessageUseCase(repo)

	_, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Content:        "hello",
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}

	repo.saveErr = nil
	repo.memberErr = errors.New("db down")
	if _, err := uc.Execute(context.Background(), SendMessageInput{
		ConversationID: "conv-1",
		SenderID:       "alice",
		Content:        "hello",
	}); !errors.Is(err, ErrPersistence) {
		t.Fatalf("membership failure err = %v, want ErrPersistence", err)
	}
}

func TestSendMessageValidatesInput(t *testing.T) {
	repo := &fakeChatRepository{participants: map[string][]string{
		"conv-1": {"alice"},
	}}
	uc := NewSendMessageUseCase(repo)
	ctx := context.Background()

	if _, err := uc.Execute(ctx, SendMessageInput{SenderID: "alice", Content: "x"}); err == nil {
		t.Fatal("missing conversation id accepted")
	}
	if _, err := uc.Execute(ctx, SendMessageInput{ConversationID: "conv-1", SenderID: "alice", Content: "  "}); !errors.Is(err, chat.ErrEmptyMessage) {
		t.Fatal("blank content accepted")
	}
	if _, err := uc.Execute(ctx, SendMessageInput{ConversationID: "conv-1", SenderID: "alice", Content: "x", Kind: "hologram"}); !errors.Is(err, chat.ErrUnknownKind) {
		t.Fatal("unknown kind accepted")
	}
}
