package controller

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"messenger/internal/infrastructure/realtime"
	"messenger/internal/pkg/call"
	chat "messenger/internal/pkg/chat/application/domain"
	"messenger/internal/pkg/chat/application/usecase"
	repository "messenger/internal/pkg/chat/persistence/repository/port"
	"messenger/internal/pkg/relay"
	userport "messenger/internal/repository/port"
)

// ChatSocketController handles the websocket endpoint carrying all realtime
// traffic: messages, typing, presence-affecting connects, and call signaling.
type ChatSocketController struct {
	registry    *realtime.Registry
	live        *relay.Relay
	coordinator *call.Coordinator
	missed      call.MissedCallStore

	users userport.UserRepository
	repo  repository.ChatRepository

	sendMessageUC *usecase.SendMessageUseCase
	listMembersUC *usecase.ListParticipantsUseCase

	inflightTimeout time.Duration
}

func NewChatSocketController(users userport.UserRepository, repo repository.ChatRepository, registry *realtime.Registry, live *relay.Relay, coordinator *call.Coordinator, missed call.MissedCallStore) *ChatSocketController {
	return &ChatSocketController{
		registry:        registry,
		live:            live,
		coordinator:     coordinator,
		missed:          missed,
		users:           users,
		repo:            repo,
		sendMessageUC:   usecase.NewSendMessageUseCase(repo),
		listMembersUC:   usecase.NewListParticipantsUseCase(repo),
		inflightTimeout: 5 * time.Second,
	}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for now; plug a proper checker when the identity
		// service grows origin policies.
		return true
	},
}

// inboundFrame is the union of every event the client may submit. The tag
// decides dispatch; identity fields inside the frame are ignored in favor of
// the authenticated user.
type inboundFrame struct {
	Type string `json:"type"`

	// auth
	UserID string `json:"userId,omitempty"`

	// message / typing / group_message
	ConversationID string `json:"conversationId,omitempty"`
	GroupID        string `json:"groupId,omitempty"`
	Content        string `json:"content,omitempty"`
	MessageType    string `json:"messageType,omitempty"`
	IsTyping       bool   `json:"isTyping,omitempty"`

	// call signaling
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	TargetUserID string          `json:"targetUserId,omitempty"`
	IsVideo      bool            `json:"isVideo,omitempty"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

type authOKFrame struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

type callPendingFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pendingCallsFrame struct {
	Type  string              `json:"type"`
	Calls []missedCallPayload `json:"calls"`
}

type missedCallPayload struct {
	CallerID   string    `json:"callerId"`
	CallerName string    `json:"callerName"`
	IsVideo    bool      `json:"isVideo"`
	Timestamp  time.Time `json:"timestamp"`
}

type groupMessageFrame struct {
	Type        string    `json:"type"`
	GroupID     string    `json:"groupId"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	CreatedAt   time.Time `json:"createdAt"`
}

const (
	defaultReadTimeout = 60 * time.Second
	authTimeout        = 10 * time.Second
)

// Handle upgrades HTTP connections to websocket, runs the authentication
// handshake, then processes frames until the client disconnects. The first
// frame must be an auth event; anything else closes the connection.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}

		user, ok := ctl.authenticate(c.Request.Context(), ws)
		if !ok {
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"),
				time.Now().Add(time.Second))
			_ = ws.Close()
			return
		}

		conn := realtime.NewConnection(user.ID, ws)
		ctl.registry.Admit(conn)
		defer func() {
			if ctl.registry.Remove(conn) {
				ctl.coordinator.HandleDisconnect(user.ID)
			}
			conn.Close(websocket.CloseNormalClosure, "session closed")
		}()

		ws.SetReadLimit(1 << 20) // 1MB payload cap
		_ = ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(defaultReadTimeout))
		})

		if payload, err := json.Marshal(authOKFrame{Type: "auth_ok", UserID: user.ID}); err == nil {
			_ = conn.Send(payload)
		}

		ctl.deliverPendingCalls(c.Request.Context(), conn)

		for {
			_, data, err := ws.ReadMessage()
			if err != nil {
				return
			}

			var frame inboundFrame
			if err := json.Unmarshal(data, &frame); err != nil {
				ctl.replyError(conn, "bad_request", "invalid payload")
				continue
			}

			switch frame.Type {
			case "message":
				ctl.handleMessage(c, conn, user.ID, frame)
			case "typing":
				ctl.handleTyping(c, conn, user.ID, frame)
			case "group_message":
				ctl.handleGroupMessage(c, conn, user.ID, frame)
			case "call_offer":
				ctl.handleCallOffer(c, conn, user, frame)
			case "call_answer":
				ctl.coordinator.Answer(user.ID, frame.Answer)
			case "ice_candidate":
				ctl.coordinator.ICECandidate(user.ID, frame.Candidate)
			case "call_reject":
				ctl.coordinator.Reject(user.ID)
			case "call_end":
				ctl.coordinator.End(user.ID)
			case "auth":
				// Already authenticated; duplicate handshakes are ignored.
			default:
				ctl.replyError(conn, "unsupported_type", "unknown frame type")
			}
		}
	}
}

// authenticate reads the handshake frame and resolves the user against the
// identity store. The resolved identifier is trusted for the connection's
// lifetime.
func (ctl *ChatSocketController) authenticate(ctx context.Context, ws *websocket.Conn) (*userport.User, bool) {
	_ = ws.SetReadDeadline(time.Now().Add(authTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, false
	}

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, false
	}
	if frame.Type != "auth" || frame.UserID == "" {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	user, err := ctl.users.FindByID(ctx, frame.UserID)
	if err != nil {
		return nil, false
	}
	return user, true
}

// deliverPendingCalls drains the missed-call queue and replays it to the
// freshly connected user. Draining is destructive; a crash past this point
// loses the notice, which the queue's contract accepts.
func (ctl *ChatSocketController) deliverPendingCalls(ctx context.Context, conn *realtime.Connection) {
	ctx, cancel := context.WithTimeout(ctx, ctl.inflightTimeout)
	defer cancel()

	recs, err := ctl.missed.Drain(ctx, conn.UserID)
	if err != nil {
		ctl.replyError(conn, "internal_error", "failed to load missed calls")
		return
	}
	if len(recs) == 0 {
		return
	}

	calls := make([]missedCallPayload, 0, len(recs))
	for _, rec := range recs {
		calls = append(calls, missedCallPayload{
			CallerID:   rec.CallerID,
			CallerName: rec.CallerName,
			IsVideo:    rec.IsVideo,
			Timestamp:  rec.CreatedAt,
		})
	}
	if payload, err := json.Marshal(pendingCallsFrame{Type: "pending_calls", Calls: calls}); err == nil {
		_ = conn.Send(payload)
	}
}

func (ctl *ChatSocketController) handleMessage(c *gin.Context, conn *realtime.Connection, userID string, frame inboundFrame) {
	if frame.ConversationID == "" {
		ctl.replyError(conn, "bad_request", "conversationId is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	msg, err := ctl.sendMessageUC.Execute(ctx, usecase.SendMessageInput{
		ConversationID: frame.ConversationID,
		SenderID:       userID,
		Content:        frame.Content,
		Kind:           chat.MessageKind(frame.MessageType),
	})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}

	participantIDs, err := ctl.listMembersUC.Execute(ctx, usecase.ListParticipantsInput{ConversationID: frame.ConversationID})
	if err != nil {
		ctl.handleUseCaseError(conn, err)
		return
	}

	// Persistence succeeded above; from here delivery is best-effort and the
	// sender gets the echo through the same path as everyone else.
	ctl.live.RelayMessage(*msg, participantIDs)
}

func (ctl *ChatSocketController) handleTyping(c *gin.Context, conn *realtime.Connection, userID string, frame inboundFrame) {
	if frame.ConversationID == "" {
		ctl.replyError(conn, "bad_request", "conversationId is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	participantIDs, err := ctl.listMembersUC.Execute(ctx, usecase.ListParticipantsInput{ConversationID: frame.ConversationID})
	if err != nil {
		// Typing is ephemeral; a failed membership lookup just drops it.
		return
	}

	isParticipant := false
	recipients := participantIDs[:0:0]
	for _, id := range participantIDs {
		if id == userID {
			isParticipant = true
			continue
		}
		recipients = append(recipients, id)
	}
	if !isParticipant {
		ctl.replyError(conn, "forbidden", "user is not a participant in this conversation")
		return
	}

	ctl.live.RelayTyping(chat.TypingSignal{
		ConversationID: frame.ConversationID,
		UserID:         userID,
		IsTyping:       frame.IsTyping,
	}, recipients)
}

// handleGroupMessage is the one-to-many broadcast path. Group posts are
// persisted by the group service over HTTP; this path only fans out live.
func (ctl *ChatSocketController) handleGroupMessage(c *gin.Context, conn *realtime.Connection, userID string, frame inboundFrame) {
	if frame.GroupID == "" {
		ctl.replyError(conn, "bad_request", "groupId is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	memberIDs, err := ctl.repo.ListGroupMemberIDs(ctx, frame.GroupID)
	if err != nil {
		ctl.replyError(conn, "internal_error", "failed to resolve group members")
		return
	}
	isMember := false
	for _, id := range memberIDs {
		if id == userID {
			isMember = true
			break
		}
	}
	if !isMember {
		ctl.replyError(conn, "forbidden", "user is not a member of this group")
		return
	}

	payload, err := json.Marshal(groupMessageFrame{
		Type:        "group_message",
		GroupID:     frame.GroupID,
		SenderID:    userID,
		Content:     frame.Content,
		MessageType: frame.MessageType,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return
	}
	ctl.registry.NotifyUsers(memberIDs, payload, userID)
}

func (ctl *ChatSocketController) handleCallOffer(c *gin.Context, conn *realtime.Connection, user *userport.User, frame inboundFrame) {
	if frame.TargetUserID == "" {
		ctl.replyError(conn, "bad_request", "targetUserId is required")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), ctl.inflightTimeout)
	defer cancel()

	err := ctl.coordinator.Offer(ctx, call.OfferInput{
		CallerID:       user.ID,
		CallerName:     user.Username,
		CalleeID:       frame.TargetUserID,
		ConversationID: frame.ConversationID,
		IsVideo:        frame.IsVideo,
		Offer:          frame.Offer,
	})
	switch {
	case err == nil:
	case errors.Is(err, call.ErrBusy):
		ctl.replyCallError(conn, "user is busy")
	case errors.Is(err, call.ErrUnreachable):
		if payload, mErr := json.Marshal(callPendingFrame{
			Type:    "call_pending",
			Message: "user is offline; they will see the missed call when they return",
		}); mErr == nil {
			_ = conn.Send(payload)
		}
	default:
		ctl.replyCallError(conn, "failed to start call")
	}
}

func (ctl *ChatSocketController) handleUseCaseError(conn *realtime.Connection, err error) {
	switch {
	case errors.Is(err, usecase.ErrPersistence):
		ctl.replyError(conn, "internal_error", "unexpected persistence error")
	case errors.Is(err, chat.ErrNotParticipant):
		ctl.replyError(conn, "forbidden", "user is not a participant in this conversation")
	default:
		ctl.replyError(conn, "bad_request", err.Error())
	}
}

func (ctl *ChatSocketController) replyError(conn *realtime.Connection, code string, message string) {
	if payload, err := json.Marshal(errorFrame{Type: "error", Code: code, Error: message}); err == nil {
		_ = conn.Send(payload)
	}
}

func (ctl *ChatSocketController) replyCallError(conn *realtime.Connection, message string) {
	if payload, err := json.Marshal(struct {
		Type  string `json:"type"`
		Error string `json:"error"`
	}{Type: "call_error", Error: message}); err == nil {
		_ = conn.Send(payload)
	}
}
