package http

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	qport "messenger/internal/infrastructure/queue/port"
	"messenger/internal/infrastructure/realtime"
	"messenger/internal/pkg/call"
	repoAdapter "messenger/internal/pkg/chat/persistence/repository/adapter"
	"messenger/internal/pkg/chat/presentation/controller"
	"messenger/internal/pkg/presence"
	"messenger/internal/pkg/relay"
	userAdapter "messenger/internal/repository/adapter"
)

// Deps carries the realtime collaborators the chat endpoints need.
type Deps struct {
	Registry    *realtime.Registry
	Relay       *relay.Relay
	Coordinator *call.Coordinator
	Missed      call.MissedCallStore
	Presence    *presence.Notifier
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, pool *pgxpool.Pool, client qport.Client, deps Deps) {
	chatRepo := repoAdapter.NewPgChatRepository(pool)
	userRepo := userAdapter.NewPgUserRepository(pool)

	sendMsgCtl := controller.NewSendMessageController(client)
	getMsgCtl := controller.NewGetMessageController(pool)
	presenceCtl := controller.NewPresenceController(pool, deps.Presence)
	socketCtl := controller.NewChatSocketController(userRepo, chatRepo, deps.Registry, deps.Relay, deps.Coordinator, deps.Missed)

	// POST /api/v1/chat/:chatId -> enqueue a message into a chat
	g.POST("/chat/:chatId", sendMsgCtl.Handle())

	// GET /api/v1/chat/:chatId/messages -> fetch messages by chat id
	g.GET("/chat/:chatId/messages", getMsgCtl.Handle())

	// GET /api/v1/presence/:userId -> last known status for a user
	g.GET("/presence/:userId", presenceCtl.Handle())

	// GET /api/v1/chat/ws -> websocket endpoint for realtime traffic
	g.GET("/chat/ws", socketCtl.Handle())
}
