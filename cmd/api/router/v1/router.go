package v1

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	qport "messenger/internal/infrastructure/queue/port"
	httpHandler "messenger/internal/pkg/chat/presentation/http"
)

// RegisterRoutes mounts all version 1 API routes under /api/v1
func RegisterRoutes(r *gin.Engine, pool *pgxpool.Pool, client qport.Client, deps httpHandler.Deps) {
	v1 := r.Group("/api/v1")
	// Pass the DB connection, queue client and realtime collaborators down to the HTTP layer
	httpHandler.RegisterRoutes(v1, pool, client, deps)
}
