package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	cacheport "messenger/internal/infrastructure/cache/port"
	"messenger/internal/pkg/presence"
	userAdapter "messenger/internal/repository/adapter"
	userport "messenger/internal/repository/port"
)

// PresenceController serves a user's last known status from the presence
// cache, falling back to the user record when the cache has no answer.
type PresenceController struct {
	notifier *presence.Notifier
	users    userport.UserRepository
}

func NewPresenceController(pool *pgxpool.Pool, notifier *presence.Notifier) *PresenceController {
	return &PresenceController{
		notifier: notifier,
		users:    userAdapter.NewPgUserRepository(pool),
	}
}

func (h *PresenceController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")
		if userID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		status, err := h.notifier.CachedStatus(ctx, userID)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": status})
			return
		}
		if !errors.Is(err, cacheport.ErrMiss) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "presence lookup failed"})
			return
		}

		user, err := h.users.FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, userAdapter.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "presence lookup failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "status": user.Status})
	}
}
