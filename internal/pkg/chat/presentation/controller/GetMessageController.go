package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"messenger/internal/pkg/chat/application/usecase"
	"messenger/internal/pkg/chat/persistence/repository/adapter"
)

// GetMessageController handles fetching messages by chat ID (one controller per endpoint)
type GetMessageController struct {
	UC *usecase.GetMessageUseCase
}

func NewGetMessageController(pool *pgxpool.Pool) *GetMessageController {
	repo := adapter.NewPgChatRepository(pool)
	return &GetMessageController{UC: usecase.NewGetMessageUseCase(repo)}
}

func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Param("chatId")
		if chatID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
			return
		}

		limit := 50
		offset := 0
		if v := c.Query("limit"); v != "" {
			if i, err := strconv.Atoi(v); err == nil && i > 0 {
				limit = i
			}
		}
		if v := c.Query("offset"); v != "" {
			if i, err := strconv.Atoi(v); err == nil && i >= 0 {
				offset = i
			}
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		msgs, err := h.UC.Execute(ctx, usecase.GetMessageInput{
			ConversationID: chatID,
			Limit:          limit,
			Offset:         offset,
		})
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, usecase.ErrPersistence) {
				status = http.StatusInternalServerError
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"messages": msgs})
	}
}
