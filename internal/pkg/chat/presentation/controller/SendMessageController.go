package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	queueport "messenger/internal/infrastructure/queue/port"
	"messenger/internal/pkg/chat/application/task"
)

// SendMessageController handles the send-message endpoint only (one controller per endpoint)
type SendMessageController struct {
	Q queueport.Client
}

func NewSendMessageController(client queueport.Client) *SendMessageController {
	return &SendMessageController{Q: client}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	SenderID    string `json:"sender_id" binding:"required"`
	Content     string `json:"content" binding:"required"`
	MessageType string `json:"message_type"`
}

// Handle returns a gin handler that enqueues a background task to send a message
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		chatID := c.Param("chatId")
		if chatID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "chatId is required"})
			return
		}

		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		payload := task.SendMessageTaskPayload{
			ConversationID: chatID,
			SenderID:       req.SenderID,
			Content:        req.Content,
			Kind:           req.MessageType,
		}
		b, err := json.Marshal(payload)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to encode task payload"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		opts := queueport.EnqueueOption{Queue: "chat", MaxRetry: 20}
		id, err := h.Q.Enqueue(ctx, queueport.Task{Type: task.SendMessageTaskType, Payload: b}, opts)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "failed to enqueue message"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"status":    "queued",
			"task_id":   id,
			"chat_id":   chatID,
			"sender_id": req.SenderID,
		})
	}
}
