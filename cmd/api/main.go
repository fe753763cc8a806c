package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	cacheAdapter "messenger/internal/infrastructure/cache/adapter"
	cacheport "messenger/internal/infrastructure/cache/port"
	"messenger/internal/infrastructure/database"
	queueAdapter "messenger/internal/infrastructure/queue/adapter"
	"messenger/internal/infrastructure/realtime"
	"messenger/internal/pkg/call"
	callAdapter "messenger/internal/pkg/call/persistence/repository/adapter"
	"messenger/internal/pkg/chat/application/task"
	chatAdapter "messenger/internal/pkg/chat/persistence/repository/adapter"
	httpHandler "messenger/internal/pkg/chat/presentation/http"
	"messenger/internal/pkg/presence"
	"messenger/internal/pkg/relay"
	userAdapter "messenger/internal/repository/adapter"

	v1 "messenger/cmd/api/router/v1"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found or could not be loaded: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to the database on startup
	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := database.NewPoolFromEnv(connectCtx)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer pool.Close()

	// Presence cache is optional; without Redis the core still relays.
	var cache cacheport.Cache
	if redisCache, err := cacheAdapter.NewRedisAdapter(); err != nil {
		log.Printf("Warning: presence cache disabled: %v", err)
	} else {
		cache = redisCache
		defer redisCache.Close()
	}

	// Realtime core: registry -> relay/presence/coordinator.
	registry := realtime.NewRegistry()
	defer registry.Close()

	live := relay.New(registry)
	defer live.Stop()

	chatRepo := chatAdapter.NewPgChatRepository(pool)
	userRepo := userAdapter.NewPgUserRepository(pool)
	notifier := presence.NewNotifier(registry, chatRepo, cache, userRepo)
	registry.OnTransition(func(userID string, online bool) {
		status := presence.StatusOnline
		if !online {
			status = presence.StatusOffline
		}
		broadcastCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		notifier.BroadcastStatus(broadcastCtx, userID, status)
	})

	missedRepo := callAdapter.NewPgMissedCallRepository(pool)
	coordinator := call.NewCoordinator(registry, missedRepo)

	// Background queue: enqueue client for the HTTP send path, worker server
	// for the chat:send_message task.
	queueClient, err := queueAdapter.NewAsynqClientFromEnv()
	if err != nil {
		log.Fatalf("failed to create queue client: %v", err)
	}
	defer queueClient.Close()

	queueServer, err := queueAdapter.NewAsynqServer()
	if err != nil {
		log.Fatalf("failed to create queue server: %v", err)
	}
	task.RegisterSendMessageTask(queueServer, pool, live)
	go func() {
		if err := queueServer.Run(ctx); err != nil {
			log.Printf("queue server stopped: %v", err)
		}
	}()

	r := gin.Default()

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "OK",
		})
	})

	v1.RegisterRoutes(r, pool, queueClient, httpHandler.Deps{
		Registry:    registry,
		Relay:       live,
		Coordinator: coordinator,
		Missed:      missedRepo,
		Presence:    notifier,
	})

	// Start HTTP server (blocks until shutdown)
	if err := r.Run(); err != nil {
		log.Fatalf("http server stopped: %v", err)
	}
}
