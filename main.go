package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"toolswap-chat/internal/config"
	"toolswap-chat/internal/db"
	"toolswap-chat/internal/handlers"
	"toolswap-chat/internal/middleware"
	"toolswap-chat/internal/observability"
	"toolswap-chat/internal/presence"
	"toolswap-chat/internal/rabbitmq"
	"toolswap-chat/internal/repositories"
	"toolswap-chat/internal/telemetry"
	"toolswap-chat/internal/ws"
)

const serviceName = "toolswap-chat"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx := context.Background()

	shutdownTracing, err := telemetry.InitTracing(ctx, cfg.Telemetry.OTLPEndpoint, serviceName, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to init tracing: %v", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Printf("tracing shutdown error: %v", err)
		}
	}()

	database, err := db.Connect(cfg.Database.DSN)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	// Event and audit publishing degrade to noop when AMQP is unavailable.
	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer publisher.Close()
	if mode := rabbitmq.Mode(publisher); mode == "noop" {
		log.Printf("audit publisher mode=%s reason=%q", mode, rabbitmq.NoopReason(publisher))
	}
	auditEmitter := telemetry.NewAuditEmitter(publisher, "audit.chat", serviceName, cfg.Environment)

	if amqpPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange); err != nil {
		log.Printf("ws event publishing disabled: %v", err)
	} else {
		observability.SetPublisher(amqpPublisher)
		defer amqpPublisher.Close()
	}

	var rateLimitRepo repositories.RateLimitRepository
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		rateLimitRepo = repositories.NewRateLimitRepo(redisClient)
	} else {
		log.Printf("rate limiting disabled: no redis address")
	}

	convRepo := repositories.NewConversationRepo(database)
	messageRepo := repositories.NewMessageRepo(database)
	userRepo := repositories.NewUserRepo(database)
	toolRepo := repositories.NewToolRepo(database)

	hub := ws.NewHub()
	registry := presence.NewRegistry()
	auth := middleware.NewAuthenticator(cfg.JWT.Secret)

	chatHandler := handlers.NewChatHandler(convRepo, messageRepo, userRepo, toolRepo, hub)
	gateway := ws.NewGateway(hub, registry, messageRepo, auth)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(serviceName))
	router.Use(observability.HTTPMetricsMiddleware())
	router.Use(middleware.RateLimitMiddleware(rateLimitRepo))

	authMiddleware := middleware.AuthMiddleware(auth)

	router.GET("/chat/conversations", authMiddleware, chatHandler.ListConversations)
	router.GET("/chat/conversations/:tool_id/:other_user_id", authMiddleware, chatHandler.GetOrCreateConversation)
	router.POST("/chat/messages", authMiddleware, chatHandler.PostMessage)

	router.GET("/ws", gateway.Handle)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	handlers.RegisterDebugRoutes(router, auditEmitter, registry, cfg.DebugRoutes)

	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
