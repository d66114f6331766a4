package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"logitalk/internal/auth"
	"logitalk/internal/config"
	"logitalk/internal/db"
	"logitalk/internal/email"
	"logitalk/internal/handlers"
	"logitalk/internal/logging"
	"logitalk/internal/middleware"
	"logitalk/internal/observability"
	"logitalk/internal/rabbitmq"
	"logitalk/internal/repositories"
	"logitalk/internal/telemetry"
	"logitalk/internal/ws"
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer logger.Sync()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}

	shutdownTracing, err := telemetry.SetupTracing(context.Background(), "logitalk", cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AuditExchange)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready", zap.String("mode", rabbitmq.PublisherMode(publisher)))

	audit := telemetry.NewAuditEmitter(publisher, "audit.logitalk", "logitalk", cfg.Environment)

	userRepo := repositories.NewUserRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.RefreshSecret, cfg.AccessTTL, cfg.RefreshTTL)
	ledger := auth.NewOTPLedger(cfg.OTPTTL)
	mailer := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)

	hub := ws.NewHub()
	gateway := ws.NewGateway(hub, userRepo, messageRepo, tokens, logger)

	secureCookies := cfg.Environment == "production"
	authHandler := handlers.NewAuthHandler(userRepo, tokens, ledger, mailer, audit, logger, cfg.RefreshTTL, secureCookies)
	profileHandler := handlers.NewProfileHandler(userRepo, cfg.AvatarDir)
	chatHandler := handlers.NewChatHandler(userRepo, messageRepo, hub)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("logitalk"))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(tokens)

	router.POST("/api/users/register", authHandler.Register)
	router.POST("/api/users/verify-otp", authHandler.VerifyOTP)
	router.POST("/api/users/login", authHandler.Login)
	router.POST("/api/users/refresh", authHandler.Refresh)
	router.GET("/api/users/profile", authMiddleware, authHandler.Profile)
	router.GET("/api/users/search", authMiddleware, authHandler.Search)
	router.DELETE("/api/users", authMiddleware, authHandler.Delete)

	router.GET("/api/profile/avatars", authMiddleware, profileHandler.Avatars)
	router.PUT("/api/profile/avatar", authMiddleware, profileHandler.SetAvatar)
	router.Static("/assets/avatars", cfg.AvatarDir)

	router.GET("/api/chats", authMiddleware, chatHandler.ListSummaries)
	router.POST("/api/chats/start", authMiddleware, chatHandler.StartChat)
	router.GET("/api/chats/:user_id", authMiddleware, chatHandler.GetHistory)
	router.POST("/api/chats/:user_id/read", authMiddleware, chatHandler.MarkRead)

	router.GET("/ws", gateway.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, audit, cfg.DebugRoutes)

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := router.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
