package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/lo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"group-chat-service/internal/auth"
	"group-chat-service/internal/chat"
	"group-chat-service/internal/config"
	"group-chat-service/internal/db"
	"group-chat-service/internal/delivery"
	"group-chat-service/internal/handlers"
	"group-chat-service/internal/health"
	"group-chat-service/internal/keylock"
	"group-chat-service/internal/middleware"
	"group-chat-service/internal/moderation"
	"group-chat-service/internal/observability"
	"group-chat-service/internal/presence"
	"group-chat-service/internal/rabbitmq"
	"group-chat-service/internal/repositories"
	"group-chat-service/internal/telemetry"
	"group-chat-service/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, cfg.OTLPEndpoint, cfg.ServiceName, cfg.Environment)
	if err != nil {
		logger.Error("failed to set up tracing", slog.Any("error", err))
		os.Exit(1)
	}

	database, err := db.Connect(ctx, cfg.DBDSN, logger)
	if err != nil {
		logger.Error("failed to connect to db", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logger.Info("event publisher ready",
		slog.String("mode", rabbitmq.PublisherMode(publisher)),
		slog.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AuditRoutingKey, cfg.ServiceName, cfg.Environment, logger)

	groupRepo := repositories.NewGroupRepo(database)
	membershipRepo := repositories.NewMembershipRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	registry := presence.NewRegistry(cfg.PresenceShards)
	if err := observability.RegisterPresenceGauge(func() float64 { return float64(registry.Count()) }); err != nil {
		logger.Warn("presence gauge not registered", slog.Any("error", err))
	}

	router := delivery.NewRouter(registry, membershipRepo, cfg.PushTimeout, logger)
	memberLocks := keylock.New()
	coordinator := moderation.NewCoordinator(groupRepo, membershipRepo, router, audit, memberLocks, logger)
	chatService := chat.NewService(groupRepo, membershipRepo, messageRepo, router, audit, memberLocks, cfg.HistoryPageSize, logger)

	verifier := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	groupHandler := handlers.NewGroupHandler(chatService, coordinator, audit)
	wsHandler := ws.NewHandler(registry, chatService, coordinator, verifier, ws.Options{
		SendBuffer:     cfg.SessionBuffer,
		AllowedOrigins: splitList(cfg.WSOrigins),
	}, logger)

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		otelgin.Middleware(cfg.ServiceName),
		middleware.RequestID(),
		observability.HTTPMetricsMiddleware(),
	)

	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/ws", wsHandler.Handle)

	api := engine.Group("/", middleware.AuthMiddleware(verifier))
	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups", groupHandler.ListGroups)
	api.GET("/groups/admin", groupHandler.ListAdminGroups)
	api.GET("/groups/:group_id", groupHandler.GetGroup)
	api.DELETE("/groups/:group_id", groupHandler.DeleteGroup)
	api.GET("/groups/:group_id/messages", groupHandler.GetGroupMessages)
	api.POST("/groups/:group_id/messages", groupHandler.PostGroupMessage)
	api.GET("/groups/:group_id/messages/search", groupHandler.SearchMessages)
	api.POST("/messages/:message_id/read", groupHandler.MarkRead)
	api.PATCH("/groups/:group_id/members", groupHandler.ModerateMember)
	api.POST("/groups/:group_id/members", groupHandler.AddMember)
	api.DELETE("/groups/:group_id/members/:user_id", groupHandler.RemoveMember)
	handlers.RegisterDebugRoutes(api, audit, registry, cfg.DebugRoutes)

	healthServer := health.NewServer(database, logger)
	healthServer.Check(ctx)
	go healthServer.Watch(ctx, 15*time.Second)
	go func() {
		if err := healthServer.Serve(":" + cfg.GRPCPort); err != nil {
			logger.Error("grpc health server stopped", slog.Any("error", err))
		}
	}()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("http server listening", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	healthServer.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", slog.Any("error", err))
	}
}

func splitList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string { return strings.TrimSpace(s) }))
}
