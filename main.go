package main

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"trip-collab-service/internal/config"
	"trip-collab-service/internal/db"
	"trip-collab-service/internal/handlers"
	"trip-collab-service/internal/identity"
	"trip-collab-service/internal/locks"
	"trip-collab-service/internal/middleware"
	"trip-collab-service/internal/observability"
	"trip-collab-service/internal/rabbitmq"
	"trip-collab-service/internal/repositories"
	"trip-collab-service/internal/telemetry"
	"trip-collab-service/internal/ws"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.ConnectionString())
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}

	ctx := context.Background()
	if cfg.Otel.Endpoint != "" {
		shutdown, err := observability.InitTracing(ctx, cfg.Otel.Endpoint, cfg.App.Name, cfg.App.Environment)
		if err != nil {
			log.Printf("tracing disabled: %v", err)
		} else {
			defer shutdown(ctx)
		}
	}

	if cfg.AMQP.URL != "" {
		eventPublisher, err := observability.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			log.Printf("event mirror disabled: %v", err)
		} else {
			observability.SetPublisher(eventPublisher)
			defer eventPublisher.Close()
		}
	}

	auditPublisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	defer auditPublisher.Close()
	log.Printf("audit publisher mode=%s", rabbitmq.PublisherMode(auditPublisher))
	auditEmitter := telemetry.NewAuditEmitter(auditPublisher, cfg.AMQP.AuditRouting, cfg.App.Name, cfg.App.Environment)

	membershipRepo := repositories.NewMembershipRepo(database)
	expenseRepo := repositories.NewExpenseRepo(database)

	resolver := identity.NewJWTResolver(cfg.Auth.JWTSecret)
	hub := ws.NewHub()
	tripLocks := locks.NewKeyedMutex()

	tripHandler := handlers.NewTripHandler(membershipRepo, hub, tripLocks, auditEmitter)
	expenseHandler := handlers.NewExpenseHandler(membershipRepo, expenseRepo, hub, tripLocks, auditEmitter)
	streamHandler := ws.NewStreamHandler(hub, membershipRepo, resolver, ws.StreamConfig{
		HeartbeatInterval: cfg.Stream.HeartbeatInterval,
		IdleTimeout:       cfg.Stream.IdleTimeout,
		SendBuffer:        cfg.Stream.SendBuffer,
	})

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(cfg.App.Name))
	router.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(resolver)

	router.POST("/trips", authMiddleware, tripHandler.CreateTrip)
	router.GET("/trips/:trip_id/members", authMiddleware, tripHandler.ListMembers)
	router.PUT("/trips/:trip_id/members/:user_id", authMiddleware, tripHandler.AssignMember)
	router.DELETE("/trips/:trip_id/members/:user_id", authMiddleware, tripHandler.RemoveMember)

	router.POST("/trips/:trip_id/expenses", authMiddleware, expenseHandler.CreateExpense)
	router.GET("/trips/:trip_id/expenses", authMiddleware, expenseHandler.ListExpenses)
	router.GET("/trips/:trip_id/expenses/:expense_id", authMiddleware, expenseHandler.GetExpense)
	router.PUT("/trips/:trip_id/expenses/:expense_id", authMiddleware, expenseHandler.UpdateExpense)
	router.DELETE("/trips/:trip_id/expenses/:expense_id", authMiddleware, expenseHandler.DeleteExpense)
	router.POST("/trips/:trip_id/expenses/:expense_id/settle", authMiddleware, expenseHandler.SettleExpense)
	router.GET("/trips/:trip_id/summary", authMiddleware, expenseHandler.GetSummary)

	router.GET("/ws", streamHandler.Handle)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers.RegisterDebugRoutes(router, auditEmitter, cfg.App.Debug)

	if err := router.Run(fmt.Sprintf(":%d", cfg.App.Port)); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
