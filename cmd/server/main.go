package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studysync-backend/internal/cache"
	"studysync-backend/internal/config"
	"studysync-backend/internal/database"
	"studysync-backend/internal/handlers"
	"studysync-backend/internal/middleware"
	"studysync-backend/internal/repository"
	"studysync-backend/internal/router"
	"studysync-backend/internal/services"
	"studysync-backend/internal/websocket"
	"studysync-backend/internal/worker"
)

func main() {
	log.Println("Starting StudySync Backend...")

	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()
	log.Println("✓ Environment variables loaded")

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("✗ PostgreSQL connection failed: %v", err)
	}
	defer pool.Close()
	log.Println("✓ PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatalf("✗ Redis connection failed: %v", err)
	}
	defer redisClients.Close()
	log.Println("✓ Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations"); err != nil {
		log.Fatalf("✗ Database migration failed: %v", err)
	}
	log.Println("✓ Database migrations applied")

	// ──── Initialize Repositories ────
	sessionRepo := repository.NewSessionRepo(pool)
	userRepo := repository.NewUserRepo(pool)
	leaderboardCache := cache.NewRedisCache(redisClients.Cache)

	// ──── Initialize Services ────
	clock := services.SystemClock()
	antiCheat := services.NewAntiCheatService(cfg.MaxSessionDurationSeconds)
	analyticsService := services.NewAnalyticsService(userRepo, sessionRepo, clock)
	leaderboardService := services.NewLeaderboardService(sessionRepo, userRepo, leaderboardCache, clock, cfg.LeaderboardMaxEntries)
	leaderboardService.SetPublisher(websocket.NewPublisher(redisClients.PubSub))

	sessionService := services.NewSessionService(
		sessionRepo,
		userRepo,
		antiCheat,
		analyticsService,
		leaderboardService,
		clock,
		cfg.MaxSessionDurationSeconds,
		cfg.AnomalyThreshold,
		time.Duration(cfg.StaleSessionHours)*time.Hour,
	)

	// ──── Step 5: Start Analytics Retry Workers ────
	analyticsQueue := worker.NewQueue(redisClients.Cache)
	sessionService.SetRetryQueue(analyticsQueue)
	workerPool := worker.NewPool(analyticsQueue, sessionRepo, analyticsService, cfg.AnalyticsWorkers)
	workerPool.Start()

	// ──── Step 6: Start Stale Session Sweeper ────
	sweeper := services.NewSweeper(sessionRepo, sessionService, clock, time.Duration(cfg.SweepIntervalSeconds)*time.Second)
	sweeper.Start()

	// ──── Step 7: Start WebSocket Hub ────
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret)
	wsHub := websocket.NewHub(redisClients.PubSub, jwtAuth)
	log.Println("✓ WebSocket hub started")

	// ──── Initialize Handlers ────
	sessionHandler := handlers.NewSessionHandler(sessionService)
	leaderboardHandler := handlers.NewLeaderboardHandler(leaderboardService)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(jwtAuth, sessionHandler, leaderboardHandler, wsHub, cfg.FrontendURL)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down...")
		sweeper.Stop()
		workerPool.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	log.Printf("✓ StudySync Backend ready on http://localhost:%s", cfg.Port)
	log.Printf("  API: http://localhost:%s/api/v1", cfg.Port)
	log.Printf("  WS:  ws://localhost:%s/api/v1/ws", cfg.Port)

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}
}
