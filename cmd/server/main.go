package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/cardsync/internal/config"
	"github.com/prudhvinik1/cardsync/internal/database"
	"github.com/prudhvinik1/cardsync/internal/handlers"
	"github.com/prudhvinik1/cardsync/internal/replication"
	"github.com/prudhvinik1/cardsync/internal/repositories"
	"github.com/prudhvinik1/cardsync/internal/services"
)

func main() {
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Initialize database connections
	postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create postgres pool: %v", err)
	}
	defer postgresPool.Close()

	if err := database.Migrate(ctx, postgresPool); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to create redis client: %v", err)
	}
	defer redisClient.Close()

	// One publisher per entity type for the whole process; the bridge
	// carries events between server instances.
	hub := replication.NewDefaultHub(logger)
	bridge := replication.NewRedisBridge(redisClient, hub, cfg.RedisChannelPrefix, logger)
	go func() {
		if err := bridge.Run(ctx); err != nil {
			log.Fatalf("Redis bridge failed: %v", err)
		}
	}()

	repos := repositories.NewPostgresReplicationRepositories(postgresPool)
	syncService := services.NewSyncService(repos, bridge, cfg.PullBatchSize, logger)
	tokenService := services.NewTokenService(cfg.JWTSecret, cfg.JWTExpiry)

	router := handlers.NewRouter(
		handlers.NewSyncHandler(syncService),
		handlers.NewStreamHandler(hub, cfg.StreamHeartbeat, logger),
		tokenService,
	)

	// Start Server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: router,
		// Streams must end before Shutdown can finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	// graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting server on port %s", cfg.ServerPort)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server stopped gracefully")
}
