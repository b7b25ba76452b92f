package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"commons-chat/internal/auth"
	"commons-chat/internal/channels"
	"commons-chat/internal/config"
	"commons-chat/internal/conversations"
	chatredis "commons-chat/internal/redis"
	"commons-chat/internal/send"
	"commons-chat/internal/server"
	"commons-chat/internal/store"
	"commons-chat/pkg/logger"
)

func main() {
	// Missing .env is fine in containers where the environment is injected.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	l := logger.New(cfg.Server.Environment)
	logger.SetGlobalLogger(l)
	defer l.Logger.Sync()

	db, err := store.Open(cfg.Database)
	if err != nil {
		l.Logger.Fatal("database connection failed", zap.Error(err))
	}
	st := store.NewPostgresStore(db)

	redisClient := chatredis.NewClient(cfg.Redis)
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		l.Logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisClient.Close()

	broadcaster := chatredis.NewBroadcaster(redisClient, l.Logger)
	registry := channels.NewRegistry(broadcaster, l.Logger)
	pipeline := send.NewPipeline(registry, st, l.Logger)
	aggregator := conversations.NewAggregator(st)
	verifier := auth.NewTokenVerifier(cfg.Auth.JWTSecret)

	srv := server.New(cfg, registry, pipeline, aggregator, st, verifier, l)

	httpServer := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: srv.Handler(),
	}

	go func() {
		l.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv.Shutdown()
	if err := httpServer.Shutdown(ctx); err != nil {
		l.Logger.Error("shutdown failed", zap.Error(err))
	}
}
