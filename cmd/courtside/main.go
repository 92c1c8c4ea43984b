package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"courtside/internal/broker"
	"courtside/internal/channel"
	"courtside/internal/config"
	"courtside/internal/gateway"
	"courtside/internal/logging"
	"courtside/internal/ratelimit"
	"courtside/internal/rooms"
	"courtside/internal/server"
	"courtside/internal/storage"
)

func main() {
	configPath := flag.String("config", "courtside.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logging.New(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.SQLitePath)
	if err != nil {
		log.Error("open event store", slog.Any("err", err))
		os.Exit(1)
	}
	defer store.Close()

	var bridge broker.Bridge
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Error("redis unreachable", slog.String("addr", cfg.RedisAddr), slog.Any("err", err))
			os.Exit(1)
		}
		rb := broker.NewRedis(client, cfg.History.TTL.Std(), log)
		defer rb.Close()
		bridge = rb
		log.Info("using redis bridge", slog.String("addr", cfg.RedisAddr))
	} else {
		bridge = broker.NewMemory(cfg.History.TTL.Std())
		log.Info("using in-process bridge")
	}

	limiter := ratelimit.New(cfg.Chat.RateLimit, cfg.Chat.RateWindow.Std())
	gw := gateway.New(rooms.NewRegistry(),
		channel.NewChat(bridge, cfg.History.ChatSize, log),
		channel.NewEvents(bridge, store, cfg.History.EventSize, log),
		limiter, cfg.Replay, log)

	// Periodic sweep bounds rate-limit memory even without disconnects.
	go func() {
		ticker := time.NewTicker(cfg.Chat.RateWindow.Std())
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				limiter.Sweep()
			case <-ctx.Done():
				return
			}
		}
	}()

	httpSrv := &http.Server{
		Addr:    cfg.Listen,
		Handler: server.New(gw, log).Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("courtside gateway listening", slog.String("addr", cfg.Listen))
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", slog.Any("err", err))
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
