package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/valkirev/auth_service/internal/config"
	"github.com/valkirev/auth_service/internal/events"
	"github.com/valkirev/auth_service/internal/httpserver"
	"github.com/valkirev/auth_service/internal/logging"
	"github.com/valkirev/auth_service/internal/middleware"
	"github.com/valkirev/auth_service/internal/repo"
	"github.com/valkirev/auth_service/internal/service"
	"github.com/valkirev/auth_service/internal/session"
	"github.com/valkirev/auth_service/internal/tokens"
)

func main() {
	cfg := config.Load()
	config.MustNonEmpty(cfg.DatabaseURL, "DATABASE_URL")
	config.MustNonEmpty(cfg.JWTKeys, "JWT_KEYS")

	logger := logging.New(cfg.LogLevel)
	slog.SetDefault(logger)

	keys, err := tokens.ParseKeys(cfg.JWTKeys)
	if err != nil {
		log.Fatalf("jwt keys: %v", err)
	}
	codec, err := tokens.NewCodec(keys, cfg.JWTLeeway)
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	initCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := config.OpenDB(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db init: %v", err)
	}

	var sessions session.Cache
	if cfg.RedisURL != "" {
		redisCache, err := session.NewRedisCache(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis init: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err = redisCache.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("redis ping: %v", err)
		}
		defer redisCache.Close()
		sessions = redisCache
	} else {
		logger.Warn("REDIS_URL is empty, using in-process session cache")
		sessions = session.NewMemoryCache()
	}

	producer := events.NewProducer(cfg.KafkaBrokers)
	defer producer.Close()

	svc := &service.AuthService{
		Users:      &repo.UserRepo{DB: db},
		Sessions:   sessions,
		Codec:      codec,
		Producer:   producer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
		OpTimeout:  cfg.OpTimeout,
	}

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = 10 * time.Second
	e.Server.WriteTimeout = 15 * time.Second
	e.Server.ReadHeaderTimeout = 3 * time.Second
	e.Use(middleware.RequestLogger(logger))

	httpserver.Register(e, &httpserver.Deps{
		Auth:  &httpserver.AuthHTTP{Svc: svc},
		Users: &httpserver.UsersHTTP{Svc: svc},
		RBAC:  &httpserver.RBACHTTP{Svc: svc},
		Codec: codec,
	})

	go func() {
		addr := fmt.Sprintf(":%d", cfg.ServerPort)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("echo start: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("echo shutdown", "error", err)
	}
}
