package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callerid-rotation/internal/allocate"
	"callerid-rotation/internal/auth"
	"callerid-rotation/internal/config"
	"callerid-rotation/internal/coord"
	"callerid-rotation/internal/history"
	"callerid-rotation/internal/httpapi"
	"callerid-rotation/internal/pool"
	"callerid-rotation/pkg/logger"
	"callerid-rotation/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := pool.EnsureSchema(rootCtx, db); err != nil {
		log.Error("schema apply failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	poolStore := pool.NewPostgresStore(db)
	coordStore := coord.NewRedisStore(rdb)

	allocator := allocate.NewService(poolStore, coordStore, allocate.Config{
		ReservationTTL:          cfg.Rotation.ReservationTTL,
		AgentRateLimitPerMinute: cfg.Rotation.AgentRateLimitPerMinute,
		CandidateScanLimit:      cfg.Rotation.CandidateScanLimit,
		RequestDeadline:         cfg.Rotation.RequestDeadline,
	}, log)

	historySvc := history.NewService(history.NewPostgresRepo(db), log)

	handlers := httpapi.Handlers{
		Auth:             authManager,
		Allocator:        allocator,
		Pool:             poolStore,
		Coord:            coordStore,
		History:          historySvc,
		DefaultHourlyCap: cfg.Rotation.DefaultHourlyCap,
		DefaultDailyCap:  cfg.Rotation.DefaultDailyCap,
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, handlers, authManager, deps{db: db, redis: rdb})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
