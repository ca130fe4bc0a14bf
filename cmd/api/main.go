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

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"

	"voice-agent-platform/internal/auth"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/config"
	"voice-agent-platform/internal/dispatch"
	"voice-agent-platform/pkg/logger"
	"voice-agent-platform/pkg/utils"
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

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Call records: Postgres when configured, in-memory otherwise.
	callsRepo := calls.Repository(calls.NewMemoryRepository())
	if cfg.DB.Enabled() {
		db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
		if err != nil {
			log.Error("postgres init failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		callsRepo = calls.NewPostgresRepository(db)
	}
	callsSvc := calls.NewService(callsRepo, log)

	// Dispatch dedupe guard: Redis when available, else per-process.
	var guard dispatch.Guard = dispatch.NoGuard{}
	if cfg.Dispatch.DedupeCalls {
		if cfg.Redis.Enabled() {
			rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
			if err != nil {
				log.Error("redis init failed", "err", err)
				os.Exit(1)
			}
			defer rdb.Close()
			guard = dispatch.NewRedisGuard(rdb, cfg.Dispatch.DedupeTTL)
		} else {
			guard = dispatch.NewMemoryGuard(cfg.Dispatch.DedupeTTL)
		}
	}

	gateway := dispatch.NewGateway(cfg.Dispatch.CLIPath, cfg.Agent.Name, nil, log)
	handler := dispatch.Handler{Gateway: gateway, Guard: guard, Calls: callsSvc}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	r.Use(dispatch.CORS())

	registerRoutes(r, cfg, handler, callsSvc, log)

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
}

func registerRoutes(r *gin.Engine, cfg config.Config, h dispatch.Handler, callsSvc *calls.Service, log *slog.Logger) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// /start_call is open unless a JWT secret is configured.
	group := r.Group("/")
	if cfg.Auth.Enabled() {
		manager, err := auth.NewManager(cfg.Auth)
		if err != nil {
			log.Error("auth init failed", "err", err)
			os.Exit(1)
		}
		group.Use(auth.RequireScope(manager, auth.ScopeDispatch))
	}
	group.POST("/start_call", h.HandleStartCall)

	// Call records, for operators checking what happened to a call.
	group.GET("/calls/:room", func(c *gin.Context) {
		room := c.Param("room")
		a, err := callsSvc.Attempt(c.Request.Context(), room)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"detail": "no call recorded for room"})
			return
		}
		events, _ := callsSvc.Events(c.Request.Context(), room)
		c.JSON(http.StatusOK, gin.H{"attempt": a, "events": events})
	})
}
