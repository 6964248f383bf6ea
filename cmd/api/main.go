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

	"dispo-crm/internal/agents"
	"dispo-crm/internal/audit"
	"dispo-crm/internal/auth"
	"dispo-crm/internal/callcontrol"
	"dispo-crm/internal/calls"
	"dispo-crm/internal/config"
	"dispo-crm/internal/httpapi"
	"dispo-crm/internal/metrics"
	"dispo-crm/internal/migrate"
	"dispo-crm/internal/reporting"
	"dispo-crm/internal/telephony"
	"dispo-crm/pkg/logger"
	"dispo-crm/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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

	log := logger.New(cfg.App.Env, cfg.App.LogLevel)
	slog.SetDefault(log)

	if cfg.IsProduction() {
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

	if err := migrate.Up(rootCtx, db, log); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	provider, err := callcontrol.New(callcontrol.Config{
		BaseURL: cfg.CallControl.APIURL,
		APIKey:  cfg.CallControl.APIKey,
		Timeout: cfg.CallControl.Timeout,
		RPS:     cfg.CallControl.RPS,
		Burst:   cfg.CallControl.Burst,
		Metrics: m,
	}, uuid.NewString)
	if err != nil {
		log.Error("call-control client init failed", "err", err)
		os.Exit(1)
	}
	if cfg.CallControl.ConnectionID == "" || cfg.CallControl.CallerID == "" {
		log.Warn("consult dial settings missing; attended transfers will fail until configured")
	}

	callRepo := calls.NewPostgresRepo(db)
	engine, err := calls.NewService(calls.Deps{
		Provider:    provider,
		ActiveCalls: callRepo,
		Transfers:   callRepo,
		History:     callRepo,
		Presence:    agents.NewPostgresRepo(db),
		Audit:       audit.NewService(audit.NewPostgresRepo(db)),
		Locker:      utils.NewRedisLocker(rdb, "dispo:lock:"),
		Metrics:     m,
	}, calls.Options{
		ConnectionID:    cfg.CallControl.ConnectionID,
		CallerID:        cfg.CallControl.CallerID,
		HoldMusicURL:    cfg.CallControl.HoldMusicURL,
		HoldPlaybackLeg: cfg.CallControl.HoldPlaybackLeg,
		SIPDomain:       cfg.CallControl.SIPDomain,
		LockTTL:         cfg.Locks.AgentLockTTL,
	})
	if err != nil {
		log.Error("call engine init failed", "err", err)
		os.Exit(1)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		handlers: httpapi.Handlers{
			Auth:    authManager,
			Calls:   engine,
			Reports: reporting.NewService(callRepo),
		},
		webhook: telephony.CallControlWebhookHandler{
			Events: engine,
			Secret: cfg.CallControl.WebhookSecret,
		},
		authMW:    auth.RequireAccessToken(authManager),
		gatherer:  reg,
		devTokens: cfg.App.Env == "local" || cfg.App.Env == "dev",
		ready: func(c *gin.Context) error {
			if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
				return err
			}
			return rdb.Ping(c.Request.Context()).Err()
		},
	})

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
