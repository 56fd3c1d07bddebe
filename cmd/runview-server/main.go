// cmd/runview-server: Dashboard + 后端事件接入主入口。
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/multi-agent/run-transcript/internal/config"
	"github.com/multi-agent/run-transcript/internal/dashboard"
	"github.com/multi-agent/run-transcript/internal/database"
	"github.com/multi-agent/run-transcript/internal/ingest"
	"github.com/multi-agent/run-transcript/internal/session"
	"github.com/multi-agent/run-transcript/internal/store"
	"github.com/multi-agent/run-transcript/pkg/logger"
	"github.com/multi-agent/run-transcript/pkg/util"
)

// hydrateLimit 启动时恢复到内存会话的最近 run 数。
const hydrateLimit = 200

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logger.Fatal("config load failed", logger.Any(logger.FieldError, err))
	}
	logger.Init(cfg.AppEnv, cfg.LogLevel)
	if cfg.LogDir != "" {
		if err := logger.InitWithFile(cfg.LogDir, cfg.LogLevel); err != nil {
			logger.Fatal("log file init failed", logger.Any(logger.FieldError, err))
		}
		defer logger.ShutdownFileHandler()
	}
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	var pool *pgxpool.Pool
	if cfg.PostgresConnStr != "" {
		pool, err = database.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool, database.Migrations()); err != nil {
			logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
		}
		if cfg.PersistLogs {
			logger.AttachDBHandler(pool, logger.ParseLevel(cfg.LogLevel))
			defer logger.ShutdownDBHandler()
		}
	} else {
		logger.Warn("POSTGRES_CONNECTION_STRING not set, runs are kept in memory only")
	}

	runs := store.New(pool)
	sessions := session.NewManager(runs)
	if recent, err := runs.LoadRecent(ctx, hydrateLimit); err != nil {
		logger.Warn("hydrate sessions failed", logger.FieldError, err)
	} else {
		sessions.Hydrate(recent)
		logger.Infow("sessions hydrated", logger.FieldCount, len(recent))
	}

	var prefStore session.PreferenceStore
	if pool != nil {
		prefStore = store.NewUIPreferenceStore(pool)
	}
	prefs := session.NewPreferenceManager(prefStore, map[string]any{
		session.PrefShowLLMCallEvents:      cfg.ShowLLMCallEvents,
		session.PrefShowAgentFlowByDefault: cfg.ShowAgentFlowByDefault,
	})

	hub := ingest.NewHub(sessions, cfg.IngestMaxMessageKiB)
	srv := dashboard.NewServer(dashboard.Deps{
		Config:    cfg,
		Sessions:  sessions,
		Store:     runs,
		Prefs:     prefs,
		Commander: hub,
		Ingest:    hub,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Engine(),
		ReadHeaderTimeout: 10 * time.Second,
		// 信号到达时取消所有请求 context, SSE 流随之结束
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	logger.Infow("runview server starting", logger.FieldAddr, cfg.ListenAddr)
	util.SafeGo(func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", logger.FieldError, err)
			cancel()
		}
	})

	<-ctx.Done()
	logger.Info("shutting down")

	hub.Close()
	shutdownCtx, stop := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", logger.FieldError, err)
	}
}
