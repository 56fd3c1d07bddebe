// cmd/migrate: 独立执行内嵌 SQL 迁移。
package main

import (
	"context"
	"flag"
	"time"

	"github.com/multi-agent/run-transcript/internal/config"
	"github.com/multi-agent/run-transcript/internal/database"
	"github.com/multi-agent/run-transcript/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		logger.Fatal("config load failed", logger.Any(logger.FieldError, err))
	}
	logger.Init(cfg.AppEnv, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("database init failed", logger.Any(logger.FieldError, err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, database.Migrations()); err != nil {
		logger.Fatal("migration failed", logger.Any(logger.FieldError, err))
	}
	logger.Info("migration complete")
}
