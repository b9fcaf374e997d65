// Package main re-hashes stored plain-text passwords with bcrypt.
// Rows that already hold a bcrypt hash are left alone, so it is safe to re-run.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/config"
	"github.com/intex-outreach/backend/internal/auth"
	"github.com/intex-outreach/backend/pkg/database"
	"github.com/intex-outreach/backend/pkg/utils"
)

func main() {
	verbose := flag.Bool("v", false, "log every account")
	flag.Parse()

	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	if !*verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, _ := zcfg.Build()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	svc := auth.NewService(auth.NewRepository(pool), utils.NewPasswordHasher(cfg.Passwords.BcryptRounds), logger)
	rep, err := svc.MigratePasswords(ctx)
	logger.Warn("password migration finished",
		zap.Int("updated", rep.Updated),
		zap.Int("already_hashed", rep.AlreadyHashed),
		zap.Int("skipped", rep.Skipped),
		zap.Int("failed", rep.Failed),
	)
	if err != nil {
		logger.Error("password migration", zap.Error(err))
		os.Exit(1)
	}
	if rep.Failed > 0 {
		os.Exit(1)
	}
}
