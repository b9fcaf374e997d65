// Package main runs the background email worker.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/intex-outreach/backend/config"
	"github.com/intex-outreach/backend/internal/emaillogs"
	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/worker"
	"github.com/intex-outreach/backend/pkg/database"
	"github.com/intex-outreach/backend/pkg/mailer"
	"github.com/intex-outreach/backend/pkg/queue"
	"github.com/intex-outreach/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	smtp := mailer.New(mailer.Config{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		User:        cfg.Email.SMTPUser,
		Password:    cfg.Email.SMTPPass,
		UseTLS:      cfg.Email.SMTPTLS,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
		Timeout:     15 * time.Second,
	}, logger)
	if cfg.Email.SMTPHost == "" {
		logger.Warn("SMTP_HOST not set; every job will fail and end in the dead-letter queue")
	}

	processor := worker.NewEmailProcessor(
		queue.NewQueue(rdb.Client, logger),
		smtp,
		emaillogs.NewRepository(pool),
		metrics.New(),
		logger,
	)

	workers := cfg.Email.Workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			processor.Run(gctx)
			return nil
		})
	}
	logger.Info("worker started", zap.Int("workers", workers))

	_ = g.Wait()
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
