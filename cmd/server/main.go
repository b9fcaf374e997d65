// Package main runs the outreach portal HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/intex-outreach/backend/config"
	"github.com/intex-outreach/backend/internal/auth"
	"github.com/intex-outreach/backend/internal/dashboard"
	"github.com/intex-outreach/backend/internal/donations"
	"github.com/intex-outreach/backend/internal/emaillogs"
	"github.com/intex-outreach/backend/internal/events"
	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/internal/milestones"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/notify"
	"github.com/intex-outreach/backend/internal/registrations"
	"github.com/intex-outreach/backend/internal/surveys"
	"github.com/intex-outreach/backend/internal/users"
	"github.com/intex-outreach/backend/internal/web"
	"github.com/intex-outreach/backend/pkg/database"
	"github.com/intex-outreach/backend/pkg/queue"
	"github.com/intex-outreach/backend/pkg/redis"
	"github.com/intex-outreach/backend/pkg/response"
	"github.com/intex-outreach/backend/pkg/storage"
	"github.com/intex-outreach/backend/pkg/utils"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.IsDevelopment() {
		if dev, err := zap.NewDevelopment(); err == nil {
			logger = dev
			defer logger.Sync()
		}
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	loc := cfg.Location()

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns: int32(cfg.Database.MaxConns),
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Photo uploads are optional; without a bucket profiles keep their current photo.
	var photos users.Photos
	if cfg.AWS.PhotosBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
			Bucket:          cfg.AWS.PhotosBucket,
		}, logger)
		if err != nil {
			logger.Warn("photo uploads disabled", zap.Error(err))
		} else {
			photos = s3Client
		}
	}

	m := metrics.New()
	hasher := utils.NewPasswordHasher(cfg.Passwords.BcryptRounds)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	notifier := notify.New(jobQueue, cfg.OrgName, logger)
	sessions := auth.NewSessionManager(cfg.Session.Secret, cfg.Session.ExpireHours, cfg.Session.CookieName, cfg.Session.SecureCookie)

	// Auth
	authSvc := auth.NewService(auth.NewRepository(pool), hasher, logger)
	authHandler := auth.NewHandler(authSvc, sessions, logger)

	// Accounts
	accounts := users.NewRepository(pool)
	userSvc := users.NewService(accounts, hasher, photos, m, logger)
	userHandler := users.NewHandler(userSvc, logger)

	// Events, registrations and surveys
	eventSvc := events.NewService(events.NewRepository(pool), logger)
	registrationSvc := registrations.NewService(registrations.NewRepository(pool), notifier, m, logger)
	registrationHandler := registrations.NewHandler(registrationSvc, logger)
	eventHandler := events.NewHandler(eventSvc, registrationSvc, loc, logger)
	surveySvc := surveys.NewService(surveys.NewRepository(pool), m, logger)
	surveyHandler := surveys.NewHandler(surveySvc, logger)

	// Donations and milestones
	donationSvc := donations.NewService(donations.NewRepository(pool), hasher, cfg.Donations.AnonymousDonorID,
		donations.WithMetrics(m),
		donations.WithReceipts(notifier),
		donations.WithLogger(logger),
	)
	donationHandler := donations.NewHandler(donationSvc, logger)
	milestoneSvc := milestones.NewService(milestones.NewRepository(pool), logger)
	milestoneHandler := milestones.NewHandler(milestoneSvc, logger)

	dashboardSvc := dashboard.NewService(dashboard.Sources{
		Participants:   userSvc.CountParticipants,
		UpcomingEvents: eventSvc.CountUpcoming,
		Milestones:     milestoneSvc.Count,
		DonationTotal:  donationSvc.Total,
	}, rdb, logger)
	dashboardHandler := dashboard.NewHandler(dashboardSvc, logger)

	emailLogsHandler := emaillogs.NewHandler(emaillogs.NewRepository(pool), jobQueue, logger)

	tmpl, err := web.Templates(loc)
	if err != nil {
		logger.Fatal("templates", zap.Error(err))
	}
	limiter := middleware.NewRateLimiter(cfg.Server.RateBurst, cfg.Server.RateWindow)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.SecureHeaders(cfg.Session.SecureCookie))
	router.Use(middleware.Session(sessions, accounts, logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.RateLimit(limiter))
	router.SetHTMLTemplate(tmpl)
	router.StaticFS("/static", web.Static())
	router.NoRoute(response.NotFound)

	// Health and metrics
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "redis": rdb.Healthy(c.Request.Context())})
	})
	router.GET(cfg.Server.MetricsPath, gin.WrapH(m.Handler()))

	// Public pages
	router.GET("/", dashboardHandler.Landing)
	router.GET("/events", eventHandler.List)
	router.GET("/events/:id", eventHandler.Show)
	router.GET("/support", donationHandler.SupportPage)
	router.POST("/support", donationHandler.Support)

	authGroup := router.Group("/auth")
	{
		authGroup.GET("/login", authHandler.LoginPage)
		authGroup.POST("/login", authHandler.Login)
		authGroup.GET("/signup", authHandler.SignupPage)
		authGroup.POST("/signup", authHandler.Signup)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Signed-in pages
	portal := router.Group("")
	portal.Use(middleware.RequireAuth())
	{
		portal.GET("/dashboard", dashboardHandler.Dashboard)
		portal.GET("/profile", userHandler.Profile)
		portal.GET("/profile/edit", userHandler.EditProfile)
		portal.POST("/profile/edit", userHandler.UpdateProfile)

		portal.POST("/events/:id/register", registrationHandler.Register)
		portal.GET("/registrations", registrationHandler.Mine)
		portal.POST("/registrations/:id/cancel", registrationHandler.Cancel)
		portal.GET("/registrations/:id/survey", surveyHandler.New)
		portal.POST("/registrations/:id/survey", surveyHandler.Submit)

		portal.GET("/donations", donationHandler.List)
		portal.GET("/milestones", milestoneHandler.List)
	}

	// Admin pages
	admin := router.Group("/admin")
	admin.Use(middleware.RequireRole(models.RoleAdmin))
	{
		admin.GET("/users", userHandler.List)
		admin.GET("/users/new", userHandler.New)
		admin.POST("/users", userHandler.Create)
		admin.GET("/users/:id", userHandler.Show)
		admin.GET("/users/:id/edit", userHandler.Edit)
		admin.POST("/users/:id", userHandler.Update)
		admin.POST("/users/:id/delete", userHandler.Delete)

		admin.GET("/events", eventHandler.AdminList)
		admin.GET("/events/new", eventHandler.New)
		admin.POST("/events", eventHandler.Create)
		admin.GET("/events/:id/edit", eventHandler.Edit)
		admin.POST("/events/:id", eventHandler.Update)
		admin.POST("/events/:id/delete", eventHandler.Delete)
		admin.POST("/registrations/:id/attendance", registrationHandler.Attendance)

		admin.GET("/surveys", surveyHandler.List)
		admin.GET("/surveys/:id", surveyHandler.Show)
		admin.POST("/surveys/:id", surveyHandler.Update)
		admin.POST("/surveys/:id/delete", surveyHandler.Delete)

		admin.POST("/donations", donationHandler.Create)
		admin.GET("/donations/:id/edit", donationHandler.Edit)
		admin.POST("/donations/:id", donationHandler.Update)
		admin.POST("/donations/:id/delete", donationHandler.Delete)

		admin.POST("/milestones", milestoneHandler.Create)
		admin.POST("/milestones/:id/delete", milestoneHandler.Delete)

		admin.GET("/emails", emailLogsHandler.List)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go pruneLimiter(bgCtx, limiter)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port), zap.String("tz", loc.String()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func pruneLimiter(ctx context.Context, rl *middleware.RateLimiter) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.Prune()
		}
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
