package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/still-there/attendance-api/api/swagger"
	"github.com/still-there/attendance-api/internal/handler"
	"github.com/still-there/attendance-api/internal/middleware"
	"github.com/still-there/attendance-api/internal/repository"
	"github.com/still-there/attendance-api/internal/service"
	"github.com/still-there/attendance-api/pkg/cache"
	"github.com/still-there/attendance-api/pkg/config"
	"github.com/still-there/attendance-api/pkg/database"
	"github.com/still-there/attendance-api/pkg/logger"
	corsmiddleware "github.com/still-there/attendance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/still-there/attendance-api/pkg/middleware/requestid"
	"github.com/still-there/attendance-api/pkg/storage"

	"github.com/go-playground/validator/v10"
)

// @title Still There API
// @version 1.0.0
// @description QR-code classroom attendance: sessions, runs and scan submissions
// @BasePath /api/v1
// @schemes http https

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, continuing without cache and realtime", "error", err)
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	media, err := storage.NewMediaStore(cfg.Storage.MediaDir, cfg.Storage.PublicPath, cfg.PublicBaseURL)
	if err != nil {
		logr.Sugar().Fatalw("failed to init media store", "error", err)
	}

	validate := validator.New()
	if err := service.RegisterValidators(validate); err != nil {
		logr.Sugar().Fatalw("failed to register validators", "error", err)
	}

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	legacyRepo := repository.NewLegacyAttendanceRepository(db)
	presetRepo := repository.NewPresetRepository(db)

	var cacheRepo *repository.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient)
	}

	// Services.
	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "still-there",
	})
	realtimeSvc := service.NewRealtimeService(redisClient, cfg.Realtime, logr)

	var sessionCache service.DashboardCache
	if cacheRepo != nil {
		sessionCache = cacheRepo
	}
	sessionSvc := service.NewSessionService(sessionRepo, attendanceRepo, sessionCache, validate, logr, cfg.PublicBaseURL)

	var mirror *service.LegacyMirrorService
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if cfg.Legacy.MirrorEnabled {
		mirror = service.NewLegacyMirrorService(legacyRepo, cfg.Legacy, logr)
		mirror.Start(ctx)
		defer mirror.Stop()
	}

	var mirrorSink service.LegacyMirror
	if mirror != nil {
		mirrorSink = mirror
	}
	var publisher service.AttendancePublisher
	if realtimeSvc.Enabled() {
		publisher = realtimeSvc
	}
	attendanceSvc := service.NewAttendanceService(sessionRepo, attendanceRepo, publisher, mirrorSink, sessionSvc, metricsSvc, validate, logr)

	profileSvc := service.NewProfileService(userRepo, media, validate, logr)
	presetSvc := service.NewPresetService(presetRepo, validate, logr, cfg.Presets.MaxImportRows)

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(sessionSvc, realtimeSvc, metricsSvc, media, logr, cfg.Storage.MaxUploadBytes)
	scanHandler := handler.NewScanHandler(sessionSvc, attendanceSvc, media, int(cfg.Realtime.PollInterval.Seconds()), logr, cfg.Storage.MaxUploadBytes)
	attendanceHandler := handler.NewAttendanceHandler(attendanceSvc)
	profileHandler := handler.NewProfileHandler(profileSvc, cfg.Storage.MaxUploadBytes)
	presetHandler := handler.NewPresetHandler(presetSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	// Uploaded media is public by URL.
	r.Static(media.PublicPath(), media.Dir())

	// Public scan surface: the reference is the capability.
	r.GET("/scan/:ref", scanHandler.GetSession)
	r.POST("/scan/:ref/attendance", scanHandler.Submit)

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", authHandler.Signup)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
	auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.POST("/sessions", sessionHandler.Create)
	authed.GET("/sessions", sessionHandler.History)
	authed.GET("/sessions/active", sessionHandler.Active)
	authed.POST("/sessions/:id/end", sessionHandler.End)
	authed.POST("/sessions/:id/pause", sessionHandler.Pause)
	authed.GET("/sessions/:id/attendance", sessionHandler.Attendance)
	authed.GET("/sessions/:id/qr.png", sessionHandler.QRImage)
	authed.GET("/sessions/:id/export", sessionHandler.Export)
	authed.GET("/sessions/:id/feed", sessionHandler.Feed)

	authed.GET("/attendance", attendanceHandler.List)
	authed.PATCH("/attendance/:id/status", attendanceHandler.UpdateStatus)

	authed.GET("/profile", profileHandler.Get)
	authed.PUT("/profile", profileHandler.Update)
	authed.POST("/profile/avatar", profileHandler.UploadAvatar)

	if cfg.Presets.Enabled {
		authed.GET("/presets", presetHandler.List)
		authed.POST("/presets", presetHandler.Create)
		authed.DELETE("/presets/:id", presetHandler.Delete)
		authed.POST("/presets/import", presetHandler.Import)
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
