package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/fieldops-api/api/swagger"
	"github.com/noah-isme/fieldops-api/internal/access"
	"github.com/noah-isme/fieldops-api/internal/handler"
	"github.com/noah-isme/fieldops-api/internal/metadata"
	"github.com/noah-isme/fieldops-api/internal/middleware"
	"github.com/noah-isme/fieldops-api/internal/query"
	"github.com/noah-isme/fieldops-api/internal/repository"
	"github.com/noah-isme/fieldops-api/internal/service"
	"github.com/noah-isme/fieldops-api/pkg/cache"
	"github.com/noah-isme/fieldops-api/pkg/config"
	"github.com/noah-isme/fieldops-api/pkg/database"
	"github.com/noah-isme/fieldops-api/pkg/export"
	"github.com/noah-isme/fieldops-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/fieldops-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/fieldops-api/pkg/middleware/requestid"
)

// @title FieldOps API
// @version 1.0.0
// @description Access-controlled entity API for field service operations
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	registry, err := metadata.NewRegistry(metadata.Entities())
	if err != nil {
		logr.Fatal("invalid entity metadata", zap.Error(err))
	}

	userRepo := repository.NewUserRepository(db)
	sessionRepo := repository.NewSessionRepository(db)
	entityRepo := repository.NewEntityRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	roles, err := userRepo.ListRoles(ctx)
	if err != nil {
		logr.Fatal("failed to load roles", zap.Error(err))
	}
	resolver := access.NewResolver(registry, roles)
	builder := query.NewBuilder(cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize)

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, list caching disabled", zap.Error(err))
		} else {
			defer redisClient.Close()
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.TTL, logr, true)
		}
	}

	auditSvc := service.NewAuditService(auditRepo, logr, 2)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	tokenSvc := service.NewTokenService(sessionRepo, userRepo, logr, service.TokenConfig{
		Secret:             cfg.Auth.Secret,
		AccessTokenExpiry:  cfg.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: cfg.Auth.RefreshTokenExpiry,
		SessionRetention:   cfg.Auth.SessionRetention,
		Issuer:             cfg.Auth.Issuer,
	})
	authSvc := service.NewAuthService(userRepo, tokenSvc, auditSvc, validator.New(), logr, service.AuthConfig{
		Secret:               cfg.Auth.Secret,
		LocalProviderEnabled: cfg.Auth.LocalProviderEnabled,
	})
	entitySvc := service.NewEntityService(registry, resolver, builder, entityRepo, cacheSvc, auditSvc, logr,
		cfg.Query.DefaultPageSize, cfg.Query.MaxPageSize)
	invoiceSvc := service.NewInvoiceService(entitySvc, export.NewPDFExporter())

	go runSessionSweep(ctx, tokenSvc, cfg.Auth.CleanupInterval, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	sessionHandler := handler.NewSessionHandler(authSvc)
	entityHandler := handler.NewEntityHandler(entitySvc)
	invoiceHandler := handler.NewInvoiceHandler(invoiceSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	authed := api.Group("", middleware.JWT(authSvc), middleware.ReadOnlyProvider())
	authed.POST("/auth/logout", authHandler.Logout)
	authed.POST("/auth/logout-all", authHandler.LogoutAll)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.GET("/auth/me", authHandler.Me)
	authed.GET("/sessions", sessionHandler.List)

	entities := authed.Group("/entities/:entity", middleware.EntityContext(registry))
	entities.GET("", middleware.RequirePermission(resolver, access.OpList), entityHandler.List)
	entities.GET("/:id", middleware.RequirePermission(resolver, access.OpRead), entityHandler.Get)
	entities.POST("", middleware.RequirePermission(resolver, access.OpCreate), entityHandler.Create)
	entities.PUT("/:id", middleware.RequirePermission(resolver, access.OpUpdate), entityHandler.Update)
	entities.DELETE("/:id", middleware.RequirePermission(resolver, access.OpDelete), entityHandler.Delete)

	if cfg.Export.InvoicePDFEnabled {
		authed.GET("/invoices/:id/pdf",
			middleware.Audit(auditSvc, "export", "invoice"),
			invoiceHandler.DownloadPDF)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Info("server starting", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Warn("shutdown incomplete", zap.Error(err))
	}
}

// runSessionSweep deletes session rows whose expiry passed the retention
// threshold. Revoked-but-unexpired rows stay for audit.
func runSessionSweep(ctx context.Context, tokens *service.TokenService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := tokens.CleanupExpiredTokens(ctx); err != nil {
				logr.Warn("session sweep failed", zap.Error(err))
			}
		}
	}
}
