package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/akademi/akademi-api/api/swagger"
	"github.com/akademi/akademi-api/internal/authz"
	"github.com/akademi/akademi-api/internal/handler"
	"github.com/akademi/akademi-api/internal/middleware"
	"github.com/akademi/akademi-api/internal/models"
	"github.com/akademi/akademi-api/internal/repository"
	"github.com/akademi/akademi-api/internal/service"
	"github.com/akademi/akademi-api/pkg/cache"
	"github.com/akademi/akademi-api/pkg/config"
	"github.com/akademi/akademi-api/pkg/database"
	"github.com/akademi/akademi-api/pkg/logger"
	corsmiddleware "github.com/akademi/akademi-api/pkg/middleware/cors"
	reqidmiddleware "github.com/akademi/akademi-api/pkg/middleware/requestid"
)

// @title Akademi API
// @version 1.0.0
// @description Academic authorization and enrollment resolution engine
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
		redisClient = nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	termRepo := repository.NewTermRepository(db)
	assignmentRepo := repository.NewAssignmentRepository(db)
	joinRequestRepo := repository.NewJoinRequestRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	// Core resolution engine.
	resolver := authz.NewResolver(assignmentRepo, enrollmentRepo, logr)
	scopeIndex := authz.NewIndex(assignmentRepo, enrollmentRepo, classRepo, userRepo)

	// Services.
	auditSvc := service.NewAuditService(userRepo, service.AuditQueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
	}, logr)
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	authSvc := service.NewAuthService(userRepo, auditSvc, nil, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		SingleSession:      cfg.JWT.SingleSession,
	})
	userSvc := service.NewUserService(userRepo, nil, logr)
	classSvc := service.NewClassService(classRepo, subjectRepo, nil, logr)
	subjectSvc := service.NewSubjectService(subjectRepo, nil, logr)
	termSvc := service.NewTermService(termRepo, nil, logr)
	teachRequestSvc := service.NewTeachRequestService(assignmentRepo, userRepo, classRepo, nil, logr)
	joinRequestSvc := service.NewJoinRequestService(joinRequestRepo, userRepo, classRepo, enrollmentRepo, termRepo, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, userRepo, classRepo, termRepo, nil, logr)
	dashboardSvc := service.NewDashboardService(userRepo, classRepo, assignmentRepo, enrollmentRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	exportSvc := service.NewExportService(enrollmentRepo, classRepo, logr)
	metricsSvc := service.NewMetricsService()

	// Handlers.
	authHandler := handler.NewAuthHandler(authSvc)
	authzHandler := handler.NewAuthzHandler(resolver, scopeIndex, metricsSvc)
	userHandler := handler.NewUserHandler(userSvc)
	classHandler := handler.NewClassHandler(classSvc)
	subjectHandler := handler.NewSubjectHandler(subjectSvc)
	termHandler := handler.NewTermHandler(termSvc)
	teachRequestHandler := handler.NewTeachRequestHandler(teachRequestSvc)
	joinRequestHandler := handler.NewJoinRequestHandler(joinRequestSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	dashboardHandler := handler.NewDashboardHandler(dashboardSvc)
	exportHandler := handler.NewExportHandler(exportSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)
		auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
		auth.PUT("/password", middleware.JWT(authSvc), authHandler.ChangePassword)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.POST("/authz/check", authzHandler.Check)
	protected.GET("/me/scope", authzHandler.Scope)
	protected.GET("/me/peers", authzHandler.Peers)
	protected.GET("/me/join-requests", middleware.RequireRoles(models.RoleStudent), joinRequestHandler.ListMine)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	users := protected.Group("/users")
	{
		users.GET("", adminOnly, userHandler.List)
		users.POST("", adminOnly, userHandler.Create)
		users.GET("/:id", adminOnly, userHandler.Get)
		users.GET("/:id/qualifications", adminOnly, userHandler.ListQualifications)
		users.POST("/:id/qualifications", adminOnly, userHandler.AddQualification)
	}

	classes := protected.Group("/classes")
	{
		classes.GET("", classHandler.List)
		classes.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionClassMutation, "class"), classHandler.Create)
		classes.GET("/:id", classHandler.Get)
		classes.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionClassMutation, "class"), classHandler.Update)
		classes.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionClassMutation, "class"), classHandler.Delete)
		classes.GET("/:id/subjects", classHandler.ListSubjects)
		classes.POST("/:id/subjects", adminOnly, classHandler.AddSubject)
		classes.DELETE("/:id/subjects/:subjectId", adminOnly, classHandler.RemoveSubject)
		classes.GET("/:id/join-requests", adminOnly, joinRequestHandler.ListByClass)
		if cfg.Exports.Enabled {
			classes.GET("/:id/roster", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher), exportHandler.Roster)
		}
	}

	subjects := protected.Group("/subjects")
	{
		subjects.GET("", subjectHandler.List)
		subjects.GET("/:id", subjectHandler.Get)
		subjects.POST("", adminOnly, middleware.Audit(auditSvc, models.AuditActionSubjectMutation, "subject"), subjectHandler.Create)
		subjects.PUT("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionSubjectMutation, "subject"), subjectHandler.Update)
		subjects.DELETE("/:id", adminOnly, middleware.Audit(auditSvc, models.AuditActionSubjectMutation, "subject"), subjectHandler.Deactivate)
	}

	terms := protected.Group("/terms")
	{
		terms.GET("", termHandler.List)
		terms.GET("/active", termHandler.GetActive)
		terms.POST("", adminOnly, termHandler.Create)
		terms.PUT("/:id/activate", adminOnly, termHandler.SetActive)
	}

	teachRequests := protected.Group("/teach-requests")
	{
		teachRequests.GET("", adminOnly, teachRequestHandler.List)
		teachRequests.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleTeacher),
			middleware.Audit(auditSvc, models.AuditActionTeachRequest, "teach_request"), teachRequestHandler.Create)
		teachRequests.GET("/:id", teachRequestHandler.Get)
		teachRequests.PUT("/:id/resolve", adminOnly,
			middleware.Audit(auditSvc, models.AuditActionTeachResolve, "teach_request"), teachRequestHandler.Resolve)
	}

	joinRequests := protected.Group("/join-requests")
	{
		joinRequests.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent),
			middleware.Audit(auditSvc, models.AuditActionJoinRequest, "join_request"), joinRequestHandler.Create)
		joinRequests.GET("/:id", joinRequestHandler.Get)
		joinRequests.PUT("/:id/resolve", adminOnly,
			middleware.Audit(auditSvc, models.AuditActionJoinResolve, "join_request"), joinRequestHandler.Resolve)
	}

	enrollments := protected.Group("/enrollments")
	{
		enrollments.GET("", adminOnly, enrollmentHandler.List)
		enrollments.POST("", adminOnly,
			middleware.Audit(auditSvc, models.AuditActionEnroll, "enrollment"), enrollmentHandler.Create)
		enrollments.GET("/:id", enrollmentHandler.Get)
		enrollments.PUT("/:id/transfer", adminOnly,
			middleware.Audit(auditSvc, models.AuditActionEnrollTransfer, "enrollment"), enrollmentHandler.Transfer)
		enrollments.PUT("/:id/complete", adminOnly,
			middleware.Audit(auditSvc, models.AuditActionEnrollComplete, "enrollment"), enrollmentHandler.Complete)
		enrollments.DELETE("/:id/subjects/:subjectId", adminOnly,
			middleware.Audit(auditSvc, models.AuditActionSubjectDrop, "enrollment"), enrollmentHandler.DropSubject)
	}

	if cfg.Dashboard.Enabled {
		protected.GET("/dashboard/summary", adminOnly, dashboardHandler.Summary)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
