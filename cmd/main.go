package main

import (
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/leonguyen52/sprout-track-sub003/internal/auth"
	"github.com/leonguyen52/sprout-track-sub003/internal/handler"
	"github.com/leonguyen52/sprout-track-sub003/internal/middleware"
	"github.com/leonguyen52/sprout-track-sub003/internal/setup"
	"github.com/leonguyen52/sprout-track-sub003/internal/tenant"
	"github.com/leonguyen52/sprout-track-sub003/pkg/config"
	"github.com/leonguyen52/sprout-track-sub003/pkg/database"
	"github.com/leonguyen52/sprout-track-sub003/pkg/jwtutil"
	"github.com/leonguyen52/sprout-track-sub003/pkg/logger"
	"github.com/leonguyen52/sprout-track-sub003/pkg/mailer"
	"github.com/leonguyen52/sprout-track-sub003/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger with config
	logger.InitLogger(cfg)
	log := logger.GetLogger()
	log.Info("Starting sprout-track service...", zap.String("environment", cfg.Server.Env))

	// Initialize database
	dbConfig := database.DBConfig{
		DSN:             cfg.DB.GetDSN(),
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.DB.LogLevel,
	}
	if err := database.Initialize(dbConfig); err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	log.Info("Database connection established")

	// Seed the pre-seeded default family on fresh installs
	if err := database.SeedDefaultFamily(&cfg.Setup); err != nil {
		log.Fatal("Failed to seed default family", zap.Error(err))
	}

	// Initialize JWT utility
	jwtutil.Initialize(&cfg.JWT)
	log.Info("JWT utility initialized")

	// Core services
	blacklist := auth.NewBlacklist()
	lockout := auth.NewLockout(cfg.Auth.LockoutAttempts, cfg.Auth.LockoutWindow, cfg.Auth.LockoutDuration)
	setupProtocol := setup.NewProtocol(setup.NewGormStore(database.GetDB()))
	resolver := tenant.NewResolver(tenant.NewGormStore(database.GetDB()))
	mail := mailer.FromConfig(&cfg.Mail, log)

	authHandler := handler.NewAuthHandler(&cfg.Auth, lockout, blacklist)
	setupHandler := handler.NewSetupHandler(setupProtocol, handler.NewGormMembers(), blacklist, mail, cfg)

	// Initialize Echo framework
	e := echo.New()

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware)
	e.Use(logger.Middleware(log))
	e.Use(prometheus.MetricsMiddleware())
	e.Use(resolver.Middleware())

	// Public routes - no authentication required
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Authentication routes
	authGroup := e.Group("/auth")
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/lockout", authHandler.LockoutStatus)
	authGroup.POST("/logout", authHandler.Logout, middleware.AuthMiddleware(blacklist))

	// Setup wizard - start and token validation stay public: fresh installs
	// and invitation holders have no session yet
	e.GET("/setup/token/validate", setupHandler.ValidateToken)
	e.POST("/setup/start", setupHandler.Start)

	// API routes - all require authentication
	api := e.Group("/api")
	api.Use(middleware.AuthMiddleware(blacklist))

	// Remaining setup stages run under the session issued by setup/start
	setupGroup := api.Group("/setup")
	setupGroup.POST("/tokens", setupHandler.CreateToken, middleware.RequireSysAdmin)
	setupGroup.POST("/resources", setupHandler.Resources)
	setupGroup.POST("/security", setupHandler.Security)
	setupGroup.POST("/complete", setupHandler.Complete)

	// Family listing feeds the family-select page
	families := api.Group("/families")
	families.GET("", handler.ListFamilies)
	families.GET("/:slug", handler.GetFamily)

	// Family-scoped resources - require family context from the session
	babies := api.Group("/babies")
	babies.Use(middleware.RequireFamilyContext)
	babies.POST("", handler.CreateBaby)
	babies.GET("", handler.ListBabies)

	activities := api.Group("/activities")
	activities.Use(middleware.RequireFamilyContext)
	activities.POST("", handler.CreateActivity)
	activities.GET("", handler.ListActivities)

	// Page requests fall through the tenant resolver to the app shell
	e.GET("/*", handler.AppShell)
	e.GET("/", handler.AppShell)

	// Start server
	port := cfg.Server.Port
	log.Info("Starting server", zap.String("port", port))
	if err := e.Start(":" + port); err != nil {
		log.Fatal("Failed to start server", zap.Error(err))
	}
}
