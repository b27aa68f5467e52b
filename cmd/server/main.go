package main

import (
	"fmt"
	"os"

	"github.com/TsutomuTakai/pp-case-api/internal/api"
	"github.com/TsutomuTakai/pp-case-api/internal/cache"
	"github.com/TsutomuTakai/pp-case-api/internal/config"
	"github.com/TsutomuTakai/pp-case-api/internal/database"
	"github.com/TsutomuTakai/pp-case-api/internal/database/repository"
	"github.com/TsutomuTakai/pp-case-api/internal/database/service"
	"github.com/TsutomuTakai/pp-case-api/internal/handler"
	"github.com/TsutomuTakai/pp-case-api/internal/logger"
	"github.com/TsutomuTakai/pp-case-api/internal/middleware"
)

func main() {
	// 1. Config
	cfg := config.LoadConfig()

	// 2. Logger
	appLogger := logger.New(cfg)

	appLogger.Info("🚀 Starting user API...",
		"environment", cfg.AppEnv,
		"port", cfg.ServerPort,
	)

	// 3. Connect to Database
	db, err := database.Connect(cfg, appLogger)
	if err != nil {
		appLogger.Error("❌ Failed to connect to database", "error", err)
		os.Exit(1)
	}

	// 4. Initialize Repositories
	userRepo := repository.NewUserRepository(db)

	// 5. Initialize Response Cache
	cacheStore, err := cache.New(cfg, appLogger)
	if err != nil {
		appLogger.Warn("⚠️ Failed to connect to Redis, disabling response cache", "error", err)
		cacheStore = cache.NewNoOpStore(appLogger)
	}
	defer cacheStore.Close()

	// 6. Initialize Rate Limiter
	rateLimiter, err := middleware.NewRateLimiter(cfg, appLogger)
	if err != nil {
		appLogger.Warn("⚠️ Failed to connect to Redis, using no-op rate limiter", "error", err)
		rateLimiter = middleware.NewNoOpRateLimiter(appLogger)
	}
	defer rateLimiter.Close()

	// 7. Initialize Services
	authService := service.NewAuthService(userRepo, cfg, appLogger)
	userService := service.NewUserService(userRepo, cfg, appLogger)

	// 8. Initialize Handlers & Middleware
	authHandler := handler.NewAuthHandler(authService, appLogger)
	userHandler := handler.NewUserHandler(userService, cacheStore, appLogger)
	authMiddleware := middleware.NewAuthMiddleware(authService, appLogger)

	// 9. Router
	r := api.SetupRouter(authHandler, userHandler, authMiddleware, rateLimiter, cacheStore, appLogger)

	// 10. Start HTTP Server
	addr := fmt.Sprintf(":%s", cfg.ServerPort)
	appLogger.Info("🌍 HTTP Server running...", "addr", addr)
	if err := r.Run(addr); err != nil {
		appLogger.Error("❌ HTTP Server failed to start", "error", err)
		os.Exit(1)
	}
}
