package main

import (
	"os"
	"os/signal"
	"syscall"

	configs "github.com/theluxar/auth-service/config"
	"github.com/theluxar/auth-service/internal/email"
	"github.com/theluxar/auth-service/internal/handler"
	"github.com/theluxar/auth-service/internal/middleware"
	"github.com/theluxar/auth-service/internal/repository"
	"github.com/theluxar/auth-service/internal/router"
	"github.com/theluxar/auth-service/internal/service"
	"github.com/theluxar/auth-service/pkg/database"
	"github.com/theluxar/auth-service/pkg/logger"
	redispkg "github.com/theluxar/auth-service/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	config, err := configs.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize Zap logger
	if err := logger.InitLogger(config); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.GetLogger().Info("Application starting",
		zap.String("app_name", config.App.Name),
		zap.String("environment", config.App.Environment),
	)

	db, err := database.NewPostgresDB(database.Config{
		Host:            config.Database.Host,
		Port:            config.Database.Port,
		User:            config.Database.User,
		Password:        config.Database.Password,
		Database:        config.Database.Name,
		SSLMode:         config.Database.SSLMode,
		MaxIdleConns:    config.Database.MaxIdleConns,
		MaxOpenConns:    config.Database.MaxOpenConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		ConnMaxIdleTime: config.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.GetLogger().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.GetLogger().Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.GetLogger().Info("Database migrated successfully")

	// Repositories
	accountRepo := repository.NewAccountRepository(db)
	userRepo := repository.NewUserRepository(db)
	permissionRepo := repository.NewPermissionRepository(db)

	// Redis-backed session cache
	redisClient, err := redispkg.NewClient(redispkg.Config{
		Addr:         config.RedisAddress(),
		Password:     config.Redis.Password,
		DB:           config.Redis.Database,
		PoolSize:     config.Redis.PoolSize,
		MinIdleConns: config.Redis.MinIdleConns,
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
	}, logger.GetLogger())
	if err != nil {
		logger.GetLogger().Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()

	sessionStore := service.NewRedisSessionStore(redisClient)

	// Outbound mail queue
	publisher := email.NewQueuePublisher(config.Email.AMQPURL, config.Email.Queue)
	defer publisher.Close()

	mailer, err := email.NewQueueMailer(
		publisher,
		config.Email,
		config.App.Name,
		config.Token.ActivationTTL,
		config.Token.ResetTTL,
	)
	if err != nil {
		logger.GetLogger().Fatal("Failed to build mailer", zap.Error(err))
	}

	// Services
	hasher := service.NewPasswordHasher(config.Hash.BcryptCost)
	tokenService := service.NewTokenService(config.Token)
	permissionService := service.NewPermissionService(permissionRepo, userRepo, sessionStore)
	authService := service.NewAuthService(
		accountRepo,
		userRepo,
		permissionRepo,
		hasher,
		tokenService,
		sessionStore,
		mailer,
		config.App.PermissionNamespace,
	)
	oauthService := service.NewOAuthService(config.OAuth, authService)

	// Handlers
	authHandler := handler.NewAuthHandler(config, authService, oauthService, tokenService)
	permissionHandler := handler.NewPermissionHandler(permissionService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	guard := middleware.NewAccessGuard(config, tokenService, sessionStore, accountRepo, permissionService)

	r := router.NewRouter(
		authHandler,
		permissionHandler,
		healthHandler,
		guard,
		config,
	).SetupRoutes()

	go func() {
		logger.GetLogger().Info("Server starting",
			zap.String("port", config.App.Port),
			zap.String("host", "0.0.0.0"),
		)
		if err := r.Run(":" + config.App.Port); err != nil {
			logger.GetLogger().Fatal("Failed to start server",
				zap.Error(err),
				zap.String("port", config.App.Port),
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.GetLogger().Info("Shutting down server...")
}
