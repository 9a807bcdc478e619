package main

import (
	"fmt"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/nimbuschat/nimbus-backend/internal/api"
	"github.com/nimbuschat/nimbus-backend/internal/auth"
	"github.com/nimbuschat/nimbus-backend/internal/config"
	"github.com/nimbuschat/nimbus-backend/internal/database"
	"github.com/nimbuschat/nimbus-backend/internal/llm"
	"github.com/nimbuschat/nimbus-backend/internal/realtime"
	"github.com/nimbuschat/nimbus-backend/internal/repository/postgres"
	"github.com/nimbuschat/nimbus-backend/internal/services"
	"github.com/nimbuschat/nimbus-backend/internal/webhook"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := database.RunMigrations(cfg.Database); err != nil {
		log.WithError(err).Fatal("Failed to run migrations")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	defer rdb.Close()

	app := fiber.New(fiber.Config{
		AppName:      "Nimbus Backend",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     getOrigins(),
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))

	// Repositories
	sessionRepo := postgres.NewChatSessionRepository(db.DB)
	messageRepo := postgres.NewMessageRepository(db.DB)
	usageRepo := postgres.NewUsageRepository(db.DB)
	userRepo := postgres.NewUserRepository(db.DB)
	authSessionRepo := postgres.NewUserSessionRepository(db.DB)

	jwtSecret := os.Getenv("NIMBUS_JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "change-me-in-production" // Default for development
		log.Warn("Using default JWT secret. Set NIMBUS_JWT_SECRET in production!")
	}
	authService := auth.NewService(userRepo, authSessionRepo, jwtSecret, log)

	completer, err := llm.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.DefaultModel)
	if err != nil {
		log.WithError(err).Fatal("Failed to create OpenAI client")
	}

	hub := realtime.NewHub(rdb)
	svc := services.NewServices(sessionRepo, messageRepo, usageRepo, completer, hub, log)
	relay := webhook.NewRelay(nil)

	api.SetupRoutes(app, svc, authService, relay)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.WithField("addr", addr).Info("Nimbus Backend starting")
	if err := app.Listen(addr); err != nil {
		log.WithError(err).Fatal("Failed to start server")
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}

func getOrigins() string {
	origins := os.Getenv("NIMBUS_CORS_ORIGINS")
	if origins == "" {
		return "http://localhost:1420,http://localhost:5173,http://localhost:3000"
	}
	return origins
}
