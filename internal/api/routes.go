package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/nimbuschat/nimbus-backend/internal/api/handlers"
	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/auth"
	"github.com/nimbuschat/nimbus-backend/internal/services"
	"github.com/nimbuschat/nimbus-backend/internal/webhook"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, svc *services.Services, authService *auth.Service, relay *webhook.Relay) {
	api := app.Group("/api/v1")

	// ========================================
	// Public routes (no authentication needed)
	// ========================================

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "healthy",
			"service": "nimbus-backend",
		})
	})

	authGroup := api.Group("/auth")
	authGroup.Post("/login", middleware.AuthRateLimit(), handlers.Login(authService))
	authGroup.Post("/signup", middleware.SignupRateLimit(), handlers.Signup(authService))
	authGroup.Post("/refresh", handlers.RefreshToken(authService))
	authGroup.Post("/logout", middleware.AuthRequired(authService), handlers.Logout(authService))

	// ========================================
	// Protected routes (authentication required)
	// ========================================

	protected := api.Group("", middleware.AuthRequired(authService))

	protected.Get("/auth/me", handlers.GetCurrentUser(authService))
	protected.Put("/auth/password", handlers.ChangePassword(authService))

	// Session management
	protected.Post("/sessions", handlers.CreateSession(svc))
	protected.Get("/sessions", handlers.GetSessions(svc))
	protected.Get("/sessions/:id", handlers.GetSession(svc))
	protected.Put("/sessions/:id", handlers.UpdateSession(svc))
	protected.Delete("/sessions/:id", handlers.DeleteSession(svc))
	protected.Get("/sessions/:id/messages", handlers.GetSessionMessages(svc))
	protected.Post("/sessions/:id/messages", middleware.ChatRateLimit(), handlers.SendMessage(svc))

	// Transcript export and one-shot webhook relay
	protected.Get("/sessions/:id/export", handlers.ExportSession(svc))
	protected.Post("/sessions/:id/webhook", handlers.RelaySession(svc, relay))

	// Presence and usage
	protected.Get("/presence", handlers.GetPresence(svc.Hub))
	protected.Get("/usage", handlers.GetUsage(svc))

	// ========================================
	// WebSocket routes (with auth)
	// ========================================

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			// Validate auth token from query param or header
			token := c.Query("token")
			if token == "" {
				token = auth.ExtractTokenFromBearer(c.Get("Authorization"))
			}

			if token != "" {
				user, _, err := authService.ValidateAccessToken(c.Context(), token)
				if err == nil {
					c.Locals("user_id", user.ID.String())
					c.Locals("allowed", true)
					return c.Next()
				}
			}

			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required for WebSocket",
			})
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/sync", websocket.New(handlers.SyncChannel(svc)))
}
