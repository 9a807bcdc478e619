package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/services"
	"github.com/nimbuschat/nimbus-backend/internal/webhook"
)

// RelaySession posts a session transcript to a user-supplied HTTPS endpoint
func RelaySession(svc *services.Services, relay *webhook.Relay) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			URL string `json:"url"`
		}
		if err := c.BodyParser(&req); err != nil || req.URL == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Webhook URL is required",
			})
		}

		session, err := svc.Chat.GetSession(c.Context(), userContext.UserID, c.Params("id"))
		if err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get session",
			})
		}

		messages, err := svc.Chat.ListMessages(c.Context(), userContext.UserID, session.ID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list messages",
			})
		}

		payload := fiber.Map{
			"session":  session,
			"messages": messages,
		}
		if err := relay.Send(c.Context(), req.URL, "session.export", payload); err != nil {
			if errors.Is(err, webhook.ErrInsecureURL) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Webhook target must use https",
				})
			}
			// One shot, no retry. The caller decides what to do next.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Webhook delivery failed",
			})
		}

		return c.JSON(fiber.Map{"message": "Webhook delivered"})
	}
}
