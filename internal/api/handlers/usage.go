package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/services"
)

// GetUsage returns the user's usage counters for one day. The day query
// parameter takes YYYY-MM-DD and defaults to today.
func GetUsage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		day := time.Now()
		if raw := c.Query("day"); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid day, expected YYYY-MM-DD",
				})
			}
			day = parsed
		}

		usage, err := svc.Chat.Usage(c.Context(), userContext.UserID, day)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get usage",
			})
		}

		if usage == nil {
			return c.JSON(fiber.Map{
				"day":           day.Format("2006-01-02"),
				"messages_sent": 0,
				"tokens_used":   0,
				"api_calls":     0,
			})
		}

		return c.JSON(fiber.Map{
			"day":           usage.Day.Format("2006-01-02"),
			"messages_sent": usage.MessagesSent,
			"tokens_used":   usage.TokensUsed,
			"api_calls":     usage.APICalls,
		})
	}
}
