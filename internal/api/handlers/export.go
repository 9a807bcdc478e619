package handlers

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/export"
	"github.com/nimbuschat/nimbus-backend/internal/services"
)

// ExportSession renders a session transcript. The format query parameter
// selects json, text, or csv; json is the default.
func ExportSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		format := export.Format(c.Query("format", string(export.FormatJSON)))

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

		body, err := export.Transcript(format, *session, messages)
		if err != nil {
			if errors.Is(err, export.ErrUnknownFormat) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Unknown export format",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to render transcript",
			})
		}

		c.Set(fiber.HeaderContentType, export.ContentType(format))
		c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", "chat-"+session.ID+"."+string(format)))
		return c.Send(body)
	}
}
