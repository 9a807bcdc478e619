package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/services"
)

// CreateSession creates a new chat session
func CreateSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		session, err := svc.Chat.CreateSession(c.Context(), userContext.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create session",
			})
		}

		return c.Status(fiber.StatusCreated).JSON(session)
	}
}

// GetSessions returns all of the user's sessions, most recent first
func GetSessions(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		sessions, err := svc.Chat.ListSessions(c.Context(), userContext.UserID)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list sessions",
			})
		}

		return c.JSON(fiber.Map{"sessions": sessions})
	}
}

// GetSession returns a single session
func GetSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
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

		return c.JSON(session)
	}
}

// UpdateSession renames a session
func UpdateSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Title string `json:"title"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		session, err := svc.Chat.RenameSession(c.Context(), userContext.UserID, c.Params("id"), req.Title)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrEmptyTitle):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Title is required",
				})
			case errors.Is(err, services.ErrSessionNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to update session",
				})
			}
		}

		return c.JSON(session)
	}
}

// DeleteSession deletes a session and its messages
func DeleteSession(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		if err := svc.Chat.DeleteSession(c.Context(), userContext.UserID, c.Params("id")); err != nil {
			if errors.Is(err, services.ErrSessionNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to delete session",
			})
		}

		return c.JSON(fiber.Map{"message": "Session deleted"})
	}
}

// GetSessionMessages returns a session's messages. An optional q parameter
// filters by case-insensitive substring.
func GetSessionMessages(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		messages, err := svc.Chat.SearchMessages(c.Context(), userContext.UserID, c.Params("id"), c.Query("q"))
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to list messages",
			})
		}

		return c.JSON(fiber.Map{"messages": messages})
	}
}

// SendMessage appends a user message to a session and returns both it and the
// generated assistant reply
func SendMessage(svc *services.Services) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		var req struct {
			Content string `json:"content"`
			Model   string `json:"model"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}

		userMsg, botMsg, err := svc.Chat.SendMessage(c.Context(), userContext.UserID, c.Params("id"), req.Content, req.Model)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrEmptyMessage):
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Message content is required",
				})
			case errors.Is(err, services.ErrSessionNotFound):
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
					"error": "Session not found",
				})
			default:
				return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"error": "Failed to send message",
				})
			}
		}

		return c.JSON(fiber.Map{
			"message": userMsg,
			"reply":   botMsg,
		})
	}
}
