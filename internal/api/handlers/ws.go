package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/nimbuschat/nimbus-backend/internal/api/middleware"
	"github.com/nimbuschat/nimbus-backend/internal/models"
	"github.com/nimbuschat/nimbus-backend/internal/realtime"
	"github.com/nimbuschat/nimbus-backend/internal/services"
)

// SyncChannel serves the per-user sync websocket. The connection carries
// row-change and presence events; the only inbound traffic is the heartbeat.
func SyncChannel(svc *services.Services) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		if userID == "" {
			c.Close()
			return
		}

		device := models.Device{
			ID:   c.Query("device_id"),
			Name: c.Query("device_name"),
			Type: c.Query("device_type"),
		}
		if device.ID == "" {
			device.ID = uuid.New().String()
		}
		if device.Name == "" {
			device.Name = "Unknown Device"
		}
		if device.Type == "" {
			device.Type = "browser"
		}

		svc.Hub.HandleConn(c, userID, device)
	}
}

// GetPresence returns the devices currently connected to the user's sync
// channel, most recently seen first.
func GetPresence(hub *realtime.Hub) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userContext := middleware.GetUserContext(c)
		if userContext == nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Not authenticated",
			})
		}

		devices, err := hub.Presence(c.Context(), userContext.UserID.String())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to get presence",
			})
		}

		return c.JSON(fiber.Map{"devices": devices})
	}
}
