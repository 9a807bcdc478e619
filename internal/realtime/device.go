package realtime

import (
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/nimbuschat/nimbus-backend/internal/models"
)

// DetectDevice builds this client's presence entry from static environment
// inspection. The id is fresh per process; presence is ephemeral, so there
// is nothing to correlate across restarts.
func DetectDevice() models.Device {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "unknown"
	}
	return models.Device{
		ID:       uuid.New().String(),
		Name:     name,
		Type:     deviceType(runtime.GOOS),
		LastSeen: time.Now(),
	}
}

func deviceType(goos string) string {
	switch goos {
	case "android", "ios":
		return "mobile"
	case "js":
		return "browser"
	default:
		return "desktop"
	}
}
