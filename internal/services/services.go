package services

import (
	"github.com/sirupsen/logrus"

	"github.com/nimbuschat/nimbus-backend/internal/llm"
	"github.com/nimbuschat/nimbus-backend/internal/realtime"
	"github.com/nimbuschat/nimbus-backend/internal/repository"
)

// Services holds all service instances
type Services struct {
	Chat *ChatService
	Hub  *realtime.Hub
}

// NewServices creates all service instances
func NewServices(
	sessions repository.ChatSessionRepository,
	messages repository.MessageRepository,
	usage repository.UsageRepository,
	completer llm.Completer,
	hub *realtime.Hub,
	log *logrus.Logger,
) *Services {
	return &Services{
		Chat: NewChatService(sessions, messages, usage, completer, hub, log),
		Hub:  hub,
	}
}
