package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/orchestrator"
	"github.com/supportdesk/backend/internal/pipeline"
	"github.com/supportdesk/backend/pkg/logger"
)

type ChatHandler struct {
	orch *orchestrator.Orchestrator
}

func NewChatHandler(orch *orchestrator.Orchestrator) *ChatHandler {
	return &ChatHandler{
		orch: orch,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		ClientID       string `json:"client_id"`
		UserID         string `json:"user_id"`
		Message        string `json:"message"`
		ConversationID string `json:"conversation_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.ClientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "client_id is required",
		})
	}
	if req.Message == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message is required",
		})
	}

	result, err := h.orch.Handle(c.Context(), pipeline.Request{
		ClientID:       req.ClientID,
		UserID:         req.UserID,
		Message:        req.Message,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		if orchestrator.IsUnknownClient(err) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Unknown client_id",
			})
		}
		logger.Error("Failed to handle chat request", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process request",
		})
	}

	return c.JSON(result)
}
