package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/escalation"
	"github.com/supportdesk/backend/internal/metrics"
	"github.com/supportdesk/backend/pkg/logger"
)

type AgentHandler struct {
	pool *escalation.Pool
}

func NewAgentHandler(pool *escalation.Pool) *AgentHandler {
	return &AgentHandler{
		pool: pool,
	}
}

func (h *AgentHandler) HandleRegister(c *fiber.Ctx) error {
	var req struct {
		AgentID string `json:"agent_id"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.AgentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "agent_id is required",
		})
	}

	h.pool.Register(req.AgentID)
	metrics.AgentsAvailable.Set(float64(h.pool.AvailableCount()))

	logger.Info("Agent registered", zap.String("agent_id", req.AgentID))

	return c.JSON(fiber.Map{
		"agent_id": req.AgentID,
		"status":   string(escalation.StatusAvailable),
	})
}

func (h *AgentHandler) HandleUpdateStatus(c *fiber.Ctx) error {
	agentID := c.Params("agent_id")

	var req struct {
		Status string `json:"status"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	status, err := escalation.ParseStatus(req.Status)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	if err := h.pool.UpdateStatus(agentID, status); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown agent_id",
		})
	}
	metrics.AgentsAvailable.Set(float64(h.pool.AvailableCount()))

	return c.JSON(fiber.Map{
		"agent_id": agentID,
		"status":   string(status),
	})
}

func (h *AgentHandler) HandleList(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"agents": h.pool.Agents(),
	})
}
