package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/ingestion"
	"github.com/supportdesk/backend/internal/metrics"
	"github.com/supportdesk/backend/internal/registry"
	"github.com/supportdesk/backend/pkg/logger"
)

type DocumentHandler struct {
	processor *ingestion.Processor
	registry  *registry.Registry
}

func NewDocumentHandler(processor *ingestion.Processor, reg *registry.Registry) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		registry:  reg,
	}
}

// HandleIngest rebuilds a client's document index from its document
// directory. The client is registered on first ingestion.
func (h *DocumentHandler) HandleIngest(c *fiber.Ctx) error {
	clientID := c.Params("client_id")
	if clientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "client_id is required",
		})
	}

	h.registry.Register(clientID)

	result, err := h.processor.IngestClient(c.Context(), clientID)
	if err != nil {
		logger.Error("Ingestion failed", zap.String("client_id", clientID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to ingest documents",
		})
	}

	metrics.DocumentsIngested.Add(float64(result.DocumentCount))

	return c.JSON(fiber.Map{
		"client_id":      result.ClientID,
		"version":        result.Version,
		"document_count": result.DocumentCount,
		"chunk_count":    result.ChunkCount,
		"ingested_at":    result.IngestedAt,
	})
}

// HandleStatus reports the client's current index version and document count.
func (h *DocumentHandler) HandleStatus(c *fiber.Ctx) error {
	clientID := c.Params("client_id")

	snap, err := h.registry.Snapshot(clientID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown client_id",
		})
	}

	return c.JSON(fiber.Map{
		"client_id":        snap.ClientID,
		"version":          snap.Version,
		"document_count":   snap.DocumentCount,
		"last_ingested_at": snap.LastIngestedAt,
	})
}
