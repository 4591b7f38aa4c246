package handlers

import (
	"bytes"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/ingestion"
	"github.com/concept-agent/backend/internal/vector/milvus"
	"github.com/concept-agent/backend/pkg/logger"
)

type CatalogHandler struct {
	processor *ingestion.Processor
	store     *milvus.Client
}

func NewCatalogHandler(processor *ingestion.Processor, store *milvus.Client) *CatalogHandler {
	return &CatalogHandler{
		processor: processor,
		store:     store,
	}
}

// Ingest handles POST /api/v1/catalog/ingest. The body is raw CSV.
func (h *CatalogHandler) Ingest(c *fiber.Ctx) error {
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "empty request body",
		})
	}

	count, err := h.processor.IngestCSV(c.UserContext(), bytes.NewReader(body))
	if err != nil {
		logger.Error("Catalog ingestion failed", zap.Error(err), zap.Int("ingested", count))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":    err.Error(),
			"ingested": count,
		})
	}

	return c.JSON(fiber.Map{
		"ingested": count,
	})
}

// Info handles GET /api/v1/catalog/info.
func (h *CatalogHandler) Info(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"collection": h.store.CollectionName(),
		"vector_dim": h.store.VectorDim(),
	})
}
