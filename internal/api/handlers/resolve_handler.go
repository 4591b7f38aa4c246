package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/query"
	"github.com/concept-agent/backend/internal/storage/sqlite"
	"github.com/concept-agent/backend/pkg/logger"
)

type ResolveHandler struct {
	engine  *query.Engine
	history *sqlite.Client
}

func NewResolveHandler(engine *query.Engine, history *sqlite.Client) *ResolveHandler {
	return &ResolveHandler{
		engine:  engine,
		history: history,
	}
}

type resolveRequest struct {
	Query string `json:"query"`
}

// Resolve handles POST /api/v1/resolve.
func (h *ResolveHandler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "query is required",
		})
	}

	result := h.engine.Resolve(c.UserContext(), req.Query)
	return c.JSON(result)
}

// History handles GET /api/v1/resolve/history.
func (h *ResolveHandler) History(c *fiber.Ctx) error {
	if h.history == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "history storage not configured",
		})
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > 200 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be between 1 and 200",
			})
		}
		limit = parsed
	}

	records, err := h.history.ListRecent(limit)
	if err != nil {
		logger.Error("Failed to list resolution history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to load history",
		})
	}

	return c.JSON(fiber.Map{
		"records": records,
		"count":   len(records),
	})
}
