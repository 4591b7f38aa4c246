package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/embed"
	"github.com/concept-agent/backend/pkg/logger"
)

// EmbeddingFlusher drops the remote embedding cache tier. Nil-able; the
// service runs without a remote tier.
type EmbeddingFlusher interface {
	FlushEmbeddings(ctx context.Context) error
}

// CacheHandler exposes cache administration, used after re-ingesting the
// catalog so stale embeddings do not outlive the fields they were built for.
type CacheHandler struct {
	embedder *embed.CachedProvider
	remote   EmbeddingFlusher
}

func NewCacheHandler(embedder *embed.CachedProvider, remote EmbeddingFlusher) *CacheHandler {
	return &CacheHandler{
		embedder: embedder,
		remote:   remote,
	}
}

// Flush handles POST /api/v1/cache/flush.
func (h *CacheHandler) Flush(c *fiber.Ctx) error {
	h.embedder.ClearCache()

	if h.remote != nil {
		if err := h.remote.FlushEmbeddings(c.UserContext()); err != nil {
			logger.Error("Failed to flush remote embedding cache", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to flush remote cache",
			})
		}
	}

	return c.JSON(fiber.Map{
		"status": "flushed",
	})
}
