package handlers

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concept-agent/backend/internal/embed"
)

type noopBackend struct{}

func (noopBackend) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1}, nil
}

func (noopBackend) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1}
	}
	return out, nil
}

type stubFlusher struct {
	calls int
	err   error
}

func (s *stubFlusher) FlushEmbeddings(ctx context.Context) error {
	s.calls++
	return s.err
}

func newFlushApp(embedder *embed.CachedProvider, remote EmbeddingFlusher) *fiber.App {
	app := fiber.New()
	app.Post("/api/v1/cache/flush", NewCacheHandler(embedder, remote).Flush)
	return app
}

func TestCacheFlush_ClearsBothTiers(t *testing.T) {
	embedder := embed.NewCachedProvider(noopBackend{}, time.Minute, 10, nil)
	_, err := embedder.Embed(context.Background(), "warm")
	require.NoError(t, err)
	require.Equal(t, 1, embedder.CacheSize())

	flusher := &stubFlusher{}
	app := newFlushApp(embedder, flusher)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/cache/flush", nil))
	require.NoError(t, err)

	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, embedder.CacheSize())
	assert.Equal(t, 1, flusher.calls)
}

func TestCacheFlush_NoRemoteTier(t *testing.T) {
	embedder := embed.NewCachedProvider(noopBackend{}, time.Minute, 10, nil)
	app := newFlushApp(embedder, nil)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/cache/flush", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCacheFlush_RemoteFailure(t *testing.T) {
	embedder := embed.NewCachedProvider(noopBackend{}, time.Minute, 10, nil)
	flusher := &stubFlusher{err: errors.New("connection refused")}
	app := newFlushApp(embedder, flusher)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/cache/flush", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
