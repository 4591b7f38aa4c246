package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/internal/aggregate"
	"github.com/concept-agent/backend/internal/api/handlers"
	"github.com/concept-agent/backend/internal/cache/redis"
	"github.com/concept-agent/backend/internal/embed"
	"github.com/concept-agent/backend/internal/ingestion"
	"github.com/concept-agent/backend/internal/llm"
	"github.com/concept-agent/backend/internal/metrics"
	"github.com/concept-agent/backend/internal/query"
	"github.com/concept-agent/backend/internal/resolver"
	"github.com/concept-agent/backend/internal/storage/sqlite"
	"github.com/concept-agent/backend/internal/vector/milvus"
	"github.com/concept-agent/backend/pkg/config"
	appLogger "github.com/concept-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Concept Resolution API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	err = milvusClient.EnsureCollection(context.Background())
	if err != nil {
		appLogger.Fatal("Failed to ensure collection", zap.Error(err))
	}

	var remoteCache embed.RemoteCache
	var remoteFlusher handlers.EmbeddingFlusher
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, running on local cache only", zap.Error(err))
		} else {
			defer redisClient.Close()
			remoteCache = redisClient
			remoteFlusher = redisClient
		}
	}

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.BaseURL,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
		cfg.LLM.TimeoutSec,
	)

	embedder := embed.NewCachedProvider(
		llmClient,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second,
		cfg.Cache.MaxEntries,
		remoteCache,
	)

	conceptResolver := resolver.NewResolver(embedder, milvusClient, cfg.Search)
	analyzer := aggregate.NewAnalyzer(cfg.Search)
	engine := query.NewEngine(llmClient, conceptResolver, analyzer, sqliteClient)
	processor := ingestion.NewProcessor(embedder, milvusClient)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	resolveHandler := handlers.NewResolveHandler(engine, sqliteClient)
	catalogHandler := handlers.NewCatalogHandler(processor, milvusClient)
	cacheHandler := handlers.NewCacheHandler(embedder, remoteFlusher)
	wsHandler := handlers.NewWebSocketHandler(llmClient, conceptResolver, analyzer)

	api := app.Group("/api/v1")

	api.Post("/resolve", resolveHandler.Resolve)
	api.Get("/resolve/history", resolveHandler.History)

	api.Post("/catalog/ingest", catalogHandler.Ingest)
	api.Get("/catalog/info", catalogHandler.Info)

	api.Post("/cache/flush", cacheHandler.Flush)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/resolve", websocket.New(wsHandler.HandleResolve))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
