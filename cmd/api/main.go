package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/internal/answer"
	"github.com/supportdesk/backend/internal/api/handlers"
	"github.com/supportdesk/backend/internal/cache"
	"github.com/supportdesk/backend/internal/confidence"
	"github.com/supportdesk/backend/internal/escalation"
	"github.com/supportdesk/backend/internal/ingestion"
	"github.com/supportdesk/backend/internal/intent"
	"github.com/supportdesk/backend/internal/llm"
	"github.com/supportdesk/backend/internal/metrics"
	"github.com/supportdesk/backend/internal/middleware/ratelimit"
	"github.com/supportdesk/backend/internal/middleware/security"
	"github.com/supportdesk/backend/internal/orchestrator"
	"github.com/supportdesk/backend/internal/registry"
	"github.com/supportdesk/backend/internal/relevance"
	"github.com/supportdesk/backend/internal/retrieval"
	"github.com/supportdesk/backend/internal/storage/sqlite"
	"github.com/supportdesk/backend/pkg/config"
	appLogger "github.com/supportdesk/backend/pkg/logger"
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

	appLogger.Info("Starting support request engine")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	reg := registry.New()
	restoreClients(reg, sqliteClient)

	responseCache := buildCache(cfg)

	llmClient := llm.NewClient(
		cfg.LLM.APIKey,
		cfg.LLM.Model,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)

	pool := escalation.NewPool()
	hub := handlers.NewHub()
	router := escalation.NewRouter(pool, hub)

	orch := orchestrator.New(
		reg,
		intent.NewClassifier(cfg.Escalation.HighRiskIntents),
		responseCache,
		retrieval.New(),
		relevance.NewValidator(cfg.Retrieval.RelevanceFloor, cfg.Retrieval.SufficiencyFloor),
		confidence.New(),
		escalation.NewPolicy(cfg.Escalation.ConfidenceThreshold),
		router,
		answer.NewGenerator(llmClient),
		sqliteClient,
		orchestrator.Config{
			TopK: cfg.Retrieval.TopK,
			Timeouts: orchestrator.Timeouts{
				Classify: time.Duration(cfg.Timeouts.ClassifySec) * time.Second,
				Retrieve: time.Duration(cfg.Timeouts.RetrieveSec) * time.Second,
				Generate: time.Duration(cfg.Timeouts.GenerateSec) * time.Second,
				Cache:    time.Duration(cfg.Timeouts.CacheSec) * time.Second,
			},
		},
	)

	processor := ingestion.NewProcessor(
		reg,
		sqliteClient,
		llmClient,
		cfg.Documents.Dir,
		cfg.Documents.ChunkSize,
		cfg.Documents.ChunkOverlap,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{})
	defer limiter.Stop()

	chatHandler := handlers.NewChatHandler(orch)
	documentHandler := handlers.NewDocumentHandler(processor, reg)
	agentHandler := handlers.NewAgentHandler(pool)

	api := app.Group("/api/v1")

	api.Post("/chat", limiter.Middleware(), chatHandler.HandleChat)

	api.Post("/ingest/:client_id", limiter.Middleware(), documentHandler.HandleIngest)
	api.Get("/documents/:client_id/status", documentHandler.HandleStatus)

	api.Post("/agents/register", agentHandler.HandleRegister)
	api.Put("/agents/:agent_id/status", agentHandler.HandleUpdateStatus)
	api.Get("/agents", agentHandler.HandleList)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/agents", websocket.New(hub.HandleConnection))

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

// restoreClients reloads per-client versions and bookkeeping from SQLite so
// cache keys stay consistent across restarts. Indexes themselves are rebuilt
// on the next ingestion; until then retrieval returns nothing for the client.
func restoreClients(reg *registry.Registry, db *sqlite.Client) {
	clients, err := db.GetClients()
	if err != nil {
		appLogger.Warn("Failed to restore clients from storage", zap.Error(err))
		return
	}
	for _, c := range clients {
		reg.Restore(c.ID, c.Version, c.DocumentCount, c.LastIngestedAt)
	}
	appLogger.Info("Restored clients", zap.Int("count", len(clients)))
}

func buildCache(cfg *config.Config) cache.ResponseCache {
	if cfg.Cache.Backend == "redis" {
		redisCache, err := cache.NewRedis(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Cache.TTL(),
		)
		if err != nil {
			appLogger.Warn("Redis unavailable, falling back to in-memory cache", zap.Error(err))
			return cache.NewMemory(cfg.Cache.TTL())
		}
		appLogger.Info("Using Redis response cache")
		return redisCache
	}
	return cache.NewMemory(cfg.Cache.TTL())
}
