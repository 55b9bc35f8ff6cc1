package main

import (
	"context"
	"log"

	"regadvisor-backend/config"
	"regadvisor-backend/handlers"
	"regadvisor-backend/providers"
	"regadvisor-backend/repository"
	"regadvisor-backend/service"
	"regadvisor-backend/storage"

	// Register the concrete providers with the factory registry.
	_ "regadvisor-backend/providers/gemini"
	_ "regadvisor-backend/providers/ollama"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	logger, err := initLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	// Initialize database connection
	db, err := initPostgres(cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Postgres", zap.Error(err))
	}
	defer db.Close()

	// Initialize raw text archive
	archive, err := storage.NewStorageFromEnv()
	if err != nil {
		logger.Fatal("Failed to initialize archive storage", zap.Error(err))
	}
	logger.Info("Archive storage initialized")

	// Initialize repositories
	documentRepo := repository.NewPostgresDocumentRepository(db)
	passageRepo := repository.NewPostgresPassageRepository(db)

	// Initialize providers
	embedder, err := providers.NewEmbedder(cfg.Providers.Embedding)
	if err != nil {
		logger.Fatal("Failed to initialize embedding provider", zap.Error(err))
	}
	generator, err := providers.NewGenerator(cfg.Providers.Generation)
	if err != nil {
		logger.Fatal("Failed to initialize generation provider", zap.Error(err))
	}
	logger.Info("Providers initialized",
		zap.String("embedding_model", embedder.ModelName()),
		zap.String("generation_model", generator.ModelName()))

	limiter := providers.NewRateLimiter(
		cfg.Providers.Embedding.RequestsPerSecond,
		cfg.Providers.Embedding.Burst,
	)

	// Initialize services
	ingestionService := service.NewIngestionService(cfg.Pipeline,
		service.IngestionWithDocumentRepository(documentRepo),
		service.IngestionWithPassageRepository(passageRepo),
		service.IngestionWithEmbedder(embedder),
		service.IngestionWithRateLimiter(limiter),
		service.IngestionWithArchive(archive),
		service.IngestionWithLogger(logger),
	)

	searchService := service.NewSearchService(
		service.SearchWithDocumentRepository(documentRepo),
		service.SearchWithPassageRepository(passageRepo),
		service.SearchWithEmbedder(embedder),
		service.SearchWithLogger(logger),
	)

	answerService := service.NewAnswerService(cfg.Retrieval,
		service.AnswerWithSearchService(searchService),
		service.AnswerWithGenerator(generator),
		service.AnswerWithLanguage(cfg.Providers.Generation.Language),
		service.AnswerWithLogger(logger),
	)

	// Initialize handlers
	documentHandler := handlers.NewDocumentHandler(documentRepo, passageRepo, ingestionService, logger)
	questionHandler := handlers.NewQuestionHandler(answerService, logger)

	// Setup Gin router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// API routes
	api := r.Group("/api")
	{
		// Document endpoints
		api.POST("/documents", documentHandler.CreateDocument)
		api.GET("/documents", documentHandler.ListDocuments)
		api.GET("/documents/:id", documentHandler.GetDocument)
		api.GET("/documents/:id/passages", documentHandler.GetDocumentPassages)
		api.POST("/documents/:id/ingest", documentHandler.IngestDocument)

		// Question endpoint
		api.POST("/questions", questionHandler.AskQuestion)
	}

	// Start server
	logger.Info("Server starting", zap.String("port", cfg.Server.Port))
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}
}

func initLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func initPostgres(connString string, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	// Enable pgvector extension
	ctx := context.Background()
	_, err = pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		logger.Warn("Failed to create pgvector extension, it may already be installed or require superuser privileges",
			zap.Error(err))
	} else {
		logger.Info("pgvector extension enabled")
	}

	logger.Info("Postgres connection established with pgvector support")
	return pool, nil
}
