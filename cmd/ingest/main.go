package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"regadvisor-backend/config"
	"regadvisor-backend/models"
	"regadvisor-backend/providers"
	"regadvisor-backend/repository"
	"regadvisor-backend/service"
	"regadvisor-backend/storage"

	_ "regadvisor-backend/providers/gemini"
	_ "regadvisor-backend/providers/ollama"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Batch ingestion tool: registers every .txt file in a directory as a
// regulatory document and runs it through the full ingestion pipeline.
//
// Usage:
//
//	go run ./cmd/ingest -dir ./corpus -source BaFin -type guideline -category aml
func main() {
	dir := flag.String("dir", "", "directory of .txt files to ingest (required)")
	source := flag.String("source", "", "issuing authority of the documents (required)")
	docType := flag.String("type", "guideline", "document type: rule, guideline, qa, statute or standard")
	category := flag.String("category", "", "topic category applied to every document")
	language := flag.String("language", "en", "document language code")
	flag.Parse()

	if *dir == "" || *source == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	documentRepo := repository.NewPostgresDocumentRepository(pool)
	passageRepo := repository.NewPostgresPassageRepository(pool)

	embedder, err := providers.NewEmbedder(cfg.Providers.Embedding)
	if err != nil {
		logger.Fatal("Failed to initialize embedding provider", zap.Error(err))
	}

	archive, err := storage.NewStorageFromEnv()
	if err != nil {
		logger.Fatal("Failed to initialize archive storage", zap.Error(err))
	}

	limiter := providers.NewRateLimiter(
		cfg.Providers.Embedding.RequestsPerSecond,
		cfg.Providers.Embedding.Burst,
	)

	ingestion := service.NewIngestionService(cfg.Pipeline,
		service.IngestionWithDocumentRepository(documentRepo),
		service.IngestionWithPassageRepository(passageRepo),
		service.IngestionWithEmbedder(embedder),
		service.IngestionWithRateLimiter(limiter),
		service.IngestionWithArchive(archive),
		service.IngestionWithLogger(logger),
	)

	var categories []string
	if *category != "" {
		categories = []string{*category}
	}

	entries, err := os.ReadDir(*dir)
	if err != nil {
		logger.Fatal("Failed to read input directory", zap.Error(err))
	}

	ingested, failed := 0, 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}

		path := filepath.Join(*dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			logger.Error("Failed to read file", zap.String("path", path), zap.Error(err))
			failed++
			continue
		}

		text := string(raw)
		title := strings.TrimSuffix(entry.Name(), ".txt")

		doc := &models.Document{
			Source:     *source,
			Type:       models.DocumentType(*docType),
			Categories: categories,
			Title:      title,
			Language:   *language,
			FullText:   &text,
			Status:     models.StatusScraped,
		}
		if err := doc.Validate(); err != nil {
			logger.Error("Invalid document", zap.String("file", entry.Name()), zap.Error(err))
			failed++
			continue
		}
		if err := documentRepo.Create(ctx, doc); err != nil {
			logger.Error("Failed to create document", zap.String("file", entry.Name()), zap.Error(err))
			failed++
			continue
		}

		status, err := ingestion.Process(ctx, doc.ID)
		if err != nil {
			logger.Error("Ingestion failed",
				zap.String("file", entry.Name()),
				zap.String("document_id", doc.ID.String()),
				zap.Error(err))
			failed++
			continue
		}

		logger.Info("Document ingested",
			zap.String("file", entry.Name()),
			zap.String("document_id", doc.ID.String()),
			zap.String("status", string(status)))
		ingested++
	}

	fmt.Printf("\n✅ Ingestion complete: %d ingested, %d failed\n", ingested, failed)
}
