package admin

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/qdrant/go-client/qdrant"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/parchment-ai/corpusd/internal/api/handlers"
	"github.com/parchment-ai/corpusd/internal/chunker"
	"github.com/parchment-ai/corpusd/internal/classifier"
	"github.com/parchment-ai/corpusd/internal/config"
	"github.com/parchment-ai/corpusd/internal/database"
	"github.com/parchment-ai/corpusd/internal/embedding"
	"github.com/parchment-ai/corpusd/internal/extractor"
	"github.com/parchment-ai/corpusd/internal/jobs"
	"github.com/parchment-ai/corpusd/internal/lexical"
	"github.com/parchment-ai/corpusd/internal/repository"
	"github.com/parchment-ai/corpusd/internal/server"
	"github.com/parchment-ai/corpusd/internal/service"
	"github.com/parchment-ai/corpusd/internal/storage"
	"github.com/parchment-ai/corpusd/internal/telemetry"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the corpusd API server on the specified port",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.SentryDSN != "" {
		environment := os.Getenv("ENVIRONMENT")
		if environment == "" {
			environment = "development"
		}

		// Default to 10% sampling in production, 100% in development
		sampleRate := 0.1
		if environment == "development" {
			sampleRate = 1.0
		}

		shutdownTelemetry, err := telemetry.Init(telemetry.Config{
			DSN:              cfg.SentryDSN,
			Environment:      environment,
			TracesSampleRate: sampleRate,
		})
		if err != nil {
			log.Printf("telemetry init failed (continuing without tracing): %v", err)
		} else {
			defer shutdownTelemetry()
		}
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()
	log.Println("connected to database")

	// Run migrations unless --no-migrate flag is set
	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	if !noMigrate {
		if err := runMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	if !cfg.HasOpenAI() {
		return fmt.Errorf("CORPUS_OPENAI_API_KEY is required: the pipeline cannot embed without it")
	}

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	defer qdrantClient.Close()
	log.Printf("connected to qdrant at %s:%d", cfg.QdrantHost, cfg.QdrantPort)

	ledger := repository.NewDocumentRepository(pool)

	embedder := embedding.NewClientWithConfig(embedding.Config{
		APIKey:     cfg.OpenAIAPIKey,
		Model:      openai.EmbeddingModel(cfg.EmbeddingModel),
		Dimensions: cfg.EmbeddingDimensions,
	})

	store := vectorstore.NewStore(qdrantClient, vectorstore.Config{
		Dimensions: embedder.Dimensions(),
	})

	var contentStore service.ContentStore
	if cfg.HasS3() {
		s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
			Bucket:          cfg.S3Bucket,
			UsePathStyle:    true,
		})
		if err != nil {
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		if err := s3Client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to ensure S3 bucket: %w", err)
		}
		log.Printf("S3 bucket '%s' ready, raw content offloaded", cfg.S3Bucket)
		contentStore = s3Client
	}

	var keywordIndex service.KeywordIndex
	if cfg.HasKeywordIndex() {
		idx, err := lexical.NewIndex(cfg.KeywordIndexPath)
		if err != nil {
			return fmt.Errorf("failed to open keyword index: %w", err)
		}
		defer idx.Close()
		log.Printf("keyword index open at %s", cfg.KeywordIndexPath)
		keywordIndex = idx
	}

	webStrategy := extractor.NewPlainWebStrategy()
	if cfg.BrowserRendering {
		webStrategy = extractor.NewWebStrategy()
		log.Println("browser rendering enabled for url documents")
	}
	registry := extractor.NewRegistry(
		extractor.NewOCRStrategy(extractor.NewGosseractEngine(cfg.OCRLanguage)),
		webStrategy,
		extractor.NewDirectStrategy(),
	)

	ingestionSvc := service.NewIngestionService(ledger, classifier.Classify, registry, embedder, store,
		service.IngestionOptions{
			ContentStore: contentStore,
			KeywordIndex: keywordIndex,
			ChunkConfig:  chunker.Config{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap},
		})
	searchSvc := service.NewSearchService(embedder, store, keywordIndex)
	documentSvc := service.NewDocumentService(ledger, store, keywordIndex, contentStore)
	reconcileSvc := service.NewReconcileService(ledger, store, ingestionSvc, classifier.Classify, contentStore)

	var reconcileWorker *jobs.Worker
	if cfg.ReconcileInterval > 0 {
		reconcileWorker = jobs.NewWorker(jobs.NewReconcileWorker(reconcileSvc), cfg.ReconcileInterval)
		go reconcileWorker.Start(ctx)
		log.Printf("reconcile worker started (interval %v)", cfg.ReconcileInterval)
	}

	router := server.NewRouter(server.RouterConfig{
		IngestHandler:    handlers.NewIngestHandler(ingestionSvc),
		DocumentHandler:  handlers.NewDocumentHandler(documentSvc),
		SearchHandler:    handlers.NewSearchHandler(searchSvc),
		ReconcileHandler: handlers.NewReconcileHandler(reconcileSvc),
		MaxBodyBytes:     cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	if reconcileWorker != nil {
		reconcileWorker.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

func runMigrations(databaseURL string) error {
	// Create a sql.DB connection for golang-migrate
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	// Create postgres driver instance
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	// Create migrate instance with file source
	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	// Run migrations
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	// Get migration version and status
	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else if err == migrate.ErrNoChange {
		log.Printf("migrations: database is up to date (version %d)", version)
	} else {
		log.Printf("migrations: applied successfully (version %d)", version)
	}

	return nil
}
