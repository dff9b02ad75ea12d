package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/qdrant/go-client/qdrant"
	openai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"

	"github.com/parchment-ai/corpusd/internal/chunker"
	"github.com/parchment-ai/corpusd/internal/classifier"
	"github.com/parchment-ai/corpusd/internal/config"
	"github.com/parchment-ai/corpusd/internal/database"
	"github.com/parchment-ai/corpusd/internal/embedding"
	"github.com/parchment-ai/corpusd/internal/extractor"
	"github.com/parchment-ai/corpusd/internal/lexical"
	"github.com/parchment-ai/corpusd/internal/repository"
	"github.com/parchment-ai/corpusd/internal/service"
	"github.com/parchment-ai/corpusd/internal/storage"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

// ReconcileCmd returns the reconcile command
func ReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation sweep",
		Long:  "Scan the document ledger and drive every document toward vector coverage, then exit",
		RunE:  runReconcile,
	}

	cmd.Flags().String("tenant", "", "Limit the sweep to one tenant")
	cmd.Flags().String("agent", "", "Limit the sweep to one agent (requires --tenant)")

	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("CORPUS_OPENAI_API_KEY is required: reconciliation re-embeds documents")
	}

	tenantID, _ := cmd.Flags().GetString("tenant")
	agentID, _ := cmd.Flags().GetString("agent")
	if agentID != "" && tenantID == "" {
		return fmt.Errorf("--agent requires --tenant")
	}

	pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer pool.Close()

	qdrantClient, err := qdrant.NewClient(&qdrant.Config{
		Host: cfg.QdrantHost,
		Port: cfg.QdrantPort,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to qdrant: %w", err)
	}
	defer qdrantClient.Close()

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
		contentStore = s3Client
	}

	var keywordIndex service.KeywordIndex
	if cfg.HasKeywordIndex() {
		idx, err := lexical.NewIndex(cfg.KeywordIndexPath)
		if err != nil {
			return fmt.Errorf("failed to open keyword index: %w", err)
		}
		defer idx.Close()
		keywordIndex = idx
	}

	webStrategy := extractor.NewPlainWebStrategy()
	if cfg.BrowserRendering {
		webStrategy = extractor.NewWebStrategy()
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
	reconcileSvc := service.NewReconcileService(ledger, store, ingestionSvc, classifier.Classify, contentStore)

	summary, err := reconcileSvc.Reconcile(ctx, service.ReconcileInput{
		TenantID: tenantID,
		AgentID:  agentID,
	})
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	log.Printf("sweep complete: %d synced, %d skipped, %d failed",
		summary.Synced, summary.Skipped, summary.Failed)
	return nil
}
