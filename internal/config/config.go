package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port  string `envconfig:"PORT" default:"8080"`
	Debug bool   `envconfig:"DEBUG" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	QdrantHost string `envconfig:"QDRANT_HOST" default:"localhost"`
	QdrantPort int    `envconfig:"QDRANT_PORT" default:"6334"`

	OpenAIAPIKey        string `envconfig:"OPENAI_API_KEY"`
	EmbeddingModel      string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-3-small"`
	EmbeddingDimensions int    `envconfig:"EMBEDDING_DIMENSIONS" default:"1536"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"corpus-content"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	// KeywordIndexPath is where the on-disk lexical index lives. Empty
	// disables keyword and hybrid search.
	KeywordIndexPath string `envconfig:"KEYWORD_INDEX_PATH"`

	ChunkSize    int `envconfig:"CHUNK_SIZE" default:"800"`
	ChunkOverlap int `envconfig:"CHUNK_OVERLAP" default:"200"`

	MaxBodyBytes int64 `envconfig:"MAX_BODY_BYTES" default:"52428800"`

	OCRLanguage string `envconfig:"OCR_LANGUAGE" default:"eng"`

	// BrowserRendering enables headless-browser fetches for URL documents.
	BrowserRendering bool `envconfig:"BROWSER_RENDERING" default:"false"`

	// ReconcileInterval is how often the background sweep runs. Zero
	// disables the background worker; sweeps can still be triggered over
	// the API.
	ReconcileInterval time.Duration `envconfig:"RECONCILE_INTERVAL"`

	SentryDSN string `envconfig:"SENTRY_DSN"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("CORPUS", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasKeywordIndex() bool {
	return c.KeywordIndexPath != ""
}
