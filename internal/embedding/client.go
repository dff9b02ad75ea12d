// Package embedding wraps the OpenAI embeddings API behind a batched,
// order-preserving client.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the OpenAI model used for generating embeddings
	DefaultModel = openai.SmallEmbedding3
	// DefaultDimensions is the expected dimension of embeddings from text-embedding-3-small
	DefaultDimensions = 1536

	// maxBatchSize bounds how many inputs go into a single API request.
	maxBatchSize = 128
)

var (
	// ErrEmptyText is returned when a query text is empty
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrWrongDimensions is returned when an embedding has unexpected dimensions
	ErrWrongDimensions = errors.New("embedding has wrong dimensions")
	// ErrNoAPIKey is returned when the OpenAI API key is not set
	ErrNoAPIKey = errors.New("OPENAI_API_KEY environment variable not set")
)

// BatchAPI defines the interface for batched embedding generation
type BatchAPI interface {
	CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Client generates fixed-dimension embedding vectors for chunks and queries.
// The dimension is fixed at construction and every response is validated
// against it.
type Client struct {
	api        BatchAPI
	dimensions int
}

type OpenAIAdapter struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

func NewOpenAIAdapter(apiKey string, model openai.EmbeddingModel) *OpenAIAdapter {
	if model == "" {
		model = DefaultModel
	}
	return &OpenAIAdapter{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CreateEmbeddings calls the OpenAI API and returns one vector per input, in
// input order.
func (a *OpenAIAdapter) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := a.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: a.model,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding response has %d entries for %d inputs", len(resp.Data), len(texts))
	}

	// The API is documented to return entries with an Index field; order by
	// it rather than trusting response order.
	vectors := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding response index %d out of range", item.Index)
		}
		vectors[item.Index] = item.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing entry for input %d", i)
		}
	}

	return vectors, nil
}

type Config struct {
	APIKey     string
	Model      openai.EmbeddingModel
	Dimensions int
}

// NewClient creates a new embedding client using defaults.
func NewClient(apiKey string) *Client {
	return NewClientWithConfig(Config{APIKey: apiKey})
}

// NewClientWithConfig creates a new embedding client with explicit configuration.
func NewClientWithConfig(cfg Config) *Client {
	dimensions := cfg.Dimensions
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &Client{
		api:        NewOpenAIAdapter(cfg.APIKey, cfg.Model),
		dimensions: dimensions,
	}
}

// NewClientFromEnv creates a new embedding client using the OPENAI_API_KEY
// environment variable.
func NewClientFromEnv() (*Client, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	return NewClient(apiKey), nil
}

// Dimensions returns the fixed embedding dimension.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// EmbedBatch generates one vector per text, preserving order. An empty input
// returns an empty result without calling the API.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for offset := 0; offset < len(texts); offset += maxBatchSize {
		end := offset + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := c.api.CreateEmbeddings(ctx, texts[offset:end])
		if err != nil {
			return nil, fmt.Errorf("failed to create embeddings: %w", err)
		}

		for _, v := range batch {
			if len(v) != c.dimensions {
				return nil, fmt.Errorf("%w: expected %d, got %d", ErrWrongDimensions, c.dimensions, len(v))
			}
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// EmbedQuery generates a single embedding for query-time search.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	return vectors[0], nil
}
