package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/parchment-ai/corpusd/internal/domain"
	"github.com/parchment-ai/corpusd/internal/metrics"
	"github.com/parchment-ai/corpusd/internal/telemetry"
	"github.com/parchment-ai/corpusd/internal/vectorstore"
)

// SearchMode selects how a query is answered.
type SearchMode string

const (
	SearchModeSemantic SearchMode = "semantic"
	SearchModeLexical  SearchMode = "lexical"
	SearchModeHybrid   SearchMode = "hybrid"
)

const (
	defaultSearchLimit   = 10
	maxSearchLimit       = 50
	candidateMultiplier  = 4
	minCandidates        = 20
	maxCandidates        = 100
	rrfK                 = 60
	semanticFusionWeight = 1.0
	lexicalFusionWeight  = 0.85
)

// SearchService answers retrieval queries over the vector store, optionally
// fused with keyword hits.
type SearchService struct {
	embedder Embedder
	store    VectorStore
	keyword  KeywordIndex
}

// NewSearchService creates a SearchService. keyword may be nil, which
// disables lexical and hybrid modes.
func NewSearchService(embedder Embedder, store VectorStore, keyword KeywordIndex) *SearchService {
	return &SearchService{embedder: embedder, store: store, keyword: keyword}
}

// SearchInput describes one retrieval query. TenantID and AgentID are
// mandatory; every query is scoped to exactly one tenant and agent.
type SearchInput struct {
	TenantID string
	AgentID  string
	Query    string
	Limit    int
	Mode     SearchMode

	// MaxDistance drops semantic matches farther than this cosine distance.
	// Zero disables the cutoff.
	MaxDistance float64
}

// SearchResult is one retrieval hit.
type SearchResult struct {
	ID         string
	DocumentID string
	ChunkIndex int
	Text       string
	Score      float64
	Distance   float64
	Metadata   map[string]string
}

// Search runs a query in the requested mode.
func (s *SearchService) Search(ctx context.Context, input SearchInput) ([]SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "SearchService.Search", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		AgentID:   input.AgentID,
		Operation: "search",
	})
	defer span.End()

	if input.TenantID == "" {
		return nil, domain.ErrMissingTenant
	}
	if input.AgentID == "" {
		return nil, domain.ErrMissingAgent
	}
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "search query is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	mode := s.normalizeMode(input.Mode)
	metrics.SearchRequests.WithLabelValues(string(mode)).Inc()

	candidateLimit := limit * candidateMultiplier
	if candidateLimit < minCandidates {
		candidateLimit = minCandidates
	}
	if candidateLimit > maxCandidates {
		candidateLimit = maxCandidates
	}

	var semantic []SearchResult
	if mode != SearchModeLexical {
		var err error
		semantic, err = s.searchSemantic(ctx, input, query, candidateLimit)
		if err != nil {
			return nil, err
		}
	}

	var keyword []SearchResult
	if mode != SearchModeSemantic && s.keyword != nil {
		hits, err := s.keyword.Search(ctx, input.TenantID, input.AgentID, query, candidateLimit)
		if err != nil {
			return nil, err
		}
		keyword = make([]SearchResult, len(hits))
		for i, hit := range hits {
			keyword[i] = SearchResult{
				ID:         hit.ID,
				DocumentID: hit.DocumentID,
				ChunkIndex: hit.ChunkIndex,
				Text:       hit.Text,
				Score:      hit.Score,
			}
		}
	}

	var out []SearchResult
	switch mode {
	case SearchModeSemantic:
		out = semantic
	case SearchModeLexical:
		out = keyword
	default:
		out = fuse(semantic, keyword)
	}

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SearchService) normalizeMode(mode SearchMode) SearchMode {
	switch SearchMode(strings.ToLower(strings.TrimSpace(string(mode)))) {
	case SearchModeSemantic:
		return SearchModeSemantic
	case SearchModeLexical:
		if s.keyword == nil {
			return SearchModeSemantic
		}
		return SearchModeLexical
	}
	if s.keyword == nil {
		return SearchModeSemantic
	}
	return SearchModeHybrid
}

func (s *SearchService) searchSemantic(ctx context.Context, input SearchInput, query string, limit int) ([]SearchResult, error) {
	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeEmbedding,
			"failed to embed search query", err)
	}

	matches, err := s.store.Search(ctx, vectorstore.SearchQuery{
		TenantID: input.TenantID,
		AgentID:  input.AgentID,
		Vector:   vector,
		Limit:    limit,
	})
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		if input.MaxDistance > 0 && m.Distance > input.MaxDistance {
			continue
		}
		results = append(results, fromStoreMatch(m))
	}
	return results, nil
}

func fromStoreMatch(m vectorstore.Match) SearchResult {
	chunkIndex, _ := strconv.Atoi(m.Metadata["chunk_index"])
	return SearchResult{
		ID:         m.ID,
		DocumentID: m.Metadata["document_id"],
		ChunkIndex: chunkIndex,
		Text:       m.Text,
		Score:      m.Score,
		Distance:   m.Distance,
		Metadata:   m.Metadata,
	}
}

// fuse merges semantic and keyword hits with reciprocal rank fusion, keyed by
// (document, chunk). Semantic rank carries slightly more weight.
func fuse(semantic, keyword []SearchResult) []SearchResult {
	type candidate struct {
		result SearchResult
		score  float64
	}
	candidates := make(map[string]*candidate)
	order := make([]string, 0, len(semantic)+len(keyword))

	add := func(list []SearchResult, weight float64) {
		for rank, r := range list {
			key := r.DocumentID + ":" + strconv.Itoa(r.ChunkIndex)
			cand, ok := candidates[key]
			if !ok {
				cand = &candidate{result: r}
				candidates[key] = cand
				order = append(order, key)
			}
			cand.score += weight / float64(rrfK+rank+1)
			if cand.result.Text == "" && r.Text != "" {
				cand.result.Text = r.Text
			}
			if cand.result.Metadata == nil && r.Metadata != nil {
				cand.result.Metadata = r.Metadata
				cand.result.Distance = r.Distance
			}
		}
	}
	add(semantic, semanticFusionWeight)
	add(keyword, lexicalFusionWeight)

	out := make([]SearchResult, 0, len(candidates))
	for _, key := range order {
		cand := candidates[key]
		cand.result.Score = cand.score
		out = append(out, cand.result)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
