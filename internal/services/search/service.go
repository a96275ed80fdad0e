// -----------------------------------------------------------------------
// Search Service - cosine ranking of stored knowledge chunks
// -----------------------------------------------------------------------

package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/services/embeddings"
)

const defaultLimit = 10

// Service ranks a chatbot's chunks against a query embedding
type Service struct {
	logger   arbor.ILogger
	chunks   interfaces.ChunkStorage
	embedder interfaces.EmbeddingService
}

// NewService creates a new search service
func NewService(logger arbor.ILogger, chunks interfaces.ChunkStorage, embedder interfaces.EmbeddingService) interfaces.SearchService {
	return &Service{
		logger:   logger,
		chunks:   chunks,
		embedder: embedder,
	}
}

// Search embeds the query and returns the top chunks by cosine similarity.
// Chunks without embeddings are skipped; they are invisible to vector search
// until their vectors are regenerated.
func (s *Service) Search(ctx context.Context, chatbotID, query string, limit int) ([]*interfaces.SearchResult, error) {
	if chatbotID == "" {
		return nil, fmt.Errorf("chatbot_id is required")
	}
	if query == "" {
		return nil, fmt.Errorf("query is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}

	start := time.Now()

	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.chunks.GetChunksByChatbot(ctx, chatbotID)
	if err != nil {
		return nil, err
	}

	results := make([]*interfaces.SearchResult, 0, len(chunks))
	skipped := 0
	for _, chunk := range chunks {
		if chunk.Embedding == nil {
			skipped++
			continue
		}
		score, err := embeddings.CosineSimilarity(queryVec, chunk.Embedding)
		if err != nil {
			s.logger.Warn().Err(err).Str("chunk_id", chunk.ID).Msg("Skipping chunk with incompatible embedding")
			continue
		}
		results = append(results, &interfaces.SearchResult{Chunk: chunk, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	s.logger.Debug().
		Str("chatbot_id", chatbotID).
		Int("candidates", len(chunks)).
		Int("skipped", skipped).
		Int("results", len(results)).
		Dur("duration", time.Since(start)).
		Msg("Search completed")

	return results, nil
}
