// -----------------------------------------------------------------------
// Embedding Service - lazily-initialized vector generation with
// single-flight startup
// -----------------------------------------------------------------------

package embeddings

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service wraps a Provider with lazy single-flight initialization and
// output normalization.
type Service struct {
	logger    arbor.ILogger
	provider  Provider
	dimension int
	timeout   time.Duration

	// mu guards initialization. Concurrent first callers block on it and
	// share the one in-flight init; a failed init is retried by the next
	// caller rather than being cached forever.
	mu          sync.Mutex
	initialized bool
}

// NewService creates an embedding service over the given provider
func NewService(logger arbor.ILogger, provider Provider, config *common.EmbeddingsConfig) interfaces.EmbeddingService {
	timeout := time.Minute
	if d, err := time.ParseDuration(config.Timeout); err == nil && d > 0 {
		timeout = d
	}

	return &Service{
		logger:    logger,
		provider:  provider,
		dimension: config.Dimension,
		timeout:   timeout,
	}
}

// NewFromConfig builds the provider selected by the embeddings mode
func NewFromConfig(logger arbor.ILogger, config *common.EmbeddingsConfig) (interfaces.EmbeddingService, error) {
	var provider Provider
	switch strings.ToLower(config.Mode) {
	case "gemini":
		provider = NewGeminiProvider(logger, config)
	case "offline", "":
		provider = NewOfflineProvider(config.Dimension)
	default:
		return nil, fmt.Errorf("unknown embeddings mode: %s", config.Mode)
	}
	return NewService(logger, provider, config), nil
}

// Embed generates a unit-length vector for text, initializing the provider
// on first use.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &models.EmbeddingError{Err: fmt.Errorf("text cannot be empty")}
	}

	if err := s.ensureInitialized(ctx); err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	vec, err := s.provider.Embed(embedCtx, text)
	if err != nil {
		return nil, &models.EmbeddingError{Err: err}
	}

	normalize(vec)

	s.logger.Debug().
		Str("provider", s.provider.Name()).
		Int("dimension", len(vec)).
		Dur("duration", time.Since(start)).
		Msg("Generated embedding")

	return vec, nil
}

// ensureInitialized performs the one-time provider init under the mutex
func (s *Service) ensureInitialized(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	s.logger.Info().Str("provider", s.provider.Name()).Msg("Initializing embedding provider")
	if err := s.provider.Init(ctx); err != nil {
		return fmt.Errorf("embedding provider init failed: %w", err)
	}

	s.initialized = true
	return nil
}

// Dimension returns the configured output dimensionality
func (s *Service) Dimension() int {
	return s.dimension
}

// ModelName returns the backing model identifier
func (s *Service) ModelName() string {
	return s.provider.Name()
}

// normalize scales a vector to unit length in place
func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
}

// CosineSimilarity computes the cosine similarity of two vectors. Vectors of
// different dimensions are an error, never a silent zero.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, &models.DimensionMismatchError{LenA: len(a), LenB: len(b)}
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("empty vectors")
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
