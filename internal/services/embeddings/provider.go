package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ternarybob/arbor"
	"google.golang.org/genai"

	"github.com/ternarybob/colligo/internal/common"
)

// Provider is a backing embedding model. Init is called once by the service
// before the first Embed.
type Provider interface {
	Init(ctx context.Context) error
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// GeminiProvider generates embeddings through the Gemini API
type GeminiProvider struct {
	logger    arbor.ILogger
	apiKey    string
	model     string
	dimension int
	client    *genai.Client
}

// NewGeminiProvider creates a Gemini-backed embedding provider
func NewGeminiProvider(logger arbor.ILogger, config *common.EmbeddingsConfig) *GeminiProvider {
	return &GeminiProvider{
		logger:    logger,
		apiKey:    config.APIKey,
		model:     config.Model,
		dimension: config.Dimension,
	}
}

func (p *GeminiProvider) Init(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("gemini embeddings require an API key")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return fmt.Errorf("failed to create gemini client: %w", err)
	}

	p.client = client
	p.logger.Info().Str("model", p.model).Int("dimension", p.dimension).Msg("Gemini embedding client initialized")
	return nil
}

func (p *GeminiProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	outputDim := int32(p.dimension)
	config := &genai.EmbedContentConfig{
		OutputDimensionality: &outputDim,
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}, config)
	if err != nil {
		return nil, fmt.Errorf("embedding generation failed: %w", err)
	}

	var embedding []float32
	if result != nil && len(result.Embeddings) > 0 {
		embedding = result.Embeddings[0].Values
	}
	if embedding == nil {
		return nil, fmt.Errorf("no embedding returned from API")
	}
	if len(embedding) != p.dimension {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", p.dimension, len(embedding))
	}

	return embedding, nil
}

func (p *GeminiProvider) Name() string {
	return p.model
}

// OfflineProvider produces deterministic pseudo-embeddings with no network
// calls. Identical text always yields an identical vector, so change
// detection and similarity tests behave consistently in development.
type OfflineProvider struct {
	dimension int
}

// NewOfflineProvider creates a local deterministic provider
func NewOfflineProvider(dimension int) *OfflineProvider {
	return &OfflineProvider{dimension: dimension}
}

func (p *OfflineProvider) Init(ctx context.Context) error {
	return nil
}

func (p *OfflineProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, p.dimension)
	seed := sha256.Sum256([]byte(text))

	// Stretch the digest over the full vector by re-hashing per block
	block := seed[:]
	for i := 0; i < p.dimension; i++ {
		if i%8 == 0 && i > 0 {
			next := sha256.Sum256(block)
			block = next[:]
		}
		bits := binary.BigEndian.Uint32(block[(i%8)*4 : (i%8)*4+4])
		vec[i] = float32(bits%2000)/1000.0 - 1.0
	}

	// Unit length so cosine similarity behaves like the real model
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (p *OfflineProvider) Name() string {
	return "offline"
}
