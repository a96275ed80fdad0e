package search

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/embeddings"
	badgerstorage "github.com/ternarybob/colligo/internal/storage/badger"
)

func newSearchEnv(t *testing.T) (*Service, *badgerstorage.Manager) {
	t.Helper()
	logger := arbor.NewLogger()

	store, err := badgerstorage.NewManager(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	embedder, err := embeddings.NewFromConfig(logger, &common.EmbeddingsConfig{
		Mode: "offline", Dimension: 64, Timeout: "5s",
	})
	require.NoError(t, err)

	return NewService(logger, store.Chunks, embedder).(*Service), store
}

func seedChunk(t *testing.T, store *badgerstorage.Manager, embedder func(string) []float32, id, chatbotID, text string) {
	t.Helper()
	var vec []float32
	if embedder != nil {
		vec = embedder(text)
	}
	require.NoError(t, store.Chunks.SaveChunks(context.Background(), []*models.KnowledgeChunk{{
		ID:        id,
		ChatbotID: chatbotID,
		SourceURL: "https://example.com/" + id,
		ChunkText: text,
		Embedding: vec,
		CreatedAt: time.Now(),
	}}))
}

func TestSearchRanksExactMatchFirst(t *testing.T) {
	svc, store := newSearchEnv(t)
	ctx := context.Background()

	embed := func(text string) []float32 {
		vec, err := svc.embedder.Embed(ctx, text)
		require.NoError(t, err)
		return vec
	}

	seedChunk(t, store, embed, "chk-1", "bot-1", "How to reset your password")
	seedChunk(t, store, embed, "chk-2", "bot-1", "Billing and invoices overview")
	seedChunk(t, store, embed, "chk-3", "bot-1", "Integrations with external tools")

	results, err := svc.Search(ctx, "bot-1", "How to reset your password", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// The offline embedder is deterministic, so the identical text is a
	// perfect match and must rank first
	assert.Equal(t, "chk-1", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	assert.GreaterOrEqual(t, results[1].Score, results[2].Score)
}

func TestSearchSkipsChunksWithoutEmbeddings(t *testing.T) {
	svc, store := newSearchEnv(t)
	ctx := context.Background()

	embed := func(text string) []float32 {
		vec, err := svc.embedder.Embed(ctx, text)
		require.NoError(t, err)
		return vec
	}

	seedChunk(t, store, embed, "chk-1", "bot-1", "Configuring webhooks")
	seedChunk(t, store, nil, "chk-2", "bot-1", "Chunk that failed embedding")

	results, err := svc.Search(ctx, "bot-1", "webhooks", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "chk-1", results[0].Chunk.ID)
}

func TestSearchScopedToChatbot(t *testing.T) {
	svc, store := newSearchEnv(t)
	ctx := context.Background()

	embed := func(text string) []float32 {
		vec, err := svc.embedder.Embed(ctx, text)
		require.NoError(t, err)
		return vec
	}

	seedChunk(t, store, embed, "chk-1", "bot-1", "Alpha content")
	seedChunk(t, store, embed, "chk-2", "bot-2", "Beta content")

	results, err := svc.Search(ctx, "bot-1", "content", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "bot-1", results[0].Chunk.ChatbotID)
}

func TestSearchLimit(t *testing.T) {
	svc, store := newSearchEnv(t)
	ctx := context.Background()

	embed := func(text string) []float32 {
		vec, err := svc.embedder.Embed(ctx, text)
		require.NoError(t, err)
		return vec
	}

	for i := 0; i < 5; i++ {
		seedChunk(t, store, embed, common.NewChunkID(), "bot-1", "Document section "+common.NewChunkID())
	}

	results, err := svc.Search(ctx, "bot-1", "section", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestSearchValidation(t *testing.T) {
	svc, _ := newSearchEnv(t)
	ctx := context.Background()

	_, err := svc.Search(ctx, "", "query", 10)
	assert.Error(t, err)

	_, err = svc.Search(ctx, "bot-1", "", 10)
	assert.Error(t, err)
}
