package badger

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// ChunkStorage implements the ChunkStorage interface for Badger
type ChunkStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewChunkStorage creates a new ChunkStorage instance
func NewChunkStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ChunkStorage {
	return &ChunkStorage{
		db:     db,
		logger: logger,
	}
}

func (s *ChunkStorage) SaveChunks(ctx context.Context, chunks []*models.KnowledgeChunk) error {
	for _, chunk := range chunks {
		if chunk.ID == "" {
			return fmt.Errorf("chunk ID is required")
		}
		if err := s.db.Store().Upsert(chunk.ID, chunk); err != nil {
			return &models.PersistenceError{Op: "save chunk", Err: err}
		}
	}
	return nil
}

func (s *ChunkStorage) GetChunksByChatbot(ctx context.Context, chatbotID string) ([]*models.KnowledgeChunk, error) {
	var chunks []models.KnowledgeChunk
	query := badgerhold.Where("ChatbotID").Eq(chatbotID).Index("ChatbotID")
	if err := s.db.Store().Find(&chunks, query); err != nil {
		return nil, &models.PersistenceError{Op: "get chunks by chatbot", Err: err}
	}

	result := make([]*models.KnowledgeChunk, len(chunks))
	for i := range chunks {
		result[i] = &chunks[i]
	}
	return result, nil
}

// GetChunksBySource returns the chunks of one (chatbot, source) pair ordered
// by chunk index.
func (s *ChunkStorage) GetChunksBySource(ctx context.Context, chatbotID, sourceURL string) ([]*models.KnowledgeChunk, error) {
	var chunks []models.KnowledgeChunk
	query := badgerhold.Where("ChatbotID").Eq(chatbotID).And("SourceURL").Eq(sourceURL).SortBy("ChunkIndex")
	if err := s.db.Store().Find(&chunks, query); err != nil {
		return nil, &models.PersistenceError{Op: "get chunks by source", Err: err}
	}

	result := make([]*models.KnowledgeChunk, len(chunks))
	for i := range chunks {
		result[i] = &chunks[i]
	}
	return result, nil
}

// DeleteChunksForSource removes every chunk for one (chatbot, source) pair.
// Called before re-indexing a source so stale chunks never survive a refresh.
func (s *ChunkStorage) DeleteChunksForSource(ctx context.Context, chatbotID, sourceURL string) (int, error) {
	var chunks []models.KnowledgeChunk
	query := badgerhold.Where("ChatbotID").Eq(chatbotID).And("SourceURL").Eq(sourceURL)
	if err := s.db.Store().Find(&chunks, query); err != nil {
		return 0, &models.PersistenceError{Op: "find chunks for source", Err: err}
	}

	count := 0
	for i := range chunks {
		if err := s.db.Store().Delete(chunks[i].ID, &models.KnowledgeChunk{}); err != nil {
			if err == badgerhold.ErrNotFound {
				continue
			}
			return count, &models.PersistenceError{Op: "delete chunk", Err: err}
		}
		count++
	}

	if count > 0 {
		s.logger.Debug().
			Str("chatbot_id", chatbotID).
			Str("source_url", sourceURL).
			Int("deleted", count).
			Msg("Deleted stale chunks for source")
	}
	return count, nil
}

func (s *ChunkStorage) CountChunks(ctx context.Context, chatbotID string) (int, error) {
	count, err := s.db.Store().Count(&models.KnowledgeChunk{}, badgerhold.Where("ChatbotID").Eq(chatbotID))
	if err != nil {
		return 0, &models.PersistenceError{Op: "count chunks", Err: err}
	}
	return int(count), nil
}
