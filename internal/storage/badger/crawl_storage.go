package badger

import (
	"context"
	"sort"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// CrawlStorage implements the CrawlStorage interface for Badger
type CrawlStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewCrawlStorage creates a new CrawlStorage instance
func NewCrawlStorage(db *BadgerDB, logger arbor.ILogger) interfaces.CrawlStorage {
	return &CrawlStorage{
		db:     db,
		logger: logger,
	}
}

func (s *CrawlStorage) UpsertRecord(ctx context.Context, chatbotID, normalizedURL, contentHash string, crawledAt time.Time) error {
	record := &models.URLCrawlRecord{
		ID:            models.CrawlRecordID(chatbotID, normalizedURL),
		ChatbotID:     chatbotID,
		URL:           normalizedURL,
		ContentHash:   contentHash,
		LastCrawledAt: crawledAt,
	}
	if err := s.db.Store().Upsert(record.ID, record); err != nil {
		return &models.PersistenceError{Op: "upsert crawl record", Err: err}
	}
	return nil
}

func (s *CrawlStorage) GetRecord(ctx context.Context, chatbotID, normalizedURL string) (*models.URLCrawlRecord, error) {
	var record models.URLCrawlRecord
	if err := s.db.Store().Get(models.CrawlRecordID(chatbotID, normalizedURL), &record); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, &models.PersistenceError{Op: "get crawl record", Err: err}
	}
	return &record, nil
}

func (s *CrawlStorage) ListByChatbot(ctx context.Context, chatbotID string) ([]*models.URLCrawlRecord, error) {
	var records []models.URLCrawlRecord
	query := badgerhold.Where("ChatbotID").Eq(chatbotID).SortBy("LastCrawledAt").Reverse()
	if err := s.db.Store().Find(&records, query); err != nil {
		return nil, &models.PersistenceError{Op: "list crawl records", Err: err}
	}

	result := make([]*models.URLCrawlRecord, len(records))
	for i := range records {
		result[i] = &records[i]
	}
	return result, nil
}

// ListChatbotIDs returns the distinct chatbots that have at least one crawl
// record. The refresh scheduler uses this to enumerate refresh candidates.
func (s *CrawlStorage) ListChatbotIDs(ctx context.Context) ([]string, error) {
	var records []models.URLCrawlRecord
	if err := s.db.Store().Find(&records, nil); err != nil {
		return nil, &models.PersistenceError{Op: "list crawl records", Err: err}
	}

	seen := make(map[string]struct{})
	for i := range records {
		seen[records[i].ChatbotID] = struct{}{}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
