package models

import (
	"time"
)

// URLCrawlRecord stores the content fingerprint of the last successful crawl
// of a URL for one chatbot. One logical record per (chatbot, normalized URL) -
// records are upserted, not appended, so the store does not grow with every
// re-crawl.
type URLCrawlRecord struct {
	ID            string    `json:"id" badgerhold:"key"` // chatbotID|normalizedURL
	ChatbotID     string    `json:"chatbot_id" badgerhold:"index"`
	URL           string    `json:"url"` // Normalized form
	ContentHash   string    `json:"content_hash"`
	LastCrawledAt time.Time `json:"last_crawled_at"`
}

// CrawlRecordID builds the composite key for a crawl record
func CrawlRecordID(chatbotID, normalizedURL string) string {
	return chatbotID + "|" + normalizedURL
}
