package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ChunkMetadata carries lightweight lexical metadata extracted during
// chunking. Keywords are auxiliary only - they are never used for ranking.
type ChunkMetadata struct {
	Title    string   `json:"title,omitempty"`
	Headings []string `json:"headings,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// ContentChunk is the in-memory result of chunking one source. It is not
// persisted directly; the worker turns it into a KnowledgeChunk.
type ContentChunk struct {
	Text        string        `json:"text"`
	Index       int           `json:"index"` // Position within the source, reassigned after quality filtering
	ContentHash string        `json:"content_hash"`
	Metadata    ChunkMetadata `json:"metadata"`
}

// KnowledgeChunk is the persisted, embedded unit of retrievable content.
// Chunks are immutable once written; refresh replaces them wholesale.
type KnowledgeChunk struct {
	ID          string        `json:"id" badgerhold:"key"`
	ChatbotID   string        `json:"chatbot_id" badgerhold:"index"`
	SourceType  SourceType    `json:"source_type"`
	SourceURL   string        `json:"source_url" badgerhold:"index"`
	SourceTitle string        `json:"source_title"`
	ChunkText   string        `json:"chunk_text"`
	ChunkIndex  int           `json:"chunk_index"`
	ContentHash string        `json:"content_hash"`
	Embedding   []float32     `json:"embedding,omitempty"` // nil when generation failed; chunk is then unavailable for vector search
	Model       string        `json:"embedding_model,omitempty"`
	Metadata    ChunkMetadata `json:"metadata"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Fingerprint computes a 128-bit content fingerprint as lowercase hex.
// Hashing the same text twice yields the same fingerprint; changing one
// character changes it.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
