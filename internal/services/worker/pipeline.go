package worker

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
	"github.com/ternarybob/colligo/internal/services/quota"
)

// Pipeline executes the fetch -> quota -> chunk -> embed -> persist sequence
// for one task.
type Pipeline struct {
	logger   arbor.ILogger
	fetcher  interfaces.FetchService
	chunker  interfaces.ChunkService
	embedder interfaces.EmbeddingService
	quota    interfaces.QuotaService
	chunks   interfaces.ChunkStorage
	crawls   interfaces.CrawlStorage
}

// NewPipeline wires the task pipeline stages together
func NewPipeline(
	logger arbor.ILogger,
	fetcher interfaces.FetchService,
	chunker interfaces.ChunkService,
	embedder interfaces.EmbeddingService,
	quotaGuard interfaces.QuotaService,
	chunks interfaces.ChunkStorage,
	crawls interfaces.CrawlStorage,
) *Pipeline {
	return &Pipeline{
		logger:   logger,
		fetcher:  fetcher,
		chunker:  chunker,
		embedder: embedder,
		quota:    quotaGuard,
		chunks:   chunks,
		crawls:   crawls,
	}
}

// Run processes one task and returns the number of chunks created. Any error
// is classified by the caller via models.IsRetryable.
func (p *Pipeline) Run(ctx context.Context, job *models.IndexJob, task *models.IndexTask) (int, error) {
	var result *interfaces.FetchResult
	var err error
	var reservedMB float64

	switch task.SourceType {
	case models.SourceTypeDocument:
		result, err = p.fetcher.ReadDocument(ctx, task.SourceURL)
		if err != nil {
			return 0, err
		}
		// Documents with no extractable text auto-complete with zero chunks
		if result.Content == "" {
			return 0, nil
		}
	default:
		result, err = p.fetcher.Fetch(ctx, task.SourceURL)
		if err != nil {
			return 0, err
		}

		reservedMB = quota.ContentSizeMB(len(result.Content))
		if _, err := p.quota.TryReserve(ctx, job.TenantID, reservedMB); err != nil {
			return 0, err
		}
	}

	fingerprint := models.Fingerprint(result.Content)

	// Refresh jobs skip sources whose content is unchanged since the last
	// crawl. The reserved quota is released because nothing new is stored.
	if job.SkipUnchanged && task.SourceType == models.SourceTypeWebsite {
		record, err := p.crawls.GetRecord(ctx, job.ChatbotID, task.SourceURL)
		if err == nil && record != nil && record.ContentHash == fingerprint {
			p.quota.TryReserve(ctx, job.TenantID, -reservedMB)
			p.recordCrawl(ctx, job.ChatbotID, task.SourceURL, fingerprint)
			p.logger.Debug().
				Str("task_id", task.ID).
				Str("source_url", task.SourceURL).
				Msg("Content unchanged, skipping re-index")
			return 0, nil
		}
	}

	text := result.Markdown
	if text == "" {
		text = result.Content
	}
	contentChunks := p.chunker.Chunk(text, interfaces.ChunkOptions{Title: result.Title})
	if len(contentChunks) == 0 {
		if task.SourceType == models.SourceTypeWebsite {
			// Nothing gets stored, so the reservation is handed back
			p.quota.TryReserve(ctx, job.TenantID, -reservedMB)
			p.recordCrawl(ctx, job.ChatbotID, task.SourceURL, fingerprint)
		}
		return 0, nil
	}

	// Replace any prior chunks for this source so a re-index never leaves
	// stale content behind. The replaced bytes stop counting against the
	// tenant, otherwise repeated refreshes ratchet usage up to the limit.
	priorBytes := 0
	if task.SourceType == models.SourceTypeWebsite {
		prior, err := p.chunks.GetChunksBySource(ctx, job.ChatbotID, task.SourceURL)
		if err != nil {
			return 0, err
		}
		for _, c := range prior {
			priorBytes += len(c.ChunkText)
		}
	}
	if _, err := p.chunks.DeleteChunksForSource(ctx, job.ChatbotID, task.SourceURL); err != nil {
		return 0, err
	}
	if priorBytes > 0 {
		p.quota.TryReserve(ctx, job.TenantID, -quota.ContentSizeMB(priorBytes))
	}

	knowledge := make([]*models.KnowledgeChunk, 0, len(contentChunks))
	embedFailures := 0
	for _, chunk := range contentChunks {
		// An embedding failure never fails the task: the chunk is stored
		// without a vector and is simply unavailable for vector search.
		vector, err := p.embedder.Embed(ctx, chunk.Text)
		model := p.embedder.ModelName()
		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("task_id", task.ID).
				Int("chunk_index", chunk.Index).
				Msg("Embedding generation failed, storing chunk without vector")
			vector = nil
			model = ""
			embedFailures++
		}

		knowledge = append(knowledge, &models.KnowledgeChunk{
			ID:          common.NewChunkID(),
			ChatbotID:   job.ChatbotID,
			SourceType:  task.SourceType,
			SourceURL:   task.SourceURL,
			SourceTitle: result.Title,
			ChunkText:   chunk.Text,
			ChunkIndex:  chunk.Index,
			ContentHash: chunk.ContentHash,
			Embedding:   vector,
			Model:       model,
			Metadata:    chunk.Metadata,
			CreatedAt:   time.Now(),
		})
	}

	if err := p.chunks.SaveChunks(ctx, knowledge); err != nil {
		return 0, err
	}

	if task.SourceType == models.SourceTypeWebsite {
		p.recordCrawl(ctx, job.ChatbotID, task.SourceURL, fingerprint)
	}

	if embedFailures > 0 {
		p.logger.Warn().
			Str("task_id", task.ID).
			Int("failures", embedFailures).
			Int("chunks", len(knowledge)).
			Msg("Task completed with partial embedding coverage")
	}

	return len(knowledge), nil
}

// recordCrawl upserts the crawl fingerprint; a failure here is logged and
// swallowed because the chunks are already safely persisted.
func (p *Pipeline) recordCrawl(ctx context.Context, chatbotID, url, fingerprint string) {
	if err := p.crawls.UpsertRecord(ctx, chatbotID, url, fingerprint, time.Now()); err != nil {
		p.logger.Warn().Err(err).Str("url", url).Msg("Failed to record crawl fingerprint")
	}
}
