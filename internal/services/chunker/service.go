// -----------------------------------------------------------------------
// Chunker Service - split source text into overlapping, bounded chunks
// -----------------------------------------------------------------------

package chunker

import (
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// boilerplatePhrases mark form and footer noise. A short chunk matching three
// or more of these is dropped by the quality filter.
var boilerplatePhrases = []string{
	"confirm password",
	"privacy policy",
	"required fields",
	"terms of service",
	"terms and conditions",
	"all rights reserved",
	"forgot password",
	"sign in",
	"sign up",
	"subscribe to our newsletter",
	"cookie policy",
	"email address",
}

// Service implements paragraph-first chunking with sliding-window overlap
type Service struct {
	logger   arbor.ILogger
	defaults common.ChunkerConfig
}

// NewService creates a new chunking service
func NewService(logger arbor.ILogger, config *common.ChunkerConfig) interfaces.ChunkService {
	return &Service{
		logger:   logger,
		defaults: *config,
	}
}

// Chunk splits text into quality-filtered chunks. Empty input yields an
// empty slice, never an error.
func (s *Service) Chunk(text string, opts interfaces.ChunkOptions) []models.ContentChunk {
	maxSize := opts.MaxChunkSize
	if maxSize <= 0 {
		maxSize = s.defaults.MaxChunkSize
	}
	minSize := opts.MinChunkSize
	if minSize <= 0 {
		minSize = s.defaults.MinChunkSize
	}
	overlap := opts.Overlap
	if overlap <= 0 {
		overlap = s.defaults.Overlap
	}

	paragraphs := splitParagraphs(text, maxSize, overlap)
	if len(paragraphs) == 0 {
		return nil
	}

	raw := accumulate(paragraphs, maxSize, minSize, overlap)
	filtered := qualityFilter(raw)

	chunks := make([]models.ContentChunk, 0, len(filtered))
	for i, chunkText := range filtered {
		// Headings and keywords describe the chunk itself, not the whole
		// source - a chunk from the install section must not carry the
		// troubleshooting section's headings.
		chunks = append(chunks, models.ContentChunk{
			Text:        chunkText,
			Index:       i,
			ContentHash: models.Fingerprint(chunkText),
			Metadata: models.ChunkMetadata{
				Title:    opts.Title,
				Headings: extractHeadings(chunkText),
				Keywords: extractKeywords(chunkText),
			},
		})
	}

	s.logger.Debug().
		Int("paragraphs", len(paragraphs)).
		Int("raw_chunks", len(raw)).
		Int("chunks", len(chunks)).
		Msg("Text chunked")

	return chunks
}

// splitParagraphs breaks text on blank lines and re-splits any paragraph
// that exceeds the chunk size on its own.
func splitParagraphs(text string, maxSize, overlap int) []string {
	var paragraphs []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if len(p) <= maxSize {
			paragraphs = append(paragraphs, p)
			continue
		}
		paragraphs = append(paragraphs, splitOversize(p, maxSize, overlap)...)
	}
	return paragraphs
}

// splitOversize re-splits one oversized paragraph by sentence, falling back
// to a fixed character stride when no sentence boundaries exist.
func splitOversize(p string, maxSize, overlap int) []string {
	sentences := splitSentences(p)
	if len(sentences) > 1 {
		// Pack sentences into pieces that each stay under the limit
		var pieces []string
		var buf strings.Builder
		for _, sentence := range sentences {
			if buf.Len() > 0 && buf.Len()+1+len(sentence) > maxSize {
				pieces = append(pieces, buf.String())
				buf.Reset()
			}
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(sentence)
		}
		if buf.Len() > 0 {
			pieces = append(pieces, buf.String())
		}

		// A single sentence can itself exceed the limit
		var result []string
		for _, piece := range pieces {
			if len(piece) > maxSize {
				result = append(result, strideSplit(piece, maxSize, overlap)...)
			} else {
				result = append(result, piece)
			}
		}
		return result
	}
	return strideSplit(p, maxSize, overlap)
}

// splitSentences splits on ., ! or ? followed by whitespace
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i := 0; i < len(text)-1; i++ {
		c := text[i]
		if (c == '.' || c == '!' || c == '?') && isSpace(text[i+1]) {
			s := strings.TrimSpace(text[start : i+1])
			if s != "" {
				sentences = append(sentences, s)
			}
			start = i + 1
		}
	}
	if tail := strings.TrimSpace(text[start:]); tail != "" {
		sentences = append(sentences, tail)
	}
	return sentences
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// strideSplit advances by maxSize-overlap per step so consecutive pieces
// share overlap characters.
func strideSplit(text string, maxSize, overlap int) []string {
	stride := maxSize - overlap
	if stride <= 0 {
		stride = maxSize
	}

	var pieces []string
	for start := 0; start < len(text); start += stride {
		end := start + maxSize
		if end > len(text) {
			end = len(text)
		}
		pieces = append(pieces, text[start:end])
		if end == len(text) {
			break
		}
	}
	return pieces
}

// accumulate greedily packs paragraphs into chunks with overlap seeding and
// a trailing-buffer merge.
func accumulate(paragraphs []string, maxSize, minSize, overlap int) []string {
	var chunks []string
	var buf strings.Builder

	for _, p := range paragraphs {
		projected := buf.Len() + len(p)
		if buf.Len() > 0 {
			projected += 2 // paragraph separator
		}

		if projected > maxSize && buf.Len() >= minSize {
			sealed := buf.String()
			chunks = append(chunks, sealed)

			// Seed the next buffer with the tail of the sealed chunk so
			// boundary context survives into the following chunk
			buf.Reset()
			if overlap > 0 && len(sealed) > overlap {
				buf.WriteString(sealed[len(sealed)-overlap:])
			}
		}

		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
	}

	// Trailing buffer: seal if it meets the minimum, otherwise fold it into
	// the previous chunk. A lone undersized buffer is still kept.
	if buf.Len() > 0 {
		tail := buf.String()
		if len(tail) >= minSize || len(chunks) == 0 {
			chunks = append(chunks, tail)
		} else {
			chunks[len(chunks)-1] = chunks[len(chunks)-1] + "\n\n" + tail
		}
	}

	return chunks
}

// qualityFilter drops boilerplate-heavy and highly repetitive chunks
func qualityFilter(chunks []string) []string {
	var kept []string
	for _, chunk := range chunks {
		if isBoilerplate(chunk) || isRepetitive(chunk) {
			continue
		}
		kept = append(kept, chunk)
	}
	return kept
}

// isBoilerplate matches short chunks dominated by form and footer phrases
func isBoilerplate(chunk string) bool {
	if len(chunk) >= 2000 {
		return false
	}
	lower := strings.ToLower(chunk)
	matches := 0
	for _, phrase := range boilerplatePhrases {
		if strings.Contains(lower, phrase) {
			matches++
			if matches >= 3 {
				return true
			}
		}
	}
	return false
}

// isRepetitive drops chunks whose unique-word ratio falls below 0.30
func isRepetitive(chunk string) bool {
	words := strings.Fields(strings.ToLower(chunk))
	if len(words) <= 10 {
		return false
	}
	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	return float64(len(unique))/float64(len(words)) < 0.30
}
