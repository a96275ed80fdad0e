package fetcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ternarybob/colligo/internal/interfaces"
)

// ReadDocument loads extractable text for a document source. The path is
// resolved under the configured documents directory; a missing or unsupported
// file returns empty content and no error so the owning task completes with
// zero chunks instead of retrying forever.
func (s *Service) ReadDocument(ctx context.Context, path string) (*interfaces.FetchResult, error) {
	fullPath := path
	if s.config.DocumentsDir != "" && !filepath.IsAbs(path) {
		fullPath = filepath.Join(s.config.DocumentsDir, path)
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		s.logger.Warn().Str("path", fullPath).Msg("Document not found, task will complete empty")
		return &interfaces.FetchResult{}, nil
	}

	var content string
	switch strings.ToLower(filepath.Ext(fullPath)) {
	case ".pdf":
		content, err = s.extractPDF(ctx, fullPath)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", fullPath).Msg("PDF extraction failed, task will complete empty")
			return &interfaces.FetchResult{}, nil
		}
	case ".txt", ".md", ".markdown":
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return &interfaces.FetchResult{}, nil
		}
		content = string(data)
	case ".html", ".htm":
		data, err := os.ReadFile(fullPath)
		if err != nil {
			return &interfaces.FetchResult{}, nil
		}
		result, err := s.extract(string(data), fullPath)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", fullPath).Msg("HTML extraction failed, task will complete empty")
			return &interfaces.FetchResult{}, nil
		}
		if result.Title == "" {
			name := filepath.Base(fullPath)
			result.Title = strings.TrimSuffix(name, filepath.Ext(name))
		}
		return result, nil
	default:
		s.logger.Warn().Str("path", fullPath).Msg("Unsupported document type, task will complete empty")
		return &interfaces.FetchResult{}, nil
	}

	content = normalizeWhitespace(content)
	if s.config.MaxContentLength > 0 && len(content) > s.config.MaxContentLength {
		content = content[:s.config.MaxContentLength]
	}

	name := filepath.Base(fullPath)
	return &interfaces.FetchResult{
		Content:  content,
		Markdown: content,
		Title:    strings.TrimSuffix(name, filepath.Ext(name)),
	}, nil
}

// extractPDF pulls text content out of a PDF page by page
func (s *Service) extractPDF(ctx context.Context, path string) (string, error) {
	conf := model.NewDefaultConfiguration()
	pdfCtx, err := api.ReadContextFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read PDF: %w", err)
	}
	pageCount := pdfCtx.PageCount

	outDir, err := os.MkdirTemp("", "colligo-pdf")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(path, outDir, nil, conf); err != nil {
		return "", fmt.Errorf("failed to extract PDF content: %w", err)
	}

	pageTexts := make(map[int]string)
	files, _ := os.ReadDir(outDir)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(outDir, file.Name()))
		if err != nil {
			continue
		}
		var pageNum int
		if _, err := fmt.Sscanf(file.Name(), "Content_page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		} else if _, err := fmt.Sscanf(file.Name(), "page_%d", &pageNum); err == nil {
			pageTexts[pageNum] = string(data)
		}
	}

	var builder strings.Builder
	for pageNum := 1; pageNum <= pageCount; pageNum++ {
		if text, ok := pageTexts[pageNum]; ok && text != "" {
			if builder.Len() > 0 {
				builder.WriteString("\n\n")
			}
			builder.WriteString(text)
		}
	}
	return builder.String(), nil
}
