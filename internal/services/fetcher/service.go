// -----------------------------------------------------------------------
// Fetch Service - HTTP content retrieval and main-content extraction
// -----------------------------------------------------------------------

package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
	"github.com/ternarybob/colligo/internal/models"
)

// Service fetches URLs and extracts indexable text
type Service struct {
	logger    arbor.ILogger
	config    *common.FetcherConfig
	client    *http.Client
	converter *md.Converter

	// One token-bucket limiter per host so a job with many URLs on the same
	// site does not hammer it.
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
}

// NewService creates a new fetch service
func NewService(logger arbor.ILogger, config *common.FetcherConfig) interfaces.FetchService {
	converter := md.NewConverter("", true, nil)

	return &Service{
		logger:    logger,
		config:    config,
		converter: converter,
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

// Fetch retrieves a URL and extracts title, plain text and markdown
func (s *Service) Fetch(ctx context.Context, rawURL string) (*interfaces.FetchResult, error) {
	startTime := time.Now()

	if err := s.waitForHost(ctx, rawURL); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: err.Error()}
	}
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &models.FetchError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Reason:     http.StatusText(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, &models.FetchError{URL: rawURL, Reason: fmt.Sprintf("reading body: %v", err)}
	}

	result, err := s.extract(string(body), rawURL)
	if err != nil {
		return nil, err
	}

	s.logger.Debug().
		Str("url", rawURL).
		Str("title", result.Title).
		Int("content_chars", len(result.Content)).
		Dur("fetch_time", time.Since(startTime)).
		Msg("URL fetched and extracted")

	return result, nil
}

// extract parses HTML, strips boilerplate and returns cleaned text forms
func (s *Service) extract(html, sourceURL string) (*interfaces.FetchResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, &models.FetchError{URL: sourceURL, Reason: fmt.Sprintf("parsing HTML: %v", err)}
	}

	title := extractTitle(doc)

	// Strip elements that never carry knowledge content
	doc.Find("script, style, noscript, nav, header, footer, aside, iframe, form").Remove()

	selection := mainContent(doc)

	markdown := s.converter.Convert(selection)
	content := normalizeWhitespace(selection.Text())

	// Both text forms feed downstream stages, so both are bounded.
	if s.config.MaxContentLength > 0 {
		if len(content) > s.config.MaxContentLength {
			content = content[:s.config.MaxContentLength]
		}
		if len(markdown) > s.config.MaxContentLength {
			markdown = markdown[:s.config.MaxContentLength]
		}
	}

	if strings.TrimSpace(content) == "" {
		return nil, &models.EmptyContentError{URL: sourceURL}
	}

	return &interfaces.FetchResult{
		Content:  content,
		Markdown: markdown,
		Title:    title,
	}, nil
}

// waitForHost blocks on the per-host rate limiter
func (s *Service) waitForHost(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &models.FetchError{URL: rawURL, Reason: "invalid URL"}
	}

	s.mu.Lock()
	limiter, ok := s.limiters[u.Host]
	if !ok {
		rps := s.config.RequestsPerSecond
		if rps <= 0 {
			rps = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rps), 1)
		s.limiters[u.Host] = limiter
	}
	s.mu.Unlock()

	return limiter.Wait(ctx)
}

// mainContent picks the most specific content container present
func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, selector := range []string{"main", "article", "[role='main']", "#content", ".content"} {
		if sel := doc.Find(selector).First(); sel.Length() > 0 {
			return sel
		}
	}
	return doc.Find("body")
}

// extractTitle tries the usual title sources in preference order
func extractTitle(doc *goquery.Document) string {
	if title := doc.Find("title").First().Text(); strings.TrimSpace(title) != "" {
		return strings.TrimSpace(title)
	}
	if ogTitle, exists := doc.Find("meta[property='og:title']").Attr("content"); exists && ogTitle != "" {
		return strings.TrimSpace(ogTitle)
	}
	if h1 := doc.Find("h1").First().Text(); strings.TrimSpace(h1) != "" {
		return strings.TrimSpace(h1)
	}
	return ""
}

// normalizeWhitespace collapses runs of whitespace into single spaces while
// keeping paragraph breaks as double newlines.
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	var paragraphs []string
	var current []string

	flush := func() {
		if len(current) > 0 {
			paragraphs = append(paragraphs, strings.Join(current, " "))
			current = nil
		}
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			flush()
			continue
		}
		current = append(current, strings.Join(fields, " "))
	}
	flush()

	return strings.Join(paragraphs, "\n\n")
}
