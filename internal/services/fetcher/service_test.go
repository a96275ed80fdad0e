package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/models"
)

func testConfig() *common.FetcherConfig {
	return &common.FetcherConfig{
		UserAgent:         "colligo-test/1.0",
		RequestTimeout:    5 * time.Second,
		MaxContentLength:  50000,
		RequestsPerSecond: 100, // High so tests don't stall on the limiter
	}
}

func TestFetchExtractsTitleAndContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "colligo-test/1.0", r.Header.Get("User-Agent"))
		w.Write([]byte(`<html>
			<head><title>Product Docs</title></head>
			<body>
				<nav>Home | About | Pricing</nav>
				<main>
					<h1>Getting Started</h1>
					<p>Install the agent and configure your workspace.</p>
					<script>trackPageView();</script>
				</main>
				<footer>Copyright 2026</footer>
			</body>
		</html>`))
	}))
	defer server.Close()

	svc := NewService(arbor.NewLogger(), testConfig())
	result, err := svc.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, "Product Docs", result.Title)
	assert.Contains(t, result.Content, "Install the agent")
	assert.NotContains(t, result.Content, "trackPageView")
	assert.NotContains(t, result.Content, "Copyright 2026")
	assert.NotContains(t, result.Content, "Pricing")
	assert.Contains(t, result.Markdown, "# Getting Started")
}

func TestFetchHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := NewService(arbor.NewLogger(), testConfig())
	_, err := svc.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var fetchErr *models.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, http.StatusNotFound, fetchErr.StatusCode)
	assert.True(t, models.IsRetryable(err))
}

func TestFetchEmptyContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><script>only();</script></body></html>`))
	}))
	defer server.Close()

	svc := NewService(arbor.NewLogger(), testConfig())
	_, err := svc.Fetch(context.Background(), server.URL)
	require.Error(t, err)

	var emptyErr *models.EmptyContentError
	assert.True(t, errors.As(err, &emptyErr))
}

func TestFetchTruncatesLongContent(t *testing.T) {
	long := strings.Repeat("lorem ipsum dolor sit amet ", 5000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><main><p>" + long + "</p></main></body></html>"))
	}))
	defer server.Close()

	config := testConfig()
	config.MaxContentLength = 1000
	svc := NewService(arbor.NewLogger(), config)

	result, err := svc.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Content), 1000)
	assert.LessOrEqual(t, len(result.Markdown), 1000)
}

func TestFetchTruncatesMarkdown(t *testing.T) {
	// Markdown conversion keeps heading markers and link syntax, so its
	// output can be longer than the plain text. It must honor the same
	// bound - the chunker consumes the markdown form.
	var sections strings.Builder
	for i := 0; i < 200; i++ {
		sections.WriteString("<h2>Section</h2><p>" + strings.Repeat("knowledge base content ", 20) + "</p>")
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><main>" + sections.String() + "</main></body></html>"))
	}))
	defer server.Close()

	config := testConfig()
	config.MaxContentLength = 2000
	svc := NewService(arbor.NewLogger(), config)

	result, err := svc.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, 2000, len(result.Content))
	assert.LessOrEqual(t, len(result.Markdown), 2000)
}

func TestFetchContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	svc := NewService(arbor.NewLogger(), testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := svc.Fetch(ctx, server.URL)
	assert.Error(t, err)
}

func TestReadDocumentMissingFile(t *testing.T) {
	config := testConfig()
	config.DocumentsDir = t.TempDir()
	svc := NewService(arbor.NewLogger(), config)

	// A missing document completes empty rather than erroring
	result, err := svc.ReadDocument(context.Background(), "does-not-exist.pdf")
	require.NoError(t, err)
	assert.Empty(t, result.Content)
}

func TestReadDocumentTextFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	require.NoError(t, os.WriteFile(path, []byte("# FAQ\n\nHow do I reset my password?\n\nUse the settings page."), 0644))

	config := testConfig()
	config.DocumentsDir = dir
	svc := NewService(arbor.NewLogger(), config)

	result, err := svc.ReadDocument(context.Background(), "faq.md")
	require.NoError(t, err)
	assert.Contains(t, result.Content, "reset my password")
	assert.Equal(t, "faq", result.Title)
}

func TestNormalizeWhitespace(t *testing.T) {
	in := "  First   line\nsame paragraph  \n\n\nSecond\tparagraph  "
	out := normalizeWhitespace(in)
	assert.Equal(t, "First line same paragraph\n\nSecond paragraph", out)
}
