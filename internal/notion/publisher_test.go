package notion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/longdoc-translator/internal/jobs"
)

func newTestPublisher(t *testing.T, baseURL string) *Publisher {
	t.Helper()
	p, err := NewPublisher(Config{APIKey: "secret", ParentPageID: "parent-1"})
	require.NoError(t, err)
	p.baseURL = baseURL
	return p
}

func TestNewPublisherValidatesConfig(t *testing.T) {
	_, err := NewPublisher(Config{})
	require.Error(t, err)
	_, err = NewPublisher(Config{APIKey: "k"})
	require.Error(t, err)
}

func TestPublishCreatesInterleavedPage(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, apiVersion, r.Header.Get("Notion-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{"id": "page-1", "url": "https://notion.so/page-1"})
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	result, err := p.Publish(context.Background(), jobs.PublishRequest{
		Title:     "My Article",
		Content:   "> Original paragraph.\n\n译文段落。\n\n> Second original.\n\n第二段译文。",
		SourceURL: "https://example.com/a",
		Domain:    "tech",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://notion.so/page-1", result.PageURL)

	parent := captured["parent"].(map[string]any)
	assert.Equal(t, "parent-1", parent["page_id"])

	children := captured["children"].([]any)
	// callout + divider + 2x(quote + paragraph)
	require.Len(t, children, 6)

	types := make([]string, 0, len(children))
	for _, c := range children {
		types = append(types, c.(map[string]any)["type"].(string))
	}
	assert.Equal(t, []string{"callout", "divider", "quote", "paragraph", "quote", "paragraph"}, types)

	callout := children[0].(map[string]any)["callout"].(map[string]any)
	calloutText := callout["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"].(string)
	assert.Contains(t, calloutText, "https://example.com/a")
	assert.Contains(t, calloutText, "技术/编程")
}

func TestPublishAppendsOverflowBlocks(t *testing.T) {
	var pageChildren, appended int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		n := len(payload["children"].([]any))
		switch {
		case r.URL.Path == "/pages":
			pageChildren = n
			json.NewEncoder(w).Encode(map[string]any{"id": "page-1", "url": "u"})
		case strings.HasPrefix(r.URL.Path, "/blocks/page-1/children"):
			assert.Equal(t, http.MethodPatch, r.Method)
			appended += n
			json.NewEncoder(w).Encode(map[string]any{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	// 150 paragraphs plus the two metadata blocks.
	paragraphs := make([]string, 150)
	for i := range paragraphs {
		paragraphs[i] = "段落内容"
	}

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), jobs.PublishRequest{
		Title:   "Long",
		Content: strings.Join(paragraphs, "\n\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, maxBlocksPerCall, pageChildren)
	assert.Equal(t, 52, appended)
}

func TestPublishSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"message": "parent not found"})
	}))
	defer server.Close()

	p := newTestPublisher(t, server.URL)
	_, err := p.Publish(context.Background(), jobs.PublishRequest{Title: "T", Content: "text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parent not found")
}

func TestContentBlocksStripQuotePrefix(t *testing.T) {
	blocks := contentBlocks("> line one\n> line two\n\ntranslation")
	require.Len(t, blocks, 2)

	quote := blocks[0]["quote"].(map[string]any)
	text := quote["rich_text"].([]any)[0].(map[string]any)["text"].(map[string]any)["content"].(string)
	assert.Equal(t, "line one\nline two", text)
}

func TestSplitTextRespectsBlockLimit(t *testing.T) {
	short := splitText("short text")
	assert.Equal(t, []string{"short text"}, short)

	words := strings.Repeat("word ", 900) // ~4500 chars
	parts := splitText(strings.TrimSpace(words))
	require.Greater(t, len(parts), 2)
	for _, part := range parts {
		assert.LessOrEqual(t, len([]rune(part)), maxBlockTextLength)
		assert.NotEmpty(t, part)
	}

	cjk := strings.Repeat("汉", 4100)
	parts = splitText(cjk)
	require.Len(t, parts, 3)
	for _, part := range parts {
		assert.LessOrEqual(t, len([]rune(part)), maxBlockTextLength)
	}
}
