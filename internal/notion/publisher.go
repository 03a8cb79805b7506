// Package notion publishes finished translations as Notion pages. The
// bilingual markdown output (quoted original, plain translation) maps onto
// interleaved quote and paragraph blocks under a configured parent page.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/MimeLyc/longdoc-translator/internal/jobs"
)

const (
	apiBaseURL = "https://api.notion.com/v1"
	apiVersion = "2022-06-28"

	// Notion caps rich text at 2000 characters per block and 100 child
	// blocks per request.
	maxBlockTextLength = 2000
	maxBlocksPerCall   = 100
)

var domainNames = map[string]string{
	"tech":     "技术/编程",
	"business": "商务/金融",
	"academic": "学术研究",
}

type Config struct {
	APIKey       string
	ParentPageID string
}

func (c Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("notion api key is required")
	}
	if c.ParentPageID == "" {
		return fmt.Errorf("notion parent page id is required")
	}
	return nil
}

// Publisher implements the worker's Publisher interface against the
// Notion REST API.
type Publisher struct {
	config     Config
	httpClient *http.Client
	baseURL    string
	now        func() time.Time
}

func NewPublisher(config Config) (*Publisher, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Publisher{
		config:     config,
		httpClient: &http.Client{},
		baseURL:    apiBaseURL,
		now:        time.Now,
	}, nil
}

type block map[string]any

func (p *Publisher) Publish(ctx context.Context, req jobs.PublishRequest) (jobs.PublishResult, error) {
	blocks := p.metadataBlocks(req.SourceURL, req.Domain)
	blocks = append(blocks, contentBlocks(req.Content)...)
	if len(blocks) == 0 {
		return jobs.PublishResult{}, fmt.Errorf("nothing to publish")
	}

	head := blocks
	var rest []block
	if len(blocks) > maxBlocksPerCall {
		head, rest = blocks[:maxBlocksPerCall], blocks[maxBlocksPerCall:]
	}

	page, err := p.createPage(ctx, req.Title, head)
	if err != nil {
		return jobs.PublishResult{}, err
	}

	for len(rest) > 0 {
		batch := rest
		if len(batch) > maxBlocksPerCall {
			batch = rest[:maxBlocksPerCall]
		}
		rest = rest[len(batch):]
		if err := p.appendBlocks(ctx, page.ID, batch); err != nil {
			return jobs.PublishResult{}, fmt.Errorf("append blocks: %w", err)
		}
	}

	return jobs.PublishResult{PageURL: page.URL}, nil
}

type pageResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

func (p *Publisher) createPage(ctx context.Context, title string, children []block) (*pageResponse, error) {
	payload := map[string]any{
		"parent": map[string]any{"page_id": p.config.ParentPageID},
		"properties": map[string]any{
			"title": map[string]any{
				"title": []any{richText(title)},
			},
		},
		"children": children,
	}

	var page pageResponse
	if err := p.call(ctx, http.MethodPost, "/pages", payload, &page); err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	return &page, nil
}

func (p *Publisher) appendBlocks(ctx context.Context, pageID string, children []block) error {
	payload := map[string]any{"children": children}
	return p.call(ctx, http.MethodPatch, "/blocks/"+pageID+"/children", payload, nil)
}

func (p *Publisher) call(ctx context.Context, method, path string, payload, out any) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	req.Header.Set("Notion-Version", apiVersion)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("notion API error (status %d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("notion API error (status %d)", resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

// metadataBlocks renders the callout header with source link, domain and
// timestamp, followed by a divider.
func (p *Publisher) metadataBlocks(sourceURL, domain string) []block {
	var lines []string
	if sourceURL != "" {
		lines = append(lines, "📄 原文链接: "+sourceURL)
	}
	if domain != "" {
		name, ok := domainNames[domain]
		if !ok {
			name = domain
		}
		lines = append(lines, "📚 翻译领域: "+name)
	}
	lines = append(lines, "🕐 翻译时间: "+p.now().Format("2006-01-02 15:04"))

	return []block{
		{
			"type": "callout",
			"callout": map[string]any{
				"rich_text": []any{richText(strings.Join(lines, "\n"))},
				"icon":      map[string]any{"type": "emoji", "emoji": "📝"},
				"color":     "gray_background",
			},
		},
		{"type": "divider", "divider": map[string]any{}},
	}
}

var blankSplit = regexp.MustCompile(`\n\s*\n`)

// contentBlocks converts bilingual markdown into Notion blocks: quoted
// paragraphs become quote blocks, everything else becomes paragraphs.
// Oversized paragraphs are split to stay under the block text limit.
func contentBlocks(content string) []block {
	var blocks []block
	for _, paragraph := range blankSplit.Split(strings.TrimSpace(content), -1) {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}

		if strings.HasPrefix(paragraph, ">") {
			for _, part := range splitText(stripQuote(paragraph)) {
				blocks = append(blocks, textBlock("quote", part))
			}
			continue
		}
		for _, part := range splitText(paragraph) {
			blocks = append(blocks, textBlock("paragraph", part))
		}
	}
	return blocks
}

func stripQuote(paragraph string) string {
	lines := strings.Split(paragraph, "\n")
	for i, line := range lines {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, ">")
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func textBlock(kind, text string) block {
	return block{
		"type": kind,
		kind: map[string]any{
			"rich_text": []any{richText(text)},
		},
	}
}

func richText(text string) map[string]any {
	return map[string]any{
		"type": "text",
		"text": map[string]any{"content": text},
	}
}

// splitText cuts text into pieces under the block limit, preferring rune
// boundaries and breaking at the last space when one is available.
func splitText(text string) []string {
	runes := []rune(text)
	if len(runes) <= maxBlockTextLength {
		return []string{text}
	}

	var parts []string
	for len(runes) > 0 {
		if len(runes) <= maxBlockTextLength {
			parts = append(parts, string(runes))
			break
		}
		cut := maxBlockTextLength
		for i := maxBlockTextLength - 1; i > maxBlockTextLength/2; i-- {
			if runes[i] == ' ' || runes[i] == '\n' {
				cut = i
				break
			}
		}
		parts = append(parts, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
	}
	return parts
}
