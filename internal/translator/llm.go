// Package translator implements chunk translation against any
// OpenAI-compatible chat completions endpoint.
package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/MimeLyc/longdoc-translator/internal/jobs"
)

type Config struct {
	APIKey      string
	APIURL      string
	Model       string
	MaxTokens   int
	Temperature float64
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client calls a chat completions API to translate chunks. It implements
// the worker's Translator interface. Safe for concurrent use.
type Client struct {
	config     Config
	httpClient *http.Client
}

func NewClient(config Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	// Per-call deadlines come from the caller's context, so the client
	// itself carries no timeout.
	return &Client{
		config:     config,
		httpClient: &http.Client{},
	}, nil
}

func (c *Client) Translate(ctx context.Context, req jobs.TranslateRequest) (jobs.TranslateResult, error) {
	messages := []message{
		{Role: "system", Content: buildSystemPrompt(req.Domain)},
		{Role: "user", Content: buildChunkPrompt(
			req.Text, req.PrecedingContext,
			req.SourceLang, req.TargetLang,
			req.ChunkIndex, req.ChunkTotal,
		)},
	}

	response, err := c.chatCompletion(ctx, messages)
	if err != nil {
		return jobs.TranslateResult{}, err
	}
	if len(response.Choices) == 0 {
		return jobs.TranslateResult{}, fmt.Errorf("no choices in response")
	}

	text := strings.TrimSpace(response.Choices[0].Message.Content)
	if text == "" {
		return jobs.TranslateResult{}, fmt.Errorf("empty translation in response")
	}
	return jobs.TranslateResult{
		Text: text,
		Usage: jobs.TokenUsage{
			InputTokens:  int64(response.Usage.PromptTokens),
			OutputTokens: int64(response.Usage.CompletionTokens),
		},
	}, nil
}

func (c *Client) chatCompletion(ctx context.Context, messages []message) (*chatResponse, error) {
	payload := chatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimSuffix(c.config.APIURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var response chatResponse
	if err := json.Unmarshal(responseBody, &response); err != nil {
		return nil, fmt.Errorf("failed to parse response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if response.Error != nil {
			return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, response.Error.Message)
		}
		return nil, fmt.Errorf("API error (status %d)", resp.StatusCode)
	}
	return &response, nil
}
