// Package genai provides a focused client for the generative-language
// backend's generateContent endpoint.
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/samueljohnsiby/acharya-backend/internal/domain"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

// HTTPStatusError captures non-2xx upstream responses.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("genai: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// Request is one generation call: the session's full turn history (the last
// turn being the pending user prompt) plus its immutable configuration.
type Request struct {
	SystemPrompt   string
	History        []domain.Turn
	Config         domain.GenerationConfig
	SafetySettings []domain.SafetySetting
}

// Generator produces a model reply for a turn history. Satisfied by *Client
// and by test fakes.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Client calls the generative-language REST API.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a generation client for the given model.
func NewClient(apiKey, model string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("genai: API key must not be empty")
	}
	if strings.TrimSpace(model) == "" {
		return nil, errors.New("genai: model must not be empty")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 90 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type contentPart struct {
	Text string `json:"text"`
}

type content struct {
	Role  string        `json:"role,omitempty"`
	Parts []contentPart `json:"parts"`
}

type generateRequest struct {
	SystemInstruction *content                `json:"system_instruction,omitempty"`
	Contents          []content               `json:"contents"`
	GenerationConfig  domain.GenerationConfig `json:"generationConfig"`
	SafetySettings    []domain.SafetySetting  `json:"safetySettings,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	payload := generateRequest{
		Contents:         make([]content, 0, len(req.History)),
		GenerationConfig: req.Config,
		SafetySettings:   req.SafetySettings,
	}
	if req.SystemPrompt != "" {
		payload.SystemInstruction = &content{Parts: []contentPart{{Text: req.SystemPrompt}}}
	}
	for _, turn := range req.History {
		payload.Contents = append(payload.Contents, content{
			Role:  turn.Role,
			Parts: []contentPart{{Text: turn.Text}},
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("genai: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("genai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("genai: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        c.baseURL + "/v1beta/models/" + c.model + ":generateContent",
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<22))
	if err != nil {
		return "", fmt.Errorf("genai: read response body: %w", err)
	}

	var out generateResponse
	if err := json.Unmarshal(buf, &out); err != nil {
		return "", fmt.Errorf("genai: decode response: %w", err)
	}
	if len(out.Candidates) == 0 || len(out.Candidates[0].Content.Parts) == 0 {
		return "", errors.New("genai: no candidates in response")
	}

	var sb strings.Builder
	for _, part := range out.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}
