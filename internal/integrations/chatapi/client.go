package chatapi

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

	"mortgage-copilot/internal/domain"
	"mortgage-copilot/internal/workflow"
)

const defaultBaseURL = "http://localhost:8080"

// HTTPStatusError captures non-2xx responses from the chat endpoint.
type HTTPStatusError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("chatapi: unexpected status %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client posts conversation turns to a Mortgage Copilot deployment.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func chatURL(baseURL string) string {
	return endpointURL(baseURL, "/api/chat")
}

func endpointURL(baseURL, path string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return base + path
}

type stagesResponse struct {
	Greeting string         `json:"greeting"`
	Stages   []domain.Stage `json:"stages"`
}

// Catalog fetches the deployment's greeting and stages so a client renders
// the same timeline the server advances through.
func (c *Client) Catalog(ctx context.Context) (*workflow.Catalog, error) {
	url := endpointURL(c.baseURL, "/api/stages")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("chatapi: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return nil, fmt.Errorf("chatapi: request failed: %w", err)
	}

	var out stagesResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("chatapi: decode stages: %w", err)
	}
	catalog, err := workflow.New(out.Greeting, out.Stages)
	if err != nil {
		return nil, fmt.Errorf("chatapi: invalid stages: %w", err)
	}
	return catalog, nil
}

// Send posts the full history and current stage and returns the decoded reply.
func (c *Client) Send(ctx context.Context, in domain.ChatRequest) (domain.ChatResponse, error) {
	if in.Messages == nil {
		in.Messages = []domain.ChatMessage{}
	}
	body, err := json.Marshal(in)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("chatapi: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("chatapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	raw, err := c.doJSONRequest(req, url)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("chatapi: request failed: %w", err)
	}

	var out domain.ChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("chatapi: decode response: %w", err)
	}
	if out.Message.Role != domain.RoleAssistant {
		return domain.ChatResponse{}, fmt.Errorf("chatapi: unexpected message role %q", out.Message.Role)
	}
	if strings.TrimSpace(out.Message.Content) == "" {
		return domain.ChatResponse{}, errors.New("chatapi: empty assistant message")
	}
	return out, nil
}

func (c *Client) doJSONRequest(req *http.Request, url string) ([]byte, error) {
	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return nil, &HTTPStatusError{
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return buf, nil
}
