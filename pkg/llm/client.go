// Package llm provides a client for OpenAI-compatible chat completion APIs
// and helpers for recovering JSON from model output.
//
// Usage:
//
//	client := llm.NewClient(llm.Config{Provider: "openai", APIKey: key, Model: "gpt-4o-mini"})
//	out, err := client.Complete(ctx, systemPrompt, userPrompt)
//	raw, err := llm.ExtractJSON(out.Content)
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

const (
	OpenAIBaseURL     = "https://api.openai.com/v1"
	PerplexityBaseURL = "https://api.perplexity.ai"

	DefaultModel       = "gpt-4o-mini"
	DefaultTemperature = 0.3
	DefaultMaxTokens   = 2000
	DefaultTimeout     = 60 * time.Second

	// MaxAttempts bounds the tries for one completion, the first included.
	MaxAttempts = 3

	// DefaultBackoff is the wait before the first retry. It doubles per
	// retry.
	DefaultBackoff = 3 * time.Second
)

// APIError is a non-2xx response from the completion endpoint.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("LLM API error (status %d): %s", e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed when repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Config configures a Client. Zero fields take the package defaults.
type Config struct {
	Provider          string // "openai" or "perplexity"
	APIKey            string
	Model             string
	BaseURL           string // overrides the provider's URL
	Timeout           time.Duration
	RequestsPerMinute int // zero disables pacing
	Backoff           time.Duration
	Logger            *slog.Logger
}

// Client calls a chat completion endpoint. Requests are paced by a token
// bucket and guarded by a circuit breaker that opens after repeated
// upstream failures. A Client is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	backoff    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger
}

// NewClient creates a Client from cfg.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = OpenAIBaseURL
		if cfg.Provider == "perplexity" {
			baseURL = PerplexityBaseURL
		}
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = DefaultBackoff
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	st := gobreaker.Settings{
		Name:     "llm",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		// Client errors say nothing about upstream health.
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return !apiErr.Retryable()
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String(),
			)
		},
	}

	logger.Info("LLM client initialised",
		"base_url", baseURL,
		"model", model,
		"timeout", timeout,
		"rpm", cfg.RequestsPerMinute,
	)

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      model,
		backoff:    backoff,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(limit, 1),
		breaker:    gobreaker.NewCircuitBreaker(st),
		logger:     logger,
	}
}

// Model returns the model name sent with every request.
func (c *Client) Model() string { return c.model }

// Completion is the text returned by the model.
type Completion struct {
	Content string
	Model   string
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends one system and one user message and returns the first
// choice. Rate-limit and server errors are retried with exponential
// backoff up to MaxAttempts.
func (c *Client) Complete(ctx context.Context, system, user string) (*Completion, error) {
	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: DefaultTemperature,
		MaxTokens:   DefaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	out, err := c.breaker.Execute(func() (any, error) {
		return c.post(ctx, body)
	})
	if err != nil {
		return nil, err
	}
	return out.(*Completion), nil
}

func (c *Client) post(ctx context.Context, body []byte) (*Completion, error) {
	url := c.baseURL + "/chat/completions"

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoff * time.Duration(1<<uint(attempt-2))
			c.logger.Warn("Retrying LLM request",
				"attempt", attempt, "backoff", backoff, "err", lastErr,
			)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}

		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			lastErr = fmt.Errorf("reading response body: %w", readErr)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
			if !apiErr.Retryable() {
				return nil, apiErr
			}
			lastErr = apiErr
			continue
		}

		var cr chatResponse
		if err := json.Unmarshal(data, &cr); err != nil {
			return nil, fmt.Errorf("decoding response: %w", err)
		}
		if len(cr.Choices) == 0 {
			return nil, errors.New("response has no choices")
		}

		model := cr.Model
		if model == "" {
			model = c.model
		}
		c.logger.Debug("LLM completion received",
			"model", model, "attempt", attempt, "elapsed", time.Since(start),
		)
		return &Completion{Content: cr.Choices[0].Message.Content, Model: model}, nil
	}

	return nil, fmt.Errorf("all %d attempts failed: %w", MaxAttempts, lastErr)
}

func errorMessage(data []byte) string {
	var body apiErrorBody
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	return strings.TrimSpace(string(data))
}
