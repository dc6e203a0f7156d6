package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/internal/httpclient"
	"github.com/teranos/samplegen/logger"
)

const (
	// DefaultModel should match the default in am/defaults.go
	DefaultModel = "meta-llama/llama-3.2-3b-instruct"

	// DefaultBaseURL is the OpenRouter API root
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	defaultTimeoutSeconds = 120
	maxRetries            = 3
)

// Client represents an OpenRouter.ai chat completions client
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *httpclient.SaferClient
	config     Config
	limiter    *rate.Limiter // nil = unlimited
	retryDelay time.Duration
	logger     *zap.SugaredLogger
}

// Config holds OpenRouter client configuration
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string             // Default: DefaultBaseURL
	TimeoutSeconds    int                // Default: 120
	RequestsPerMinute int                // Client-side throttle (0 = unlimited)
	Observer          llm.StreamObserver // Receives each completed text
	Logger            *zap.SugaredLogger // nil = nop logger
}

// NewClient creates a new OpenRouter.ai client
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.TimeoutSeconds <= 0 {
		config.TimeoutSeconds = defaultTimeoutSeconds
	}

	log := config.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	var limiter *rate.Limiter
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	// Blocks private IPs, localhost, the cloud metadata endpoint, dangerous schemes
	saferClient := httpclient.New(time.Duration(config.TimeoutSeconds)*time.Second, httpclient.Options{})

	return &Client{
		apiKey:     config.APIKey,
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		httpClient: saferClient,
		config:     config,
		limiter:    limiter,
		retryDelay: time.Second,
		logger:     log,
	}
}

// ChatCompletionRequest represents a request to the chat completions endpoint
type ChatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Stop        []string  `json:"stop,omitempty"`
}

// Message represents a message in a chat completion
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse represents the response from chat completions
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Choice represents a completion choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CreateChatCompletion sends one chat completion request to OpenRouter
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatCompletionRequest) (*ChatCompletionResponse, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to marshal request"), errors.ErrInferenceFailed)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create request"), errors.ErrInferenceFailed)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	// X-Title shows up on the OpenRouter dashboard
	httpReq.Header.Set("X-Title", "samplegen")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, httpclient.ClassifyTransport(err, "failed to send request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, httpclient.ClassifyTransport(err, "failed to read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, withStatus(httpclient.ClassifyStatus(resp.StatusCode, respBody), resp.StatusCode)
	}

	var chatResp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to unmarshal response"), errors.ErrInferenceFailed)
	}
	return &chatResp, nil
}

// Complete implements llm.Client over chat completions, retrying transient
// network failures and rate limiting inside one call
func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if c.apiKey == "" {
		return nil, errors.WithHint(
			errors.NewConfigurationError("OpenRouter API key not configured"),
			"set OPENROUTER_API_KEY or openrouter.api_key in am.toml")
	}

	log := logger.FromContext(ctx, c.logger)
	chatReq := ChatCompletionRequest{
		Model:       c.config.Model,
		Messages:    []Message{{Role: "user", Content: req.Prompt}},
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
	}

	var (
		resp *ChatCompletionResponse
		err  error
	)
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(attempt) * c.retryDelay
			log.Debugw("Retrying OpenRouter request", logger.FieldAttempt, attempt+1, "delay", delay)
			if werr := sleepContext(ctx, delay); werr != nil {
				return nil, httpclient.ClassifyTransport(werr, "retry wait interrupted")
			}
		}

		if c.limiter != nil {
			if werr := c.limiter.Wait(ctx); werr != nil {
				return nil, httpclient.ClassifyTransport(werr, "rate limit wait interrupted")
			}
		}

		resp, err = c.CreateChatCompletion(ctx, chatReq)
		if err == nil {
			if attempt > 0 {
				log.Infow("Request succeeded after retries", "attempts", attempt+1, logger.FieldModel, c.config.Model)
			}
			break
		}

		log.Warnw("OpenRouter API error",
			logger.FieldAttempt, attempt+1,
			logger.FieldError, err,
			logger.FieldModel, c.config.Model,
			logger.FieldURL, c.baseURL+"/chat/completions")

		if ctx.Err() != nil || !isRetryableError(err) {
			return nil, c.hint(errors.Wrap(err, "OpenRouter API error"))
		}
	}
	if err != nil {
		return nil, c.hint(errors.Wrapf(err, "OpenRouter API error after %d attempts", maxRetries))
	}

	if len(resp.Choices) == 0 {
		return nil, errors.Mark(errors.New("no response choices from OpenRouter"), errors.ErrInferenceFailed)
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if c.config.Observer != nil {
		c.config.Observer.OnToken(text)
	}

	log.Debugw("OpenRouter response",
		logger.FieldTextChars, len(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)

	return &llm.Response{
		Text: text,
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
			Cost:             CalculateCost(c.config.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
		},
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}

// statusError carries the HTTP status of a failed call for retry decisions
type statusError struct {
	error
	status int
}

func (e *statusError) Unwrap() error { return e.error }

func withStatus(err error, status int) error {
	return &statusError{error: err, status: status}
}

// isRetryableError checks if an error is worth retrying: network failures
// and 429 Too Many Requests
func isRetryableError(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests
	}
	return httpclient.IsConnectionFailure(err) || httpclient.IsTimeout(err)
}

func (c *Client) hint(err error) error {
	switch {
	case errors.IsServiceUnavailableError(err):
		return errors.WithHintf(err, "check that model %q is offered by OpenRouter", c.config.Model)
	case errors.IsTimeoutError(err):
		return errors.WithHint(err, "raise openrouter.timeout_seconds or lower generation.batch_size")
	}
	return err
}

// sleepContext waits for d or until ctx is done
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Identity names the gateway and model
func (c *Client) Identity() llm.Identity {
	return llm.Identity{Provider: "openrouter", Model: c.config.Model}
}

// IsConfigured returns true if the client has an API key
func (c *Client) IsConfigured() bool {
	return c.config.APIKey != ""
}

// SetHTTPClient allows overriding the HTTP client for testing
// ⚠️ WARNING: Only use this in tests. Production code should use the default SSRF-safer client.
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = httpclient.WrapClient(client)
}

var (
	_ llm.Client     = (*Client)(nil)
	_ llm.Identifier = (*Client)(nil)
)
