package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/internal/httpclient"
	"github.com/teranos/samplegen/internal/util"
	"github.com/teranos/samplegen/logger"
)

// maxSSELine bounds a single "data: {...}" line of the event stream
const maxSSELine = 1 << 20

// LocalProvider talks to an already-running local inference server
// Supports Ollama, llama.cpp server, LocalAI, or any OpenAI-compatible endpoint
type LocalProvider struct {
	baseURL     string
	model       string
	contextSize int
	httpClient  *httpclient.SaferClient
	observer    llm.StreamObserver
	logger      *zap.SugaredLogger
}

// LocalConfig configures a LocalProvider
type LocalConfig struct {
	BaseURL        string
	Model          string
	TimeoutSeconds int
	ContextSize    int                // 0 = model default
	Observer       llm.StreamObserver // Optional live token echo
	Logger         *zap.SugaredLogger // nil = nop logger
}

// NewLocalProvider creates a provider for local inference.
// The local runtime is expected on loopback or the LAN, so private
// addresses are allowed; scheme and redirect checks still apply.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &LocalProvider{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		contextSize: cfg.ContextSize,
		httpClient: httpclient.New(time.Duration(cfg.TimeoutSeconds)*time.Second, httpclient.Options{
			BlockPrivateIP: util.Ptr(false),
		}),
		observer: cfg.Observer,
		logger:   log,
	}
}

// CompletionRequest matches the OpenAI /v1/completions format
type CompletionRequest struct {
	Model         string          `json:"model"`
	Prompt        string          `json:"prompt"`
	MaxTokens     int             `json:"max_tokens,omitempty"`
	Temperature   float64         `json:"temperature"`
	Stop          []string        `json:"stop,omitempty"`
	Stream        bool            `json:"stream"`
	StreamOptions *StreamOptions  `json:"stream_options,omitempty"`
	Options       *CompletionOpts `json:"options,omitempty"` // Ollama-specific options
}

// StreamOptions asks the server to report usage in the final chunk
type StreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// CompletionOpts carries Ollama runtime options
type CompletionOpts struct {
	NumCtx int `json:"num_ctx,omitempty"` // Context window size (Ollama default: 4096)
}

// completionChunk is one event of the SSE stream
type completionChunk struct {
	Choices []struct {
		Text         string  `json:"text"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
	// Error is how Ollama and llama.cpp report a failure after the stream started
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete sends the prompt and accumulates the streamed completion
func (lp *LocalProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	body := CompletionRequest{
		Model:         lp.model,
		Prompt:        req.Prompt,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		Stop:          req.Stop,
		Stream:        true,
		StreamOptions: &StreamOptions{IncludeUsage: true},
	}
	if lp.contextSize > 0 {
		body.Options = &CompletionOpts{NumCtx: lp.contextSize}
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to marshal request"), errors.ErrInferenceFailed)
	}

	endpoint := lp.baseURL + "/v1/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to create request"), errors.ErrInferenceFailed)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	log := logger.FromContext(ctx, lp.logger)
	log.Debugw("Local completion request",
		logger.FieldURL, endpoint,
		logger.FieldModel, lp.model,
		logger.FieldPromptChars, len(req.Prompt),
	)

	resp, err := lp.httpClient.Do(httpReq)
	if err != nil {
		return nil, lp.hint(httpclient.ClassifyTransport(err, "local inference request failed"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, lp.hint(httpclient.ClassifyStatus(resp.StatusCode, respBody))
	}

	out, err := lp.readStream(resp.Body)
	if err != nil {
		return nil, lp.hint(err)
	}

	log.Debugw("Local completion finished",
		logger.FieldTextChars, len(out.Text),
		"finish_reason", out.FinishReason,
	)
	return out, nil
}

// readStream reads SSE lines ("data: {...}") until [DONE].
// An error event, or EOF before [DONE] without a finish reason, is an inference failure.
func (lp *LocalProvider) readStream(r io.Reader) (*llm.Response, error) {
	var (
		text strings.Builder
		out  llm.Response
		done bool
	)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxSSELine)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			done = true
			break
		}

		var chunk completionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return nil, errors.Mark(errors.Wrap(err, "failed to decode stream chunk"), errors.ErrInferenceFailed)
		}
		if chunk.Error != nil {
			return nil, errors.WithDetailf(
				errors.Mark(errors.Newf("inference server reported an error mid-stream: %s", chunk.Error.Message), errors.ErrInferenceFailed),
				"%d chars received before the error", text.Len())
		}

		if chunk.Usage != nil {
			out.Usage = llm.Usage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if piece := chunk.Choices[0].Text; piece != "" {
			text.WriteString(piece)
			if lp.observer != nil {
				lp.observer.OnToken(piece)
			}
		}
		if fr := chunk.Choices[0].FinishReason; fr != nil && *fr != "" {
			out.FinishReason = *fr
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, httpclient.ClassifyTransport(err, "stream read error")
	}
	if !done && out.FinishReason == "" {
		return nil, errors.WithDetailf(
			errors.Mark(errors.New("completion stream ended before [DONE]"), errors.ErrInferenceFailed),
			"%d chars received", text.Len())
	}

	out.Text = text.String()
	return &out, nil
}

// modelsResponse is the /v1/models listing
type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Prepare checks that the server is up and lists the configured model
func (lp *LocalProvider) Prepare(ctx context.Context) error {
	endpoint := lp.baseURL + "/v1/models"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "failed to create request"), errors.ErrInferenceFailed)
	}

	resp, err := lp.httpClient.Do(httpReq)
	if err != nil {
		return lp.hint(httpclient.ClassifyTransport(err, "list models"))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return lp.hint(httpclient.ClassifyStatus(resp.StatusCode, respBody))
	}

	var models modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		return errors.Mark(errors.Wrap(err, "failed to decode model list"), errors.ErrInferenceFailed)
	}

	ids := make([]string, 0, len(models.Data))
	for _, m := range models.Data {
		if m.ID == lp.model {
			return nil
		}
		ids = append(ids, m.ID)
	}

	err = errors.Mark(errors.Newf("model %q is not available on %s", lp.model, lp.baseURL), errors.ErrServiceUnavailable)
	err = errors.WithDetailf(err, "available models: %s", strings.Join(ids, ", "))
	return errors.WithHintf(err, "pull it first, e.g. `ollama pull %s`, or set local_inference.model", lp.model)
}

// hint attaches operator guidance to unavailable/timeout failures
func (lp *LocalProvider) hint(err error) error {
	switch {
	case errors.IsServiceUnavailableError(err):
		return errors.WithHintf(err, "is the inference server running at %s?", lp.baseURL)
	case errors.IsTimeoutError(err):
		return errors.WithHint(err, "raise local_inference.timeout_seconds or lower generation.batch_size")
	}
	return err
}

// Identity names the local runtime and its model
func (lp *LocalProvider) Identity() llm.Identity {
	return llm.Identity{Provider: string(ProviderTypeLocal), Model: lp.model}
}

// SetHTTPClient allows overriding the HTTP client for testing
func (lp *LocalProvider) SetHTTPClient(client *http.Client) {
	lp.httpClient = httpclient.WrapClient(client)
}

var (
	_ llm.Client     = (*LocalProvider)(nil)
	_ llm.Preparer   = (*LocalProvider)(nil)
	_ llm.Identifier = (*LocalProvider)(nil)
)
