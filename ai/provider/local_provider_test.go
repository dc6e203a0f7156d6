package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/errors"
)

// sseServer streams pieces in the /v1/completions event format
func sseServer(t *testing.T, pieces []string, finish string) (*httptest.Server, *CompletionRequest) {
	t.Helper()
	var got CompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			fmt.Fprint(w, `{"object":"list","data":[{"id":"other"},{"id":"test-model"}]}`)
			return
		case "/v1/completions":
		default:
			http.NotFound(w, r)
			return
		}

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)

		for _, p := range pieces {
			chunk, _ := json.Marshal(map[string]any{
				"choices": []map[string]any{{"text": p, "finish_reason": nil}},
			})
			fmt.Fprintf(w, "data: %s\n\n", chunk)
			flusher.Flush()
		}
		final, _ := json.Marshal(map[string]any{
			"choices": []map[string]any{{"text": "", "finish_reason": finish}},
			"usage":   map[string]int{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", final)
		flusher.Flush()
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func newTestLocal(t *testing.T, url string) *LocalProvider {
	t.Helper()
	return NewLocalProvider(LocalConfig{
		BaseURL:        url,
		Model:          "test-model",
		TimeoutSeconds: 5,
		ContextSize:    8192,
		Logger:         zaptest.NewLogger(t).Sugar(),
	})
}

func TestLocalProvider_Complete(t *testing.T) {
	server, got := sseServer(t, []string{"Sure! ", "[{\"id\":", "1}]"}, "stop")
	lp := newTestLocal(t, server.URL)

	var echoed []string
	lp.observer = llm.StreamObserverFunc(func(s string) { echoed = append(echoed, s) })

	resp, err := lp.Complete(context.Background(), llm.Request{
		Prompt:      "prompt text",
		MaxTokens:   4096,
		Temperature: 0.6,
		Stop:        []string{"<|eot_id|>", "<|end_of_text|>"},
	})
	require.NoError(t, err)

	assert.Equal(t, `Sure! [{"id":1}]`, resp.Text)
	assert.Equal(t, []string{"Sure! ", "[{\"id\":", "1}]"}, echoed)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, 19, resp.Usage.TotalTokens)
	assert.Zero(t, resp.Usage.Cost)

	assert.Equal(t, "test-model", got.Model)
	assert.Equal(t, "prompt text", got.Prompt)
	assert.True(t, got.Stream)
	assert.Equal(t, 4096, got.MaxTokens)
	assert.Equal(t, []string{"<|eot_id|>", "<|end_of_text|>"}, got.Stop)
	require.NotNil(t, got.Options)
	assert.Equal(t, 8192, got.Options.NumCtx)
}

func TestLocalProvider_TokenLimit(t *testing.T) {
	server, _ := sseServer(t, []string{"[{\"id\":1},"}, "length")
	resp, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "length", resp.FinishReason)
	assert.Equal(t, `[{"id":1},`, resp.Text, "truncated output is returned for the extractor to reject")
}

func TestLocalProvider_Prepare(t *testing.T) {
	server, _ := sseServer(t, nil, "stop")

	t.Run("model listed", func(t *testing.T) {
		assert.NoError(t, newTestLocal(t, server.URL).Prepare(context.Background()))
	})

	t.Run("model missing", func(t *testing.T) {
		lp := newTestLocal(t, server.URL)
		lp.model = "llama3.2:3b"
		err := lp.Prepare(context.Background())
		require.Error(t, err)
		assert.True(t, errors.IsServiceUnavailableError(err))
		assert.Contains(t, errors.FlattenHints(err), "ollama pull llama3.2:3b")
		assert.Contains(t, errors.FlattenDetails(err), "other, test-model")
	})
}

func TestLocalProvider_Errors(t *testing.T) {
	t.Run("server not running", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addr := ln.Addr().String()
		require.NoError(t, ln.Close())

		lp := newTestLocal(t, "http://"+addr)
		_, err = lp.Complete(context.Background(), llm.Request{Prompt: "p"})
		require.Error(t, err)
		assert.True(t, errors.IsServiceUnavailableError(err), "%v", err)
		assert.Contains(t, errors.FlattenHints(err), "is the inference server running")
	})

	t.Run("model not loaded", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"model 'test-model' not found"}`, http.StatusNotFound)
		}))
		defer server.Close()

		_, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
		require.Error(t, err)
		assert.True(t, errors.IsServiceUnavailableError(err))
		assert.Contains(t, err.Error(), "status 404")
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		_, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInferenceFailed))
		assert.False(t, errors.IsServiceUnavailableError(err))
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/event-stream")
			fmt.Fprint(w, "data: {\"choices\":[{\"text\":\"[\"}]}\n\n")
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		lp := newTestLocal(t, server.URL)
		lp.httpClient.Timeout = 100 * time.Millisecond

		_, err := lp.Complete(context.Background(), llm.Request{Prompt: "p"})
		require.Error(t, err)
		assert.True(t, errors.IsTimeoutError(err), "%v", err)
		assert.Contains(t, errors.FlattenHints(err), "timeout_seconds")
	})

	t.Run("garbled stream", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {not json\n\n")
		}))
		defer server.Close()

		_, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInferenceFailed))
	})
}

func TestLocalProvider_IgnoresNonDataLines(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Join([]string{
			": keep-alive",
			"event: message",
			`data: {"choices":[{"text":"[]"}]}`,
			"",
			"data: [DONE]",
			"",
		}, "\n"))
	}))
	defer server.Close()

	resp, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text)
}

func TestLocalProvider_StreamFailures(t *testing.T) {
	tests := []struct {
		name   string
		lines  []string
		reason string
	}{
		{
			name: "error event after partial output",
			lines: []string{
				`data: {"choices":[{"text":"[{\"id\":1}"}]}`,
				`data: {"error":{"message":"llama runner process has terminated"}}`,
			},
			reason: "llama runner process has terminated",
		},
		{
			name: "llama.cpp error event",
			lines: []string{
				`data: {"error":{"code":500,"message":"slot unavailable","type":"server_error"}}`,
				"data: [DONE]",
			},
			reason: "slot unavailable",
		},
		{
			name:   "connection dropped before done",
			lines:  []string{`data: {"choices":[{"text":"[{\"id\":1},"}]}`},
			reason: "ended before [DONE]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				fmt.Fprint(w, strings.Join(tt.lines, "\n\n")+"\n\n")
			}))
			defer server.Close()

			resp, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
			require.Error(t, err)
			assert.Nil(t, resp, "no partial text on failure")
			assert.True(t, errors.IsInferenceFailure(err), "%v", err)
			assert.True(t, errors.Is(err, errors.ErrInferenceFailed))
			assert.Contains(t, err.Error(), tt.reason)
		})
	}
}

func TestLocalProvider_FinishReasonWithoutDone(t *testing.T) {
	// Some runtimes close the stream after the final chunk without sending [DONE]
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"text\":\"[]\",\"finish_reason\":\"stop\"}]}\n\n")
	}))
	defer server.Close()

	resp, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "[]", resp.Text)
	assert.Equal(t, "stop", resp.FinishReason)
}

func TestLocalProvider_SkipsCommentsButRejectsGarbageData(t *testing.T) {
	t.Run("comment and blank data lines", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, strings.Join([]string{
				": ping",
				":",
				`data: {"choices":[{"text":"[{\"id\":1}]"}]}`,
				": ping",
				"data: [DONE]",
				"",
			}, "\n"))
		}))
		defer server.Close()

		resp, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, `[{"id":1}]`, resp.Text)
	})

	t.Run("non-json data line", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "data: {\"choices\":[{\"text\":\"[\"}]}\n\ndata: keep-alive\n\ndata: [DONE]\n\n")
		}))
		defer server.Close()

		_, err := newTestLocal(t, server.URL).Complete(context.Background(), llm.Request{Prompt: "p"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrInferenceFailed))
		assert.Contains(t, err.Error(), "failed to decode stream chunk")
	})
}
