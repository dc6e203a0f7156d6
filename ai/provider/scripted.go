package provider

import (
	"context"
	"sync"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/errors"
)

// ScriptedResponse is one canned reply
type ScriptedResponse struct {
	Text string
	Err  error
}

// Responder computes a reply from the request
type Responder func(req llm.Request) (string, error)

// ScriptedClient replays canned responses in order, or asks a Responder.
// It records every request and is safe for concurrent use.
type ScriptedClient struct {
	mu         sync.Mutex
	script     []ScriptedResponse
	responder  Responder
	calls      []llm.Request
	PrepareErr error // Returned by Prepare when set
	Observer   llm.StreamObserver
}

// NewScriptedClient replays responses in order; calls past the end fail
func NewScriptedClient(responses ...ScriptedResponse) *ScriptedClient {
	return &ScriptedClient{script: responses}
}

// ScriptedTexts replays successful texts in order
func ScriptedTexts(texts ...string) *ScriptedClient {
	responses := make([]ScriptedResponse, len(texts))
	for i, t := range texts {
		responses[i] = ScriptedResponse{Text: t}
	}
	return NewScriptedClient(responses...)
}

// NewResponderClient answers every call with fn
func NewResponderClient(fn Responder) *ScriptedClient {
	return &ScriptedClient{responder: fn}
}

// Complete returns the next scripted response
func (s *ScriptedClient) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "scripted completion"), errors.ErrInferenceFailed)
	}

	s.mu.Lock()
	n := len(s.calls)
	s.calls = append(s.calls, req)
	s.mu.Unlock()

	var (
		text string
		err  error
	)
	switch {
	case s.responder != nil:
		text, err = s.responder(req)
	case n < len(s.script):
		text, err = s.script[n].Text, s.script[n].Err
	default:
		err = errors.Mark(errors.Newf("script exhausted after %d responses", len(s.script)), errors.ErrInferenceFailed)
	}
	if err != nil {
		return nil, err
	}

	if s.Observer != nil {
		s.Observer.OnToken(text)
	}
	return &llm.Response{Text: text, FinishReason: "stop"}, nil
}

// Prepare returns PrepareErr
func (s *ScriptedClient) Prepare(ctx context.Context) error {
	return s.PrepareErr
}

// Calls returns a copy of every request received so far
func (s *ScriptedClient) Calls() []llm.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]llm.Request(nil), s.calls...)
}

// Identity names the scripted backend
func (s *ScriptedClient) Identity() llm.Identity {
	return llm.Identity{Provider: string(ProviderTypeScripted), Model: "scripted"}
}

var (
	_ llm.Client     = (*ScriptedClient)(nil)
	_ llm.Preparer   = (*ScriptedClient)(nil)
	_ llm.Identifier = (*ScriptedClient)(nil)
)
