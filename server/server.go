// Package server hosts the generation engine over HTTP.
package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/samplegen/generate"
)

// ShutdownTimeout bounds graceful shutdown
const ShutdownTimeout = 10 * time.Second

// ServerState tracks the lifecycle of the HTTP host
type ServerState int32

const (
	ServerStateRunning ServerState = iota
	ServerStateDraining
	ServerStateStopped
)

// Generator is the engine surface the host needs
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Result, error)
}

// Options configures the host
type Options struct {
	Port           int
	AllowedOrigins []string // Origin prefixes accepted for CORS
	Logger         *zap.SugaredLogger
}

// Server is the HTTP host around a Generator
type Server struct {
	gen     Generator
	opts    Options
	logger  *zap.SugaredLogger
	mux     *http.ServeMux
	httpSrv *http.Server
	state   atomic.Int32
}

// New creates a server; routes are registered immediately
func New(gen Generator, opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{gen: gen, opts: opts, logger: log, mux: http.NewServeMux()}
	s.state.Store(int32(ServerStateStopped))
	s.setupHTTPRoutes()
	return s
}

// Handler returns the root handler, useful for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.mux
}

// getState returns the current server state
func (s *Server) getState() ServerState {
	return ServerState(s.state.Load())
}

// setState atomically updates the server state
func (s *Server) setState(newState ServerState) {
	s.state.Store(int32(newState))
	s.logger.Infow("Server state changed", "new_state", stateString(newState))
}

// stateString returns human-readable state name
func stateString(state ServerState) string {
	switch state {
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
