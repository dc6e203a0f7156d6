package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/logger"
)

// Start serves until ctx is cancelled, then drains in-flight requests.
// A busy port falls forward to the next free one.
func (s *Server) Start(ctx context.Context) error {
	actualPort, err := findAvailablePort(s.opts.Port)
	if err != nil {
		return errors.Wrap(err, "failed to find available port")
	}
	if actualPort != s.opts.Port {
		s.logger.Infow("Port in use, using alternative",
			"requested_port", s.opts.Port,
			"actual_port", actualPort)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", actualPort))
	if err != nil {
		return errors.Wrapf(err, "listen on port %d", actualPort)
	}
	return s.Serve(ctx, listener)
}

// Serve runs the host on listener until ctx is cancelled
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	s.httpSrv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	s.setState(ServerStateRunning)
	s.logger.Infow("Server ready", logger.FieldAddress, listener.Addr().String(),
		logger.FieldURL, "http://"+listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpSrv.Serve(listener)
	}()

	select {
	case err := <-errCh:
		s.setState(ServerStateStopped)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop gracefully shuts down the server: new generations are refused while
// in-flight ones finish, bounded by ShutdownTimeout
func (s *Server) Stop() error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Infow("Initiating server shutdown")
	s.setState(ServerStateDraining)

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := s.httpSrv.Shutdown(ctx)
	s.setState(ServerStateStopped)
	if err != nil {
		s.logger.Warnw("Shutdown timed out, forcing exit", "timeout", ShutdownTimeout, logger.FieldError, err)
		return errors.Wrap(err, "shutdown")
	}
	s.logger.Infow("Server stopped")
	return nil
}
