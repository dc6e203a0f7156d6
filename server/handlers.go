package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/generate"
	"github.com/teranos/samplegen/logger"
)

// GenerateRequest is the POST /api/generate body
type GenerateRequest struct {
	RecordCount int             `json:"record_count"`
	Schema      json.RawMessage `json:"schema"`
}

// HandleRoot answers the plain greeting; other unknown paths are 404
func (s *Server) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Hello World!"))
}

// HandleGenerateSampleData handles GET /api/generate-sample-data?recordCount=&sampleJson=
func (s *Server) HandleGenerateSampleData(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	query := r.URL.Query()
	count, err := strconv.Atoi(query.Get("recordCount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "recordCount must be an integer")
		return
	}
	schema, err := generate.ParseSchema([]byte(query.Get("sampleJson")))
	if err != nil {
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	}

	s.generate(w, r, generate.Request{RecordCount: count, Schema: schema})
}

// HandleGenerate handles POST /api/generate
func (s *Server) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var body GenerateRequest
	if err := readJSON(w, r, &body); err != nil {
		return
	}
	schema, err := generate.ParseSchema(body.Schema)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorMessage(err))
		return
	}

	s.generate(w, r, generate.Request{RecordCount: body.RecordCount, Schema: schema})
}

func (s *Server) generate(w http.ResponseWriter, r *http.Request, req generate.Request) {
	if s.getState() == ServerStateDraining {
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down")
		return
	}

	result, err := s.gen.Generate(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		if status >= http.StatusInternalServerError {
			s.logger.Errorw("Generation failed", logger.FieldStatus, status, logger.FieldError, err)
		}
		writeError(w, status, errorMessage(err))
		return
	}

	body, err := result.JSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, errors.Wrap(err, "encode records").Error())
		return
	}
	w.Header().Set("X-Request-Id", result.RequestID)
	writeRawJSON(w, http.StatusOK, body)
}

// HandleHealth reports liveness and lifecycle state
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	_ = writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"state":  stateString(s.getState()),
	})
}

// HandleOpenAPI serves the OpenAPI 3 description of this host
func (s *Server) HandleOpenAPI(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	_ = writeJSON(w, http.StatusOK, OpenAPIDocument())
}
