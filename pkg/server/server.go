// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Package server exposes the Anthropic-compatible HTTP surface over the
// Bedrock upstream and the sandbox orchestrators.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/bedrock"
	"github.com/teradata-labs/heddle/pkg/codexec"
	"github.com/teradata-labs/heddle/pkg/ptc"
	"github.com/teradata-labs/heddle/pkg/sandbox"
)

// DefaultStreamingTimeout caps one SSE response.
const DefaultStreamingTimeout = 1800 * time.Second

// Backend is the upstream surface the server calls. *bedrock.Client
// satisfies it.
type Backend interface {
	Invoke(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
	InvokeStream(ctx context.Context, input *bedrockruntime.ConverseStreamInput) (bedrock.EventStream, error)
	CountTokens(ctx context.Context, t *bedrock.Translator, req *anthropic.CountTokensRequest) (int, error)
	ListModels(ctx context.Context) ([]anthropic.ModelInfo, error)
}

// Config wires a Server.
type Config struct {
	Addr       string
	Client     Backend
	Translator *bedrock.Translator

	// PTC and Standalone are nil when the corresponding feature is
	// disabled.
	PTC        *ptc.Service
	Standalone *codexec.Service
	// Stores and Driver back the sandbox endpoints; empty when both
	// orchestrators are disabled. Each enabled orchestrator brings its own
	// store since the stores embed different runner scripts.
	Stores []*sandbox.Store
	Driver sandbox.ContainerDriver

	StreamingTimeout time.Duration
	Logger           *zap.Logger
}

// Server is the HTTP front end.
type Server struct {
	cfg    Config
	router chi.Router
	http   *http.Server
	logger *zap.Logger
}

// New builds a Server and its routes.
func New(cfg Config) *Server {
	if cfg.StreamingTimeout == 0 {
		cfg.StreamingTimeout = DefaultStreamingTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	s := &Server{cfg: cfg, logger: cfg.Logger}
	s.router = s.routes()
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.router}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.logRequests)

	r.Post("/v1/messages", s.handleMessages)
	r.Post("/v1/messages/count_tokens", s.handleCountTokens)
	r.Get("/v1/models", s.handleListModels)
	r.Get("/v1/models/{model}", s.handleGetModel)
	r.Get("/v1/containers", s.handleListContainers)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/liveness", s.handleLiveness)
	return r
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// requestID stamps every response with X-Request-ID.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("latency", time.Since(start)))
	})
}

// statusRecorder captures the status code while keeping the Flusher SSE
// handlers rely on.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// parseBetas splits the anthropic-beta header.
func parseBetas(header string) []string {
	if header == "" {
		return nil
	}
	var out []string
	for _, b := range strings.Split(header, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
