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
package server

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/bedrock"
	"github.com/teradata-labs/heddle/pkg/codexec"
	"github.com/teradata-labs/heddle/pkg/ptc"
)

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req anthropic.MessagesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, anthropic.ErrInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeClassifiedError(w, err)
		return
	}
	betas := parseBetas(r.Header.Get("anthropic-beta"))

	if s.cfg.PTC != nil && ptc.Matches(&req, betas) {
		s.handleOrchestrated(w, r, &req, betas, s.runPTC)
		return
	}
	if s.cfg.Standalone != nil {
		ok, err := codexec.Matches(&req, betas)
		if err != nil {
			writeClassifiedError(w, err)
			return
		}
		if ok {
			s.handleOrchestrated(w, r, &req, betas, s.runStandalone)
			return
		}
	}

	if req.Stream {
		s.streamMessages(w, r, &req, betas)
		return
	}
	s.invokeMessages(w, r, &req, betas)
}

func (s *Server) runPTC(w http.ResponseWriter, r *http.Request, req *anthropic.MessagesRequest, betas []string) (*anthropic.MessagesResponse, error) {
	return s.cfg.PTC.HandleMessages(r.Context(), req, betas)
}

func (s *Server) runStandalone(w http.ResponseWriter, r *http.Request, req *anthropic.MessagesRequest, betas []string) (*anthropic.MessagesResponse, error) {
	return s.cfg.Standalone.HandleMessages(r.Context(), req, betas)
}

// handleOrchestrated runs a sandbox-backed orchestration. Both orchestrators
// need Docker; its absence is a capacity error, not a client error. When the
// client asked for streaming, the completed response is replayed as SSE
// events with the container advertised in headers.
func (s *Server) handleOrchestrated(w http.ResponseWriter, r *http.Request, req *anthropic.MessagesRequest, betas []string, run func(http.ResponseWriter, *http.Request, *anthropic.MessagesRequest, []string) (*anthropic.MessagesResponse, error)) {
	if s.cfg.Driver != nil {
		if err := s.cfg.Driver.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, anthropic.ErrAPI, "Docker is not available: "+err.Error())
			return
		}
	}

	resp, err := run(w, r, req, betas)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	if !req.Stream {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	if resp.Container != nil {
		w.Header().Set("X-Container-ID", resp.Container.ID)
		w.Header().Set("X-Container-Expires-At", resp.Container.ExpiresAt)
	}
	sw := newSSEWriter(w)
	for _, ev := range synthesizeStream(resp) {
		if err := sw.write(ev); err != nil {
			return
		}
	}
}

// invokeMessages is the plain non-streaming proxy path.
func (s *Server) invokeMessages(w http.ResponseWriter, r *http.Request, req *anthropic.MessagesRequest, betas []string) {
	input, err := s.cfg.Translator.BuildConverseInput(req, betas)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	out, err := s.cfg.Client.Invoke(r.Context(), input)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	resp, err := bedrock.TranslateResponse(out, req.Model)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// streamMessages proxies a ConverseStream call as Anthropic SSE. Errors
// before the first event map to a regular HTTP error; errors after
// message_start become a terminal SSE error frame.
func (s *Server) streamMessages(w http.ResponseWriter, r *http.Request, req *anthropic.MessagesRequest, betas []string) {
	input, err := s.cfg.Translator.BuildConverseStreamInput(req, betas)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.StreamingTimeout)
	defer cancel()

	stream, err := s.cfg.Client.InvokeStream(ctx, input)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	defer func() { _ = stream.Close() }()

	tr := bedrock.NewStreamTranslator(req.Model)
	sw := newSSEWriter(w)

	for {
		select {
		case <-ctx.Done():
			_ = sw.writeError(anthropic.ErrAPI, "stream timed out")
			return

		case event, ok := <-stream.Events():
			if !ok {
				if err := stream.Err(); err != nil {
					_, errType := classify(err)
					_ = sw.writeError(errType, err.Error())
					return
				}
				for _, ev := range tr.Finish() {
					_ = sw.write(ev)
				}
				s.logger.Debug("stream completed",
					zap.Int("output_tokens", tr.Usage().OutputTokens))
				return
			}
			for _, ev := range tr.Translate(event) {
				if err := sw.write(ev); err != nil {
					return
				}
			}
		}
	}
}

func (s *Server) handleCountTokens(w http.ResponseWriter, r *http.Request) {
	var req anthropic.CountTokensRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, anthropic.ErrInvalidRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, anthropic.ErrInvalidRequest, "model is required")
		return
	}

	count, err := s.cfg.Client.CountTokens(r.Context(), s.cfg.Translator, &req)
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, anthropic.CountTokensResponse{InputTokens: count})
}
