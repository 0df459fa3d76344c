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
	"net/http"

	"github.com/teradata-labs/heddle/internal/version"
	"github.com/teradata-labs/heddle/pkg/sandbox"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	// Readiness only gates on the sandbox when an orchestrator is enabled;
	// the upstream is checked lazily per request.
	if s.cfg.Driver != nil && (s.cfg.PTC != nil || s.cfg.Standalone != nil) {
		if err := s.cfg.Driver.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"reason": "docker unavailable",
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// handleListContainers is a debugging endpoint exposing the active sandbox
// sessions.
func (s *Server) handleListContainers(w http.ResponseWriter, _ *http.Request) {
	sessions := []sandbox.SessionInfo{}
	for _, store := range s.cfg.Stores {
		sessions = append(sessions, store.ActiveSessions()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"containers": sessions})
}
