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

	"github.com/go-chi/chi/v5"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.cfg.Client.ListModels(r.Context())
	if err != nil {
		writeClassifiedError(w, err)
		return
	}

	list := anthropic.ModelList{Data: models}
	if len(models) > 0 {
		list.FirstID = &models[0].ID
		list.LastID = &models[len(models)-1].ID
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetModel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "model")
	models, err := s.cfg.Client.ListModels(r.Context())
	if err != nil {
		writeClassifiedError(w, err)
		return
	}
	for _, m := range models {
		if m.ID == id {
			writeJSON(w, http.StatusOK, m)
			return
		}
	}
	writeError(w, http.StatusNotFound, anthropic.ErrNotFound, "model not found: "+id)
}
