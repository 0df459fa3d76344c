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
// Package modelmap resolves caller model identifiers to upstream Bedrock
// model identifiers. Resolution consults an operator-supplied override table,
// then a built-in default table, then passes the id through verbatim.
package modelmap

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// defaultMapping covers the Anthropic model aliases commonly sent by SDK
// clients. Cross-region inference profiles are preferred where available.
var defaultMapping = map[string]string{
	"claude-haiku-4-5":            "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-haiku-4-5-20251001":   "us.anthropic.claude-haiku-4-5-20251001-v1:0",
	"claude-sonnet-4-5":           "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-sonnet-4-5-20250929":  "us.anthropic.claude-sonnet-4-5-20250929-v1:0",
	"claude-opus-4-1":             "us.anthropic.claude-opus-4-1-20250805-v1:0",
	"claude-opus-4-1-20250805":    "us.anthropic.claude-opus-4-1-20250805-v1:0",
	"claude-3-7-sonnet-latest":    "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-3-7-sonnet-20250219":  "us.anthropic.claude-3-7-sonnet-20250219-v1:0",
	"claude-3-5-haiku-latest":     "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-5-haiku-20241022":   "us.anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-5-sonnet-latest":    "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-sonnet-20241022":  "us.anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-haiku-20240307":     "anthropic.claude-3-haiku-20240307-v1:0",
}

// Config configures a Resolver.
type Config struct {
	// Overrides is an inline override table, highest priority.
	Overrides map[string]string
	// OverridePath optionally names a YAML file of id → id overrides that is
	// reloaded whenever it changes on disk.
	OverridePath string
	Logger       *zap.Logger
}

// Resolver maps model ids and answers model-family questions.
type Resolver struct {
	mu        sync.RWMutex
	overrides map[string]string
	cache     map[string]string

	path    string
	watcher *fsnotify.Watcher
	done    chan struct{}
	logger  *zap.Logger
}

// New builds a Resolver. When cfg.OverridePath is set the file is loaded
// immediately and watched for changes until Close.
func New(cfg Config) (*Resolver, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Resolver{
		overrides: map[string]string{},
		cache:     map[string]string{},
		path:      cfg.OverridePath,
		logger:    logger,
	}
	for k, v := range cfg.Overrides {
		r.overrides[k] = v
	}

	if r.path != "" {
		if err := r.loadFile(); err != nil {
			return nil, err
		}
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, fmt.Errorf("creating watcher: %w", err)
		}
		if err := w.Add(r.path); err != nil {
			w.Close()
			return nil, fmt.Errorf("watching %s: %w", r.path, err)
		}
		r.watcher = w
		r.done = make(chan struct{})
		go r.watch()
	}

	return r, nil
}

// Close stops the override-file watcher.
func (r *Resolver) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}

// Resolve maps a caller model id to the upstream id. Unmapped ids pass
// through verbatim. Results are cached.
func (r *Resolver) Resolve(modelID string) string {
	r.mu.RLock()
	if v, ok := r.cache[modelID]; ok {
		r.mu.RUnlock()
		return v
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	resolved := modelID
	if v, ok := r.overrides[modelID]; ok {
		resolved = v
	} else if v, ok := defaultMapping[modelID]; ok {
		resolved = v
	}
	r.cache[modelID] = resolved
	return resolved
}

// IsClaudeFamily reports whether the resolved model id targets a Claude
// model. Cache markers and beta header pass-through only apply to the Claude
// family.
func IsClaudeFamily(modelID string) bool {
	return strings.Contains(strings.ToLower(modelID), "claude")
}

func (r *Resolver) loadFile() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("reading model mapping %s: %w", r.path, err)
	}
	var table map[string]string
	if err := yaml.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("parsing model mapping %s: %w", r.path, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides = map[string]string{}
	for k, v := range table {
		r.overrides[k] = v
	}
	r.cache = map[string]string{}
	return nil
}

func (r *Resolver) watch() {
	for {
		select {
		case <-r.done:
			return
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.loadFile(); err != nil {
				r.logger.Warn("model mapping reload failed", zap.Error(err))
				continue
			}
			r.logger.Info("model mapping reloaded", zap.String("path", r.path))
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("model mapping watcher error", zap.Error(err))
		}
	}
}
