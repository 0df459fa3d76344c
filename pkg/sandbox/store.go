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
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// Store defaults.
const (
	DefaultSessionTimeout  = 270 * time.Second
	DefaultCleanupInterval = 60 * time.Second
)

// PendingExecution is the state kept per session while an execution is
// suspended waiting for tool results from the client.
type PendingExecution struct {
	ServerToolID string
	Code         string

	// Single pending call.
	CallID    string
	ToolName  string
	Arguments map[string]any

	// Batch pending calls, set instead of the single fields.
	BatchCallIDs []string

	ToolCallCount int

	// Exec is the live generator the continuation resumes.
	Exec *Execution
}

// Session is one container-backed execution session.
type Session struct {
	ID       string
	DockerID string
	Stream   *Stream

	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time

	ExecutionCount int
	Busy           bool
	Pending        *PendingExecution

	Tools         []anthropic.Tool
	RunnerVersion int
}

// SessionInfo is the external snapshot of a session.
type SessionInfo struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	ExecutionCount int       `json:"execution_count"`
	Busy           bool      `json:"busy"`
}

// StoreConfig configures a session store.
type StoreConfig struct {
	Driver          ContainerDriver
	Runner          []byte
	RunnerVersion   int
	SessionTimeout  time.Duration
	CleanupInterval time.Duration
	Logger          *zap.Logger
}

// Store is the process-wide session registry. A single mutex guards the
// session map; per-session flags are mutated only under that mutex or by the
// worker owning the session.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session

	driver        ContainerDriver
	runner        []byte
	runnerVersion int
	timeout       time.Duration
	interval      time.Duration
	logger        *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewStore builds a Store and starts its background reaper.
func NewStore(cfg StoreConfig) *Store {
	if cfg.SessionTimeout == 0 {
		cfg.SessionTimeout = DefaultSessionTimeout
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = DefaultCleanupInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.RunnerVersion == 0 {
		cfg.RunnerVersion = RunnerScriptVersion
	}

	s := &Store{
		sessions:      map[string]*Session{},
		driver:        cfg.Driver,
		runner:        cfg.Runner,
		runnerVersion: cfg.RunnerVersion,
		timeout:       cfg.SessionTimeout,
		interval:      cfg.CleanupInterval,
		logger:        cfg.Logger,
		stopCh:        make(chan struct{}),
	}

	s.wg.Add(1)
	go s.reaper()
	return s
}

// NewSessionID returns a container_<12 hex> handle.
func NewSessionID() string {
	return "container_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Create allocates a new container-backed session.
func (s *Store) Create(ctx context.Context, tools []anthropic.Tool) (*Session, error) {
	id := NewSessionID()
	dockerID, stream, err := s.driver.StartContainer(ctx, id, s.runner)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	now := time.Now()
	sess := &Session{
		ID:            id,
		DockerID:      dockerID,
		Stream:        stream,
		CreatedAt:     now,
		LastUsedAt:    now,
		ExpiresAt:     now.Add(s.timeout),
		Tools:         tools,
		RunnerVersion: s.runnerVersion,
	}

	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.logger.Info("session created",
		zap.String("container_id", id),
		zap.Time("expires_at", sess.ExpiresAt))
	return sess, nil
}

// Get returns the session, or nil if it is missing, expired, or stamped with
// a different runner version. Expired and incompatible sessions are closed
// asynchronously and never returned.
func (s *Store) Get(id string) *Session {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil
	}
	expired := time.Now().After(sess.ExpiresAt)
	incompatible := sess.RunnerVersion != s.runnerVersion
	if expired || incompatible {
		delete(s.sessions, id)
		s.mu.Unlock()
		s.logger.Info("session evicted",
			zap.String("container_id", id),
			zap.Bool("expired", expired),
			zap.Bool("incompatible", incompatible))
		go s.teardown(sess)
		return nil
	}
	s.mu.Unlock()
	return sess
}

// BeginExecution transitions the session to busy and refreshes its expiry.
// It fails if the session is already busy; the caller then replaces the
// session.
func (s *Store) BeginExecution(sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.Busy {
		return fmt.Errorf("session %s is busy", sess.ID)
	}
	sess.Busy = true
	sess.ExecutionCount++
	sess.LastUsedAt = time.Now()
	sess.ExpiresAt = sess.LastUsedAt.Add(s.timeout)
	return nil
}

// EndExecution clears the busy flag and the pending state.
func (s *Store) EndExecution(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Busy = false
	sess.Pending = nil
}

// SetPending records suspended-execution state on a busy session.
func (s *Store) SetPending(sess *Session, pending *PendingExecution) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Pending = pending
}

// Close tears down a session and reports whether it existed.
func (s *Store) Close(id string) bool {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	s.teardown(sess)
	return true
}

// CloseAll tears down every session. Used on shutdown.
func (s *Store) CloseAll() {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.sessions = map[string]*Session{}
	s.mu.Unlock()

	for _, sess := range sessions {
		s.teardown(sess)
	}
}

// Stop halts the reaper. It does not close sessions; call CloseAll first.
func (s *Store) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

// ActiveSessions snapshots the non-expired sessions.
func (s *Store) ActiveSessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			continue
		}
		out = append(out, SessionInfo{
			ID:             sess.ID,
			CreatedAt:      sess.CreatedAt,
			ExpiresAt:      sess.ExpiresAt,
			ExecutionCount: sess.ExecutionCount,
			Busy:           sess.Busy,
		})
	}
	return out
}

// teardown sends the runner its exit line (best-effort), then stops and
// removes the container.
func (s *Store) teardown(sess *Session) {
	if sess.Stream != nil {
		_ = sess.Stream.WriteLine(MarkerExit)
		_ = sess.Stream.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.driver.StopContainer(ctx, sess.DockerID); err != nil {
		s.logger.Warn("session container removal failed",
			zap.String("container_id", sess.ID),
			zap.Error(err))
	}
}

func (s *Store) reaper() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reapExpired()
		}
	}
}

func (s *Store) reapExpired() {
	s.mu.Lock()
	now := time.Now()
	var expired []*Session
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			expired = append(expired, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range expired {
		s.logger.Info("reaping expired session", zap.String("container_id", sess.ID))
		s.teardown(sess)
	}
}
