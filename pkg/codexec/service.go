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
// Package codexec implements standalone code execution: an agent loop that
// lets the model run bash commands in a sandbox container, with the whole
// trace returned to the client as server_tool_use and
// bash_code_execution_tool_result blocks.
package codexec

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/bedrock"
	"github.com/teradata-labs/heddle/pkg/sandbox"
)

// BashToolName is the tool the model sees in place of the code-execution
// sentinel.
const BashToolName = "bash_code_execution"

// DefaultMaxIterations bounds the agent loop.
const DefaultMaxIterations = 25

// DefaultBashTimeout caps one bash command inside the sandbox.
const DefaultBashTimeout = 30 * time.Second

// Upstream is the non-streaming converse surface the loop calls.
type Upstream interface {
	Invoke(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

// Config wires a Service.
type Config struct {
	Upstream      Upstream
	Translator    *bedrock.Translator
	Store         *sandbox.Store
	Executor      *sandbox.Executor
	BashTimeout   time.Duration
	MaxIterations int
	Logger        *zap.Logger
}

// Service runs the standalone code-execution agent loop.
type Service struct {
	upstream      Upstream
	translator    *bedrock.Translator
	store         *sandbox.Store
	executor      *sandbox.Executor
	bashTimeout   time.Duration
	maxIterations int
	logger        *zap.Logger
}

// NewService builds a Service with defaults applied.
func NewService(cfg Config) *Service {
	if cfg.BashTimeout == 0 {
		cfg.BashTimeout = DefaultBashTimeout
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		upstream:      cfg.Upstream,
		translator:    cfg.Translator,
		store:         cfg.Store,
		executor:      cfg.Executor,
		bashTimeout:   cfg.BashTimeout,
		maxIterations: cfg.MaxIterations,
		logger:        cfg.Logger,
	}
}

// Matches reports whether the request opts into standalone code execution:
// the code-execution beta plus a code-execution tool, with no tool declaring
// allowed_callers. Mixing the two tool styles is rejected.
func Matches(req *anthropic.MessagesRequest, betas []string) (bool, error) {
	hasBeta := false
	for _, b := range betas {
		if b == anthropic.BetaCodeExecution {
			hasBeta = true
		}
	}
	if !hasBeta {
		return false, nil
	}
	hasSentinel := false
	hasCallers := false
	for _, t := range req.Tools {
		if t.IsCodeExecution() {
			hasSentinel = true
		}
		if len(t.AllowedCallers) > 0 {
			hasCallers = true
		}
	}
	if !hasSentinel {
		return false, nil
	}
	if hasCallers {
		return false, &anthropic.ValidationError{
			Message: "allowed_callers cannot be combined with standalone code execution",
		}
	}
	return true, nil
}

// StripBeta removes the locally consumed code-execution beta so it never
// reaches the upstream.
func StripBeta(betas []string) []string {
	var out []string
	for _, b := range betas {
		if b == anthropic.BetaCodeExecution {
			continue
		}
		out = append(out, b)
	}
	return out
}

// bashTool is the rewritten tool definition. The text-editor form is declared
// by the runner but not offered.
func bashTool() anthropic.Tool {
	return anthropic.Tool{
		Name:        BashToolName,
		Description: "Run a bash command in a sandboxed Linux container. The working directory is /workspace and persists across commands in one session.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{
					"type":        "string",
					"description": "The bash command to run",
				},
				"restart": map[string]any{
					"type":        "boolean",
					"description": "Restart the shell instead of running a command",
				},
			},
			"required": []any{"command"},
		},
	}
}

// RewriteRequest swaps the code-execution sentinel for the bash tool.
func RewriteRequest(req *anthropic.MessagesRequest) *anthropic.MessagesRequest {
	out := *req
	out.Tools = []anthropic.Tool{bashTool()}
	for _, t := range req.Tools {
		if !t.IsCodeExecution() {
			out.Tools = append(out.Tools, t)
		}
	}
	return &out
}

// HandleMessages runs the agent loop: upstream call, bash executions, repeat
// while the model keeps using tools. Every block the model emits lands in the
// returned content so the client sees the full trace.
func (s *Service) HandleMessages(ctx context.Context, req *anthropic.MessagesRequest, betas []string) (*anthropic.MessagesResponse, error) {
	rewritten := RewriteRequest(req)
	upstreamBetas := StripBeta(betas)

	messages := append([]anthropic.Message(nil), req.Messages...)
	var trace []anthropic.ContentBlock
	var sess *sandbox.Session
	usage := anthropic.Usage{}

	defer func() {
		if sess != nil {
			s.store.EndExecution(sess)
		}
	}()

	for i := 0; i < s.maxIterations; i++ {
		call := *rewritten
		call.Messages = messages
		input, err := s.translator.BuildConverseInput(&call, upstreamBetas)
		if err != nil {
			return nil, err
		}
		out, err := s.upstream.Invoke(ctx, input)
		if err != nil {
			return nil, err
		}
		resp, err := bedrock.TranslateResponse(out, req.Model)
		if err != nil {
			return nil, err
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens

		if !hasBashUse(resp.Content) || resp.StopReason != anthropic.StopToolUse {
			resp.Content = append(trace, resp.Content...)
			resp.Usage = usage
			if sess != nil {
				resp.Container = &anthropic.ContainerInfo{
					ID:        sess.ID,
					ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
				}
			}
			return resp, nil
		}

		if sess == nil {
			sess, err = s.acquireSession(ctx, req.Container)
			if err != nil {
				return nil, err
			}
		}

		// Execute each bash call in order. The trace shows the canonical
		// server-side shape; the upstream history keeps the plain tool round
		// trip.
		var results []anthropic.ContentBlock
		for _, use := range resp.Content {
			if use.Type != anthropic.TypeToolUse || use.Name != BashToolName {
				trace = append(trace, use)
				continue
			}
			res, err := s.runBash(ctx, sess, use.Input)
			if err != nil {
				return nil, err
			}

			resultText := res.Stdout
			isError := res.ReturnCode != 0
			if isError && res.Stderr != "" {
				resultText = res.Stderr
			}
			results = append(results, anthropic.NewToolResultBlock(use.ID, resultText, isError))

			srvID := anthropic.NewServerToolUseID()
			srvUse := use
			srvUse.Type = anthropic.TypeServerToolUse
			srvUse.ID = srvID
			trace = append(trace, srvUse, anthropic.ContentBlock{
				Type:      anthropic.TypeBashCodeExecutionToolResult,
				ToolUseID: srvID,
				ExecutionResult: &anthropic.CodeExecutionResult{
					Type:       "bash_code_execution_result",
					Stdout:     res.Stdout,
					Stderr:     res.Stderr,
					ReturnCode: res.ReturnCode,
				},
			})
		}

		messages = append(messages,
			anthropic.Message{Role: anthropic.RoleAssistant, Content: resp.Content},
			anthropic.Message{Role: anthropic.RoleUser, Content: results})
	}

	return nil, fmt.Errorf("agent loop exceeded %d iterations", s.maxIterations)
}

// runBash executes one bash tool invocation in the session.
func (s *Service) runBash(ctx context.Context, sess *sandbox.Session, input map[string]any) (*sandbox.StandaloneResult, error) {
	res, err := s.executor.RunCommand(ctx, sess, sandbox.StandaloneCommand{
		Type:  "bash",
		Input: input,
	}, s.bashTimeout)
	if err != nil {
		s.store.Close(sess.ID)
		return nil, err
	}
	return res, nil
}

// acquireSession reuses the requested container when live and idle, else
// creates a fresh one.
func (s *Service) acquireSession(ctx context.Context, containerID string) (*sandbox.Session, error) {
	if containerID != "" {
		if sess := s.store.Get(containerID); sess != nil {
			if err := s.store.BeginExecution(sess); err == nil {
				return sess, nil
			}
			s.logger.Warn("replacing busy session", zap.String("container_id", containerID))
			s.store.Close(containerID)
		}
	}
	sess, err := s.store.Create(ctx, nil)
	if err != nil {
		return nil, err
	}
	if err := s.store.BeginExecution(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func hasBashUse(blocks []anthropic.ContentBlock) bool {
	for _, b := range blocks {
		if b.Type == anthropic.TypeToolUse && b.Name == BashToolName {
			return true
		}
	}
	return false
}
