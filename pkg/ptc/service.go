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
package ptc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"go.uber.org/zap"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/bedrock"
	"github.com/teradata-labs/heddle/pkg/sandbox"
)

// maxRounds bounds upstream round trips within one HTTP request. Termination
// is normally model-driven; the cap guards against an upstream that never
// stops asking for code.
const maxRounds = 25

// Upstream is the non-streaming converse surface the orchestrator calls.
type Upstream interface {
	Invoke(ctx context.Context, input *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error)
}

// Config wires a Service.
type Config struct {
	Upstream   Upstream
	Translator *bedrock.Translator
	Store      *sandbox.Store
	Executor   *sandbox.Executor
	Logger     *zap.Logger
}

// Service orchestrates programmatic tool calling over sandbox sessions.
type Service struct {
	upstream   Upstream
	translator *bedrock.Translator
	store      *sandbox.Store
	executor   *sandbox.Executor
	logger     *zap.Logger
}

// NewService builds a Service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		upstream:   cfg.Upstream,
		translator: cfg.Translator,
		store:      cfg.Store,
		executor:   cfg.Executor,
		logger:     logger,
	}
}

// Matches reports whether the request opts into programmatic tool calling:
// the advanced-tool-use beta plus a code-execution tool definition.
func Matches(req *anthropic.MessagesRequest, betas []string) bool {
	hasBeta := false
	for _, b := range betas {
		if b == anthropic.BetaAdvancedToolUse {
			hasBeta = true
		}
	}
	if !hasBeta {
		return false
	}
	for _, t := range req.Tools {
		if t.IsCodeExecution() {
			return true
		}
	}
	return false
}

// HandleMessages runs one PTC round trip: either a fresh request or the
// continuation of a suspended execution identified by the container handle.
// A container handle alone does not mark a continuation: direct tool
// results travel with a container too, and take the ordinary path, which
// reuses the session.
func (s *Service) HandleMessages(ctx context.Context, req *anthropic.MessagesRequest, betas []string) (*anthropic.MessagesResponse, error) {
	if req.Container != "" {
		sess := s.store.Get(req.Container)
		if sess != nil && sess.Pending != nil && endsWithToolResults(req.Messages) {
			return s.resume(ctx, req, betas)
		}
		if sess == nil && hasSandboxResults(req.Messages) {
			// The request fulfills sandbox-issued calls whose container is
			// gone; there is nothing left to feed them into.
			return nil, &anthropic.ValidationError{Message: fmt.Sprintf("container %q not found or expired", req.Container)}
		}
	}
	return s.firstCall(ctx, req, betas)
}

// endsWithToolResults reports whether the trailing user message carries
// tool_result blocks.
func endsWithToolResults(messages []anthropic.Message) bool {
	if len(messages) == 0 {
		return false
	}
	last := messages[len(messages)-1]
	if last.Role != "user" {
		return false
	}
	for _, b := range last.Content {
		if b.Type == anthropic.TypeToolResult {
			return true
		}
	}
	return false
}

// hasSandboxResults reports whether the trailing user message fulfills
// sandbox-issued tool calls. Sandbox calls are recognized by the
// code-execution caller on their tool_use block in history.
func hasSandboxResults(messages []anthropic.Message) bool {
	if !endsWithToolResults(messages) {
		return false
	}
	sandboxIDs := map[string]bool{}
	for _, m := range messages[:len(messages)-1] {
		if m.Role != "assistant" {
			continue
		}
		for _, b := range m.Content {
			if b.Type == anthropic.TypeToolUse && b.Caller != nil && b.Caller.Type == anthropic.CallerCodeExecution {
				sandboxIDs[b.ID] = true
			}
		}
	}
	last := messages[len(messages)-1]
	for _, b := range last.Content {
		if b.Type == anthropic.TypeToolResult && sandboxIDs[b.ToolUseID] {
			return true
		}
	}
	return false
}

func (s *Service) firstCall(ctx context.Context, req *anthropic.MessagesRequest, betas []string) (*anthropic.MessagesResponse, error) {
	rewritten, callable := RewriteRequest(req)

	st := &roundState{
		req:       req,
		rewritten: rewritten,
		callable:  callable,
		messages:  rewritten.Messages,
		betas:     betas,
	}
	return s.drive(ctx, st)
}

// roundState carries one request's orchestration across upstream rounds.
type roundState struct {
	req       *anthropic.MessagesRequest
	rewritten *anthropic.MessagesRequest
	callable  []anthropic.Tool
	messages  []anthropic.Message
	betas     []string
	sess      *sandbox.Session
}

// drive alternates upstream calls with sandbox executions until the model
// stops asking for code or an execution suspends on a tool call.
func (s *Service) drive(ctx context.Context, st *roundState) (*anthropic.MessagesResponse, error) {
	for round := 0; round < maxRounds; round++ {
		resp, err := s.converse(ctx, st)
		if err != nil {
			return nil, err
		}

		idx := indexOfExecuteCode(resp.Content)
		if idx < 0 {
			AnnotateDirectCalls(resp.Content)
			if st.sess == nil && st.req.Container != "" {
				st.sess = s.store.Get(st.req.Container)
			}
			if st.sess != nil {
				resp.Container = containerInfo(st.sess)
			}
			return resp, nil
		}

		code, _ := resp.Content[idx].Input["code"].(string)
		if err := s.ensureSession(ctx, st); err != nil {
			return nil, err
		}

		serverToolID := anthropic.NewServerToolUseID()
		exec, err := s.executor.Run(st.sess, code, toolNames(st.callable))
		if err != nil {
			s.releaseSession(st)
			return nil, err
		}

		ev, ok := <-exec.Events()
		if !ok {
			s.releaseSession(st)
			return nil, fmt.Errorf("execution ended without an event")
		}

		switch {
		case ev.Err != nil:
			s.releaseSession(st)
			return nil, ev.Err

		case ev.Result != nil:
			s.store.EndExecution(st.sess)
			st.messages = append(st.messages,
				anthropic.Message{Role: "assistant", Content: resp.Content},
				anthropic.Message{Role: "user", Content: []anthropic.ContentBlock{
					executionResultBlock(resp.Content[idx].ID, ev.Result),
				}})
			continue

		default:
			return s.suspend(st, resp, idx, serverToolID, code, exec, ev), nil
		}
	}
	return nil, fmt.Errorf("continuation rounds exhausted")
}

// converse sends the rewritten request with the accumulated messages.
func (s *Service) converse(ctx context.Context, st *roundState) (*anthropic.MessagesResponse, error) {
	call := *st.rewritten
	call.Messages = st.messages
	input, err := s.translator.BuildConverseInput(&call, st.betas)
	if err != nil {
		return nil, err
	}
	out, err := s.upstream.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}
	return bedrock.TranslateResponse(out, st.req.Model)
}

// ensureSession acquires the execution slot, reusing the requested container
// when it is live and idle, otherwise replacing it.
func (s *Service) ensureSession(ctx context.Context, st *roundState) error {
	if st.sess != nil {
		return s.store.BeginExecution(st.sess)
	}
	if st.req.Container != "" {
		if sess := s.store.Get(st.req.Container); sess != nil {
			if err := s.store.BeginExecution(sess); err == nil {
				st.sess = sess
				return nil
			}
			s.logger.Warn("replacing busy session", zap.String("container_id", st.req.Container))
			s.store.Close(st.req.Container)
		}
	}
	sess, err := s.store.Create(ctx, st.callable)
	if err != nil {
		return err
	}
	st.sess = sess
	return s.store.BeginExecution(sess)
}

func (s *Service) releaseSession(st *roundState) {
	if st.sess != nil {
		s.store.EndExecution(st.sess)
	}
}

// suspend builds the response for an execution paused on sandbox tool calls.
// The model's execute_code block becomes a server_tool_use; each pending call
// becomes a tool_use annotated with the code-execution caller.
func (s *Service) suspend(st *roundState, resp *anthropic.MessagesResponse, idx int, serverToolID, code string, exec *sandbox.Execution, ev sandbox.Event) *anthropic.MessagesResponse {
	calls := ev.Batch
	if ev.Call != nil {
		calls = []*sandbox.ToolCall{ev.Call}
	}

	content := make([]anthropic.ContentBlock, 0, len(resp.Content)+len(calls))
	for i, b := range resp.Content {
		if i == idx {
			content = append(content, anthropic.ContentBlock{
				Type:  anthropic.TypeServerToolUse,
				ID:    serverToolID,
				Name:  ExecuteCodeToolName,
				Input: map[string]any{"code": code},
			})
			continue
		}
		content = append(content, b)
	}
	// Direct tool calls the model issued alongside execute_code keep their
	// caller annotation too.
	AnnotateDirectCalls(content)
	content = append(content, callBlocks(calls, serverToolID)...)

	pending := &sandbox.PendingExecution{
		ServerToolID:  serverToolID,
		Code:          code,
		ToolCallCount: len(calls),
		Exec:          exec,
	}
	if len(calls) == 1 {
		pending.CallID = calls[0].CallID
		pending.ToolName = calls[0].ToolName
		pending.Arguments = calls[0].Arguments
	} else {
		for _, c := range calls {
			pending.BatchCallIDs = append(pending.BatchCallIDs, c.CallID)
		}
	}
	s.store.SetPending(st.sess, pending)

	resp.Content = content
	resp.StopReason = anthropic.StopToolUse
	resp.Container = containerInfo(st.sess)
	s.logger.Info("execution suspended",
		zap.String("container_id", st.sess.ID),
		zap.Int("tool_calls", len(calls)))
	return resp
}

// resume feeds tool results into the suspended execution and advances it.
func (s *Service) resume(ctx context.Context, req *anthropic.MessagesRequest, betas []string) (*anthropic.MessagesResponse, error) {
	sess := s.store.Get(req.Container)
	if sess == nil {
		return nil, &anthropic.ValidationError{Message: fmt.Sprintf("container %q not found or expired", req.Container)}
	}
	pending := sess.Pending
	if pending == nil || pending.Exec == nil {
		return nil, &anthropic.ValidationError{Message: fmt.Sprintf("container %q has no suspended execution", req.Container)}
	}

	results, err := collectResults(req.Messages, pending)
	if err != nil {
		return nil, err
	}
	if err := pending.Exec.Submit(results); err != nil {
		s.store.Close(sess.ID)
		return nil, err
	}

	ev, ok := <-pending.Exec.Events()
	if !ok {
		s.store.Close(sess.ID)
		return nil, fmt.Errorf("execution ended without an event")
	}

	switch {
	case ev.Err != nil:
		s.store.Close(sess.ID)
		return nil, ev.Err

	case ev.Result != nil:
		s.store.EndExecution(sess)
		return s.finishAfterResume(ctx, req, betas, sess, pending, ev.Result)

	default:
		calls := ev.Batch
		if ev.Call != nil {
			calls = []*sandbox.ToolCall{ev.Call}
		}
		next := &sandbox.PendingExecution{
			ServerToolID:  pending.ServerToolID,
			Code:          pending.Code,
			ToolCallCount: pending.ToolCallCount + len(calls),
			Exec:          pending.Exec,
		}
		if len(calls) == 1 {
			next.CallID = calls[0].CallID
			next.ToolName = calls[0].ToolName
			next.Arguments = calls[0].Arguments
		} else {
			for _, c := range calls {
				next.BatchCallIDs = append(next.BatchCallIDs, c.CallID)
			}
		}
		s.store.SetPending(sess, next)

		// The server_tool_use was already delivered on the first suspension;
		// only the new tool calls go back.
		return &anthropic.MessagesResponse{
			ID:         anthropic.NewMessageID(),
			Type:       "message",
			Role:       "assistant",
			Model:      req.Model,
			Content:    callBlocks(calls, pending.ServerToolID),
			StopReason: anthropic.StopToolUse,
			Container:  containerInfo(sess),
		}, nil
	}
}

// finishAfterResume replays the completed execution to the upstream as an
// ordinary tool round trip and lets the model continue.
func (s *Service) finishAfterResume(ctx context.Context, req *anthropic.MessagesRequest, betas []string, sess *sandbox.Session, pending *sandbox.PendingExecution, result *sandbox.CodeOutput) (*anthropic.MessagesResponse, error) {
	rewritten, callable := RewriteRequest(req)

	messages := append(rewritten.Messages,
		anthropic.Message{Role: "assistant", Content: []anthropic.ContentBlock{
			anthropic.NewToolUseBlock(pending.ServerToolID, ExecuteCodeToolName, map[string]any{"code": pending.Code}),
		}},
		anthropic.Message{Role: "user", Content: []anthropic.ContentBlock{
			executionResultBlock(pending.ServerToolID, result),
		}})

	st := &roundState{
		req:       req,
		rewritten: rewritten,
		callable:  callable,
		messages:  messages,
		betas:     betas,
		sess:      sess,
	}
	return s.drive(ctx, st)
}

// collectResults maps the trailing user message's tool_result blocks back to
// sandbox call ids. The tool_use id is "toolu_" + call id.
func collectResults(messages []anthropic.Message, pending *sandbox.PendingExecution) ([]sandbox.ToolResult, error) {
	expected := map[string]bool{}
	if pending.CallID != "" {
		expected[pending.CallID] = true
	}
	for _, id := range pending.BatchCallIDs {
		expected[id] = true
	}

	last := messages[len(messages)-1]
	var results []sandbox.ToolResult
	for _, b := range last.Content {
		if b.Type != anthropic.TypeToolResult {
			continue
		}
		callID := strings.TrimPrefix(b.ToolUseID, "toolu_")
		if !expected[callID] {
			return nil, &anthropic.ValidationError{Message: fmt.Sprintf("tool_result %q does not match a pending call", b.ToolUseID)}
		}
		res := sandbox.ToolResult{CallID: callID}
		if b.IsError {
			res.Error = b.Content.Flatten()
		} else {
			res.Result = b.Content.Flatten()
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, &anthropic.ValidationError{Message: "continuation carries no matching tool_result blocks"}
	}
	return results, nil
}

// executionResultBlock renders the sandbox output as the execute_code
// tool_result sent upstream.
func executionResultBlock(toolUseID string, out *sandbox.CodeOutput) anthropic.ContentBlock {
	if out.Success {
		return anthropic.NewToolResultBlock(toolUseID, out.Output, false)
	}
	msg := out.Output
	if out.Error != nil {
		msg = *out.Error
	}
	return anthropic.NewToolResultBlock(toolUseID, "Error: "+msg, true)
}

// callBlocks renders pending sandbox calls as caller-annotated tool_use
// blocks.
func callBlocks(calls []*sandbox.ToolCall, serverToolID string) []anthropic.ContentBlock {
	blocks := make([]anthropic.ContentBlock, 0, len(calls))
	for _, c := range calls {
		b := anthropic.NewToolUseBlock("toolu_"+c.CallID, c.ToolName, c.Arguments)
		b.Caller = &anthropic.Caller{Type: anthropic.CallerCodeExecution, ToolID: serverToolID}
		blocks = append(blocks, b)
	}
	return blocks
}

func indexOfExecuteCode(blocks []anthropic.ContentBlock) int {
	for i, b := range blocks {
		if b.Type == anthropic.TypeToolUse && b.Name == ExecuteCodeToolName {
			return i
		}
	}
	return -1
}

func toolNames(tools []anthropic.Tool) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}

func containerInfo(sess *sandbox.Session) *anthropic.ContainerInfo {
	return &anthropic.ContainerInfo{
		ID:        sess.ID,
		ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339),
	}
}
