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
package codexec

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/bedrock"
	"github.com/teradata-labs/heddle/pkg/modelmap"
	"github.com/teradata-labs/heddle/pkg/sandbox"
)

type fakeUpstream struct {
	mu      sync.Mutex
	outputs []*bedrockruntime.ConverseOutput
	inputs  []*bedrockruntime.ConverseInput
}

func (f *fakeUpstream) Invoke(_ context.Context, in *bedrockruntime.ConverseInput) (*bedrockruntime.ConverseOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if len(f.outputs) == 0 {
		return nil, fmt.Errorf("no scripted output for call %d", len(f.inputs))
	}
	out := f.outputs[0]
	f.outputs = f.outputs[1:]
	return out, nil
}

// shellRunner fulfills standalone commands the way the in-container runner
// would, keyed by command text.
type shellRunner struct {
	responses map[string]sandbox.StandaloneResult
}

func (sh *shellRunner) serve(stdin *bufio.Reader, mux io.Writer) {
	for {
		line, err := stdin.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimSuffix(line, "\n")
		if !strings.HasPrefix(line, sandbox.MarkerStandaloneCmd) {
			continue
		}
		var cmd sandbox.StandaloneCommand
		_ = json.Unmarshal([]byte(strings.TrimPrefix(line, sandbox.MarkerStandaloneCmd)), &cmd)
		command, _ := cmd.Input["command"].(string)
		res, ok := sh.responses[command]
		if !ok {
			res = sandbox.StandaloneResult{Type: "bash_result", Stderr: "command not scripted", ReturnCode: 127}
		}
		raw, _ := json.Marshal(res)
		payload := []byte(sandbox.MarkerStandaloneRes + string(raw) + "\n")
		header := make([]byte, 8)
		header[0] = 1 // stdout
		binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
		_, _ = mux.Write(append(header, payload...))
	}
}

type shellDriver struct {
	runner *shellRunner
}

func (d *shellDriver) StartContainer(_ context.Context, name string, _ []byte) (string, *sandbox.Stream, error) {
	muxR, muxW := io.Pipe()
	stdinR, stdinW := io.Pipe()
	stream := sandbox.NewStream(muxR, stdinW, muxR)
	go d.runner.serve(bufio.NewReader(stdinR), muxW)
	return "docker-" + name, stream, nil
}

func (d *shellDriver) StopContainer(context.Context, string) error { return nil }
func (d *shellDriver) Ping(context.Context) error                  { return nil }

func newFixture(t *testing.T, responses map[string]sandbox.StandaloneResult) (*Service, *fakeUpstream, *sandbox.Store) {
	t.Helper()
	resolver, err := modelmap.New(modelmap.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = resolver.Close() })

	store := sandbox.NewStore(sandbox.StoreConfig{
		Driver: &shellDriver{runner: &shellRunner{responses: responses}},
		Runner: []byte("# runner"),
	})
	t.Cleanup(func() {
		store.CloseAll()
		store.Stop()
	})

	upstream := &fakeUpstream{}
	svc := NewService(Config{
		Upstream:   upstream,
		Translator: bedrock.NewTranslator(resolver, bedrock.Options{EnableToolUse: true}),
		Store:      store,
		Executor:   sandbox.NewExecutor(0, 5*time.Second, nil),
	})
	return svc, upstream, store
}

func bashOutput(id, command string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		StopReason: bedrocktypes.StopReasonToolUse,
		Output: &bedrocktypes.ConverseOutputMemberMessage{Value: bedrocktypes.Message{
			Role: bedrocktypes.ConversationRoleAssistant,
			Content: []bedrocktypes.ContentBlock{
				&bedrocktypes.ContentBlockMemberToolUse{Value: bedrocktypes.ToolUseBlock{
					ToolUseId: aws.String(id),
					Name:      aws.String(BashToolName),
					Input:     document.NewLazyDocument(map[string]any{"command": command}),
				}},
			},
		}},
		Usage: &bedrocktypes.TokenUsage{InputTokens: aws.Int32(30), OutputTokens: aws.Int32(15)},
	}
}

func textOutput(text string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		StopReason: bedrocktypes.StopReasonEndTurn,
		Output: &bedrocktypes.ConverseOutputMemberMessage{Value: bedrocktypes.Message{
			Role: bedrocktypes.ConversationRoleAssistant,
			Content: []bedrocktypes.ContentBlock{
				&bedrocktypes.ContentBlockMemberText{Value: text},
			},
		}},
		Usage: &bedrocktypes.TokenUsage{InputTokens: aws.Int32(50), OutputTokens: aws.Int32(10)},
	}
}

func standaloneRequest(text string) *anthropic.MessagesRequest {
	return &anthropic.MessagesRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 200,
		Tools: []anthropic.Tool{
			{Type: anthropic.ToolTypeCodeExecution, Name: "code_execution"},
		},
		Messages: []anthropic.Message{{
			Role:    anthropic.RoleUser,
			Content: anthropic.MessageContent{anthropic.NewTextBlock(text)},
		}},
	}
}

var standaloneBetas = []string{anthropic.BetaCodeExecution}

func TestMatches(t *testing.T) {
	req := standaloneRequest("x")

	ok, err := Matches(req, standaloneBetas)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = Matches(req, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	plain := &anthropic.MessagesRequest{Tools: []anthropic.Tool{{Name: "open_ticket"}}}
	ok, err = Matches(plain, standaloneBetas)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMatchesRejectsMixedToolStyles(t *testing.T) {
	req := standaloneRequest("x")
	req.Tools = append(req.Tools, anthropic.Tool{
		Name:           "get_weather",
		AllowedCallers: []string{anthropic.CallerCodeExecution},
	})

	_, err := Matches(req, standaloneBetas)
	var verr *anthropic.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Message, "allowed_callers")
}

func TestStripBeta(t *testing.T) {
	out := StripBeta([]string{"interleaved-thinking-2025-05-14", anthropic.BetaCodeExecution})
	assert.Equal(t, []string{"interleaved-thinking-2025-05-14"}, out)
}

func TestRewriteRequestOffersBashTool(t *testing.T) {
	out := RewriteRequest(standaloneRequest("x"))
	require.Len(t, out.Tools, 1)
	assert.Equal(t, BashToolName, out.Tools[0].Name)
	props := out.Tools[0].InputSchema["properties"].(map[string]any)
	assert.Contains(t, props, "command")
	assert.Contains(t, props, "restart")
}

func TestAgentLoopTwoCommands(t *testing.T) {
	svc, upstream, store := newFixture(t, map[string]sandbox.StandaloneResult{
		"echo 3 > /tmp/n": {Type: "bash_result", ReturnCode: 0},
		"cat /tmp/n":      {Type: "bash_result", Stdout: "3\n", ReturnCode: 0},
	})
	upstream.outputs = []*bedrockruntime.ConverseOutput{
		bashOutput("tu_1", "echo 3 > /tmp/n"),
		bashOutput("tu_2", "cat /tmp/n"),
		textOutput("The file contains 3."),
	}

	resp, err := svc.HandleMessages(context.Background(), standaloneRequest("write 3 to /tmp/n then read it back"), standaloneBetas)
	require.NoError(t, err)

	assert.Equal(t, anthropic.StopEndTurn, resp.StopReason)

	var serverUses, bashResults []anthropic.ContentBlock
	for _, b := range resp.Content {
		switch b.Type {
		case anthropic.TypeServerToolUse:
			serverUses = append(serverUses, b)
		case anthropic.TypeBashCodeExecutionToolResult:
			bashResults = append(bashResults, b)
		}
	}
	require.Len(t, serverUses, 2)
	require.Len(t, bashResults, 2)
	assert.Equal(t, BashToolName, serverUses[0].Name)
	assert.Equal(t, serverUses[1].ID, bashResults[1].ToolUseID)
	assert.Equal(t, 0, bashResults[1].ExecutionResult.ReturnCode)
	assert.Equal(t, "3\n", bashResults[1].ExecutionResult.Stdout)

	// The final text follows the trace.
	assert.Equal(t, "The file contains 3.", resp.Content[len(resp.Content)-1].Text)

	// Usage accumulates across all three upstream calls.
	assert.Equal(t, 110, resp.Usage.InputTokens)
	assert.Equal(t, 40, resp.Usage.OutputTokens)

	// One session served both commands and is released.
	require.NotNil(t, resp.Container)
	sess := store.Get(resp.Container.ID)
	require.NotNil(t, sess)
	assert.False(t, sess.Busy)

	// The middle upstream call carried the first command's tool_result.
	require.Len(t, upstream.inputs, 3)
	var sawResult bool
	for _, msg := range upstream.inputs[1].Messages {
		for _, block := range msg.Content {
			if _, ok := block.(*bedrocktypes.ContentBlockMemberToolResult); ok {
				sawResult = true
			}
		}
	}
	assert.True(t, sawResult)
}

func TestAgentLoopReportsFailedCommand(t *testing.T) {
	svc, upstream, _ := newFixture(t, map[string]sandbox.StandaloneResult{
		"cat /missing": {Type: "bash_result", Stderr: "cat: /missing: No such file or directory\n", ReturnCode: 1},
	})
	upstream.outputs = []*bedrockruntime.ConverseOutput{
		bashOutput("tu_1", "cat /missing"),
		textOutput("That file does not exist."),
	}

	resp, err := svc.HandleMessages(context.Background(), standaloneRequest("read /missing"), standaloneBetas)
	require.NoError(t, err)

	var result *anthropic.ContentBlock
	for i := range resp.Content {
		if resp.Content[i].Type == anthropic.TypeBashCodeExecutionToolResult {
			result = &resp.Content[i]
		}
	}
	require.NotNil(t, result)
	assert.Equal(t, 1, result.ExecutionResult.ReturnCode)
	assert.Contains(t, result.ExecutionResult.Stderr, "No such file")

	// The upstream saw an error-status tool_result.
	var status bedrocktypes.ToolResultStatus
	for _, msg := range upstream.inputs[1].Messages {
		for _, block := range msg.Content {
			if tr, ok := block.(*bedrocktypes.ContentBlockMemberToolResult); ok {
				status = tr.Value.Status
			}
		}
	}
	assert.Equal(t, bedrocktypes.ToolResultStatusError, status)
}

func TestAgentLoopIterationCap(t *testing.T) {
	responses := map[string]sandbox.StandaloneResult{
		"true": {Type: "bash_result", ReturnCode: 0},
	}
	svc, upstream, _ := newFixture(t, responses)
	svc.maxIterations = 3
	for i := 0; i < 4; i++ {
		upstream.outputs = append(upstream.outputs, bashOutput(fmt.Sprintf("tu_%d", i), "true"))
	}

	_, err := svc.HandleMessages(context.Background(), standaloneRequest("loop forever"), standaloneBetas)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded 3 iterations")
}

func TestAgentLoopStripsLocalBeta(t *testing.T) {
	svc, upstream, _ := newFixture(t, nil)
	upstream.outputs = []*bedrockruntime.ConverseOutput{textOutput("hi")}

	_, err := svc.HandleMessages(context.Background(), standaloneRequest("hi"), standaloneBetas)
	require.NoError(t, err)

	// No additional model request fields when the only beta was local.
	assert.Nil(t, upstream.inputs[0].AdditionalModelRequestFields)
}
