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
package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() MessagesRequest {
	return MessagesRequest{
		Model:     "claude-haiku-4-5",
		MaxTokens: 50,
		Messages:  []Message{NewUserMessage(NewTextBlock("hi"))},
	}
}

func TestValidateAcceptsMinimalRequest(t *testing.T) {
	req := validRequest()
	require.NoError(t, req.Validate())
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MessagesRequest)
		wantMsg string
	}{
		{
			name:    "missing model",
			mutate:  func(r *MessagesRequest) { r.Model = "" },
			wantMsg: "model is required",
		},
		{
			name:    "no messages",
			mutate:  func(r *MessagesRequest) { r.Messages = nil },
			wantMsg: "messages must not be empty",
		},
		{
			name:    "zero max_tokens",
			mutate:  func(r *MessagesRequest) { r.MaxTokens = 0 },
			wantMsg: "max_tokens",
		},
		{
			name: "bad role",
			mutate: func(r *MessagesRequest) {
				r.Messages[0].Role = "system"
			},
			wantMsg: "invalid role",
		},
		{
			name: "tool_result in assistant message",
			mutate: func(r *MessagesRequest) {
				r.Messages = []Message{
					NewAssistantMessage(NewToolResultBlock("toolu_1", "x", false)),
				}
			},
			wantMsg: "only valid in user messages",
		},
		{
			name: "tool_result references unknown id",
			mutate: func(r *MessagesRequest) {
				r.Messages = []Message{
					NewUserMessage(NewToolResultBlock("toolu_missing", "x", false)),
				}
			},
			wantMsg: "unknown tool_use_id",
		},
		{
			name: "tool without schema",
			mutate: func(r *MessagesRequest) {
				r.Tools = []Tool{{Name: "get_weather"}}
			},
			wantMsg: "input_schema is required",
		},
		{
			name: "tool_choice tool without name",
			mutate: func(r *MessagesRequest) {
				r.ToolChoice = &ToolChoice{Type: ToolChoiceTool}
			},
			wantMsg: "requires name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			err := req.Validate()
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestValidateToolResultReferencingEarlierToolUse(t *testing.T) {
	req := validRequest()
	req.Messages = []Message{
		NewUserMessage(NewTextBlock("weather?")),
		NewAssistantMessage(NewToolUseBlock("toolu_1", "get_weather", map[string]any{"city": "Paris"})),
		NewUserMessage(NewToolResultBlock("toolu_1", "18°C", false)),
	}
	require.NoError(t, req.Validate())
}

func TestValidateToolResultListContent(t *testing.T) {
	req := validRequest()
	block := ContentBlock{
		Type:      TypeToolResult,
		ToolUseID: "toolu_1",
		Content: &ToolResultContent{Blocks: []ContentBlock{
			NewToolUseBlock("toolu_2", "nested", nil),
		}},
	}
	req.Messages = []Message{
		NewAssistantMessage(NewToolUseBlock("toolu_1", "t", nil)),
		NewUserMessage(block),
	}
	err := req.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only text and image")
}

func TestValidateToolSchema(t *testing.T) {
	req := validRequest()
	req.Tools = []Tool{{
		Name: "get_weather",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"city": map[string]any{"type": "string"},
			},
			"required": []any{"city"},
		},
	}}
	require.NoError(t, req.Validate())
}

func TestValidateSkipsSchemaForCodeExecutionTool(t *testing.T) {
	req := validRequest()
	req.Tools = []Tool{{Type: ToolTypeCodeExecution, Name: "code_execution"}}
	require.NoError(t, req.Validate())
}
