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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageContentNormalizesBareString(t *testing.T) {
	var msg Message
	err := json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &msg)
	require.NoError(t, err)
	require.Len(t, msg.Content, 1)
	assert.Equal(t, TypeText, msg.Content[0].Type)
	assert.Equal(t, "hello", msg.Content[0].Text)
}

func TestSystemPromptNormalizesBareString(t *testing.T) {
	var req MessagesRequest
	err := json.Unmarshal([]byte(`{"model":"m","max_tokens":10,"system":"be brief","messages":[{"role":"user","content":"hi"}]}`), &req)
	require.NoError(t, err)
	require.Len(t, req.System, 1)
	assert.Equal(t, "be brief", req.System[0].Text)
	assert.Equal(t, "be brief", req.System.Text())
}

func TestToolResultContentBothForms(t *testing.T) {
	var str ToolResultContent
	require.NoError(t, json.Unmarshal([]byte(`"18°C"`), &str))
	assert.False(t, str.IsList())
	assert.Equal(t, "18°C", str.Flatten())

	var list ToolResultContent
	require.NoError(t, json.Unmarshal([]byte(`[{"type":"text","text":"a"},{"type":"text","text":"b"}]`), &list))
	assert.True(t, list.IsList())
	assert.Equal(t, "ab", list.Flatten())

	out, err := json.Marshal(str)
	require.NoError(t, err)
	assert.JSONEq(t, `"18°C"`, string(out))
}

func TestToolUseMarshalKeepsEmptyInput(t *testing.T) {
	b := NewToolUseBlock("toolu_1", "get_time", nil)
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool_use","id":"toolu_1","name":"get_time","input":{}}`, string(out))
}

func TestToolUseMarshalWithCaller(t *testing.T) {
	b := NewToolUseBlock("toolu_1", "get_weather", map[string]any{"city": "Paris"})
	b.Caller = &Caller{Type: CallerCodeExecution, ToolID: "srvtoolu_abc"}
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"tool_use","id":"toolu_1","name":"get_weather",
		"input":{"city":"Paris"},
		"caller":{"type":"code_execution_20250825","tool_id":"srvtoolu_abc"}
	}`, string(out))
}

func TestTextBlockMarshalOmitsSiblingFields(t *testing.T) {
	out, err := json.Marshal(NewTextBlock("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"text","text":"hi"}`, string(out))
}

func TestCodeExecutionResultRoundTrip(t *testing.T) {
	in := `{
		"type":"bash_code_execution_tool_result",
		"tool_use_id":"srvtoolu_1",
		"content":{"type":"bash_code_execution_result","stdout":"3\n","stderr":"","return_code":0}
	}`
	var b ContentBlock
	require.NoError(t, json.Unmarshal([]byte(in), &b))
	require.NotNil(t, b.ExecutionResult)
	assert.Equal(t, "3\n", b.ExecutionResult.Stdout)
	assert.Equal(t, 0, b.ExecutionResult.ReturnCode)

	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestThinkingBlockRoundTrip(t *testing.T) {
	in := `{"type":"thinking","thinking":"consider...","signature":"sig"}`
	var b ContentBlock
	require.NoError(t, json.Unmarshal([]byte(in), &b))
	out, err := json.Marshal(b)
	require.NoError(t, err)
	assert.JSONEq(t, in, string(out))
}

func TestIDPrefixes(t *testing.T) {
	assert.Regexp(t, `^msg_[0-9a-f]{24}$`, NewMessageID())
	assert.Regexp(t, `^toolu_[0-9a-f]{24}$`, NewToolUseID())
	assert.Regexp(t, `^srvtoolu_[0-9a-f]{24}$`, NewServerToolUseID())
}

func TestToolAllowsCaller(t *testing.T) {
	plain := Tool{Name: "get_weather"}
	assert.True(t, plain.AllowsCaller(CallerDirect))
	assert.False(t, plain.AllowsCaller(CallerCodeExecution))

	ptc := Tool{Name: "get_weather", AllowedCallers: []string{CallerCodeExecution}}
	assert.True(t, ptc.AllowsCaller(CallerCodeExecution))
	assert.False(t, ptc.AllowsCaller(CallerDirect))
}
