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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCall(t *testing.T) {
	line := `__PTC_TOOL_CALL__{"call_id":"abc","tool_name":"get_weather","arguments":{"city":"Paris"}}__PTC_END_CALL__`
	call, ok := ParseToolCall(line)
	require.True(t, ok)
	assert.Equal(t, "abc", call.CallID)
	assert.Equal(t, "get_weather", call.ToolName)
	assert.Equal(t, map[string]any{"city": "Paris"}, call.Arguments)

	_, ok = ParseToolCall("just some stderr noise")
	assert.False(t, ok)

	_, ok = ParseToolCall(`__PTC_TOOL_CALL__{not json}__PTC_END_CALL__`)
	assert.False(t, ok)
}

func TestParseOutput(t *testing.T) {
	line := `__PTC_OUTPUT__{"success":true,"output":"18\n","error":null}__PTC_END_OUTPUT__`
	out, ok := ParseOutput(line)
	require.True(t, ok)
	assert.True(t, out.Success)
	assert.Equal(t, "18\n", out.Output)
	assert.Nil(t, out.Error)
}

func TestEncodeToolResult(t *testing.T) {
	line, err := EncodeToolResult(ToolResult{CallID: "abc", Result: "18°C"})
	require.NoError(t, err)
	assert.Equal(t, `__PTC_TOOL_RESULT__{"call_id":"abc","result":"18°C"}__PTC_END_RESULT__`, line)

	line, err = EncodeToolResult(ToolResult{CallID: "abc", Error: "boom"})
	require.NoError(t, err)
	assert.Contains(t, line, `"error":"boom"`)
}

func TestEncodeCodeFrame(t *testing.T) {
	frame, err := EncodeCode("print(1)", []string{"get_weather"})
	require.NoError(t, err)
	assert.Contains(t, frame, MarkerCodeStart+"\n")
	assert.Contains(t, frame, `"code":"print(1)"`)
	assert.Contains(t, frame, `"tools":["get_weather"]`)
	assert.Contains(t, frame, "\n"+MarkerCodeEnd)
}

func TestParseStandaloneResult(t *testing.T) {
	line := `__STANDALONE_RESULT__{"type":"bash_result","stdout":"3\n","stderr":"","return_code":0}`
	res, ok := ParseStandaloneResult(line)
	require.True(t, ok)
	assert.Equal(t, "3\n", res.Stdout)
	assert.Equal(t, 0, res.ReturnCode)
}

func TestEncodeStandaloneCommand(t *testing.T) {
	line, err := EncodeStandaloneCommand(StandaloneCommand{
		Type:  "bash",
		Input: map[string]any{"command": "echo 3"},
	})
	require.NoError(t, err)
	assert.Contains(t, line, MarkerStandaloneCmd)
	assert.Contains(t, line, `"command":"echo 3"`)
}
