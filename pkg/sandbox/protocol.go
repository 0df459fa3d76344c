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
// Package sandbox provides Docker-backed execution sessions: the container
// driver, the duplex stream parser, the TTL session store, and the execution
// generator that surfaces tool calls from running code.
//
// Containers speak a line-delimited IPC protocol over the attached
// stdin/stdout/stderr streams. Each protocol line carries a JSON payload
// between paired markers.
package sandbox

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol markers. Direction is relative to the runner inside the
// container.
const (
	MarkerToolCall  = "__PTC_TOOL_CALL__"   // stderr out
	MarkerEndCall   = "__PTC_END_CALL__"    //
	MarkerToolRes   = "__PTC_TOOL_RESULT__" // stdin in
	MarkerEndRes    = "__PTC_END_RESULT__"  //
	MarkerOutput    = "__PTC_OUTPUT__"      // stdout out
	MarkerEndOutput = "__PTC_END_OUTPUT__"  //
	MarkerCodeStart = "__CODE_START__"      // stdin in
	MarkerCodeEnd   = "__CODE_END__"        //
	MarkerReady     = "__READY__"           // stderr out, once at boot
	MarkerExit      = "__EXIT_SESSION__"    // stdin in, shutdown

	MarkerStandaloneCmd = "__STANDALONE_CMD__"    // stdin in
	MarkerStandaloneRes = "__STANDALONE_RESULT__" // stdout out
)

// ToolCall is emitted by sandbox code when it invokes an external tool.
type ToolCall struct {
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the fulfillment of a ToolCall, fed back on stdin.
type ToolResult struct {
	CallID string `json:"call_id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// CodeOutput is the terminal result of one code execution.
type CodeOutput struct {
	Success bool    `json:"success"`
	Output  string  `json:"output"`
	Error   *string `json:"error"`
}

// codePayload frames one execution: the code text plus the tool names the
// runner binds as async stubs.
type codePayload struct {
	Code  string   `json:"code"`
	Tools []string `json:"tools"`
}

// StandaloneCommand is one framed standalone-mode command.
type StandaloneCommand struct {
	Type  string         `json:"type"` // "bash" or "text_editor"
	Input map[string]any `json:"input"`
}

// StandaloneResult is the typed result of a standalone command.
type StandaloneResult struct {
	Type       string `json:"type"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

// ParseToolCall extracts a ToolCall from a protocol line, or reports false.
func ParseToolCall(line string) (*ToolCall, bool) {
	payload, ok := between(line, MarkerToolCall, MarkerEndCall)
	if !ok {
		return nil, false
	}
	var call ToolCall
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		return nil, false
	}
	return &call, true
}

// ParseOutput extracts a CodeOutput from a protocol line, or reports false.
func ParseOutput(line string) (*CodeOutput, bool) {
	payload, ok := between(line, MarkerOutput, MarkerEndOutput)
	if !ok {
		return nil, false
	}
	var out CodeOutput
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return nil, false
	}
	return &out, true
}

// ParseStandaloneResult extracts a StandaloneResult from a protocol line.
func ParseStandaloneResult(line string) (*StandaloneResult, bool) {
	payload, ok := between(line, MarkerStandaloneRes, "")
	if !ok {
		return nil, false
	}
	var res StandaloneResult
	if err := json.Unmarshal([]byte(payload), &res); err != nil {
		return nil, false
	}
	return &res, true
}

// EncodeToolResult frames a ToolResult for stdin.
func EncodeToolResult(res ToolResult) (string, error) {
	raw, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encoding tool result: %w", err)
	}
	return MarkerToolRes + string(raw) + MarkerEndRes, nil
}

// EncodeCode frames a code execution block for stdin.
func EncodeCode(code string, toolNames []string) (string, error) {
	if toolNames == nil {
		toolNames = []string{}
	}
	raw, err := json.Marshal(codePayload{Code: code, Tools: toolNames})
	if err != nil {
		return "", fmt.Errorf("encoding code payload: %w", err)
	}
	return MarkerCodeStart + "\n" + string(raw) + "\n" + MarkerCodeEnd, nil
}

// EncodeStandaloneCommand frames a standalone command for stdin.
func EncodeStandaloneCommand(cmd StandaloneCommand) (string, error) {
	raw, err := json.Marshal(cmd)
	if err != nil {
		return "", fmt.Errorf("encoding standalone command: %w", err)
	}
	return MarkerStandaloneCmd + string(raw), nil
}

// between returns the text between prefix and suffix markers. An empty
// suffix means end of line.
func between(line, prefix, suffix string) (string, bool) {
	start := strings.Index(line, prefix)
	if start < 0 {
		return "", false
	}
	rest := line[start+len(prefix):]
	if suffix == "" {
		return rest, true
	}
	end := strings.Index(rest, suffix)
	if end < 0 {
		return "", false
	}
	return rest[:end], true
}
