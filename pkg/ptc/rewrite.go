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
// Package ptc implements programmatic tool calling: the model writes Python,
// the sandbox runs it, tool calls made by the code travel back to the HTTP
// client as tool_use blocks, and results re-enter the suspended execution on
// the next request.
package ptc

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// ExecuteCodeToolName is the synthetic tool offered upstream in place of the
// code-execution sentinel.
const ExecuteCodeToolName = "execute_code"

const systemPromptFragment = `You can run Python in a sandbox with the execute_code tool. The sandbox is stateless between calls: no variable, import, or file survives from one execute_code call to the next, so do as much work as possible in a single call. These tools are available inside the sandbox as async functions: %s. Invoke them with await; when calls are independent, dispatch them in parallel with asyncio.gather.`

// executeCodeTool builds the synthetic tool definition, enumerating the
// sandbox-callable tools in its description.
func executeCodeTool(callable []anthropic.Tool) anthropic.Tool {
	names := make([]string, 0, len(callable))
	for _, t := range callable {
		if t.Description != "" {
			names = append(names, fmt.Sprintf("%s (%s)", t.Name, t.Description))
		} else {
			names = append(names, t.Name)
		}
	}
	desc := "Execute Python code in a sandboxed environment."
	if len(names) > 0 {
		desc += " The following tools are available as async functions: " + strings.Join(names, ", ") + "."
	}
	return anthropic.Tool{
		Name:        ExecuteCodeToolName,
		Description: desc,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Python source to run in the sandbox",
				},
			},
			"required": []any{"code"},
		},
	}
}

// RewriteRequest prepares an upstream request: the code-execution sentinel is
// removed, the synthetic execute_code tool is added, direct-callable tools
// are kept, and the system prompt gains the sandbox instructions. The
// returned slice holds the sandbox-callable tools.
func RewriteRequest(req *anthropic.MessagesRequest) (*anthropic.MessagesRequest, []anthropic.Tool) {
	var callable, direct []anthropic.Tool
	for _, t := range req.Tools {
		if t.IsCodeExecution() {
			continue
		}
		if t.AllowsCaller(anthropic.CallerCodeExecution) {
			callable = append(callable, t)
		}
		if t.AllowsCaller(anthropic.CallerDirect) {
			direct = append(direct, t)
		}
	}

	out := *req
	out.Tools = append([]anthropic.Tool{executeCodeTool(callable)}, direct...)
	out.Messages = FilterHistory(req.Messages)

	fragment := fmt.Sprintf(systemPromptFragment, callableNames(callable))
	out.System = append(append(anthropic.SystemPrompt{}, req.System...), anthropic.NewTextBlock(fragment))
	return &out, callable
}

func callableNames(callable []anthropic.Tool) string {
	if len(callable) == 0 {
		return "(none)"
	}
	names := make([]string, len(callable))
	for i, t := range callable {
		names[i] = t.Name
	}
	return strings.Join(names, ", ")
}

// FilterHistory strips server-side artifacts before any upstream call:
// server_tool_use blocks, tool_use blocks whose caller is not direct, the
// tool_result blocks paired with the filtered uses, and code-execution
// result blocks. Leaking these makes the upstream mis-parse later turns.
func FilterHistory(messages []anthropic.Message) []anthropic.Message {
	filteredIDs := map[string]bool{}
	var out []anthropic.Message

	for _, msg := range messages {
		var content []anthropic.ContentBlock
		for _, b := range msg.Content {
			switch b.Type {
			case anthropic.TypeServerToolUse:
				filteredIDs[b.ID] = true
				continue
			case anthropic.TypeCodeExecutionToolResult, anthropic.TypeBashCodeExecutionToolResult:
				continue
			case anthropic.TypeToolUse:
				if b.Caller != nil && b.Caller.Type != anthropic.CallerDirect {
					filteredIDs[b.ID] = true
					continue
				}
				// Callers are server-side annotations; never sent upstream.
				if b.Caller != nil {
					b.Caller = nil
				}
			case anthropic.TypeToolResult:
				if filteredIDs[b.ToolUseID] {
					continue
				}
			}
			content = append(content, b)
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, anthropic.Message{Role: msg.Role, Content: content})
	}
	return out
}

// AnnotateDirectCalls stamps every un-annotated tool_use block with the
// direct caller descriptor. Once PTC is in effect, every emitted tool_use
// carries a caller.
func AnnotateDirectCalls(blocks []anthropic.ContentBlock) {
	for i := range blocks {
		if blocks[i].Type == anthropic.TypeToolUse && blocks[i].Caller == nil {
			blocks[i].Caller = &anthropic.Caller{Type: anthropic.CallerDirect}
		}
	}
}
