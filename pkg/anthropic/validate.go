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
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationError describes a request that fails schema validation. It maps
// to invalid_request_error at the HTTP boundary.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func validationErrorf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Validate checks the structural invariants of a messages request: required
// fields, role alternation rules for tool results, tool_result references,
// and tool input schemas.
func (r *MessagesRequest) Validate() error {
	if r.Model == "" {
		return validationErrorf("model is required")
	}
	if len(r.Messages) == 0 {
		return validationErrorf("messages must not be empty")
	}
	if r.MaxTokens <= 0 {
		return validationErrorf("max_tokens must be a positive integer")
	}

	seenToolUse := map[string]bool{}
	for i, msg := range r.Messages {
		if msg.Role != RoleUser && msg.Role != RoleAssistant {
			return validationErrorf("messages[%d]: invalid role %q", i, msg.Role)
		}
		if len(msg.Content) == 0 {
			return validationErrorf("messages[%d]: content must not be empty", i)
		}
		for j, b := range msg.Content {
			switch b.Type {
			case TypeToolUse, TypeServerToolUse:
				if msg.Role == RoleAssistant && b.ID != "" {
					seenToolUse[b.ID] = true
				}
			case TypeToolResult:
				if msg.Role != RoleUser {
					return validationErrorf("messages[%d].content[%d]: tool_result blocks are only valid in user messages", i, j)
				}
				if b.ToolUseID == "" {
					return validationErrorf("messages[%d].content[%d]: tool_result requires tool_use_id", i, j)
				}
				if !seenToolUse[b.ToolUseID] {
					return validationErrorf("messages[%d].content[%d]: tool_result references unknown tool_use_id %q", i, j, b.ToolUseID)
				}
				if err := validateToolResultContent(b.Content); err != nil {
					return validationErrorf("messages[%d].content[%d]: %v", i, j, err)
				}
			case TypeImage:
				if b.Source == nil {
					return validationErrorf("messages[%d].content[%d]: image requires source", i, j)
				}
			case TypeDocument:
				if b.Source == nil {
					return validationErrorf("messages[%d].content[%d]: document requires source", i, j)
				}
			case "":
				return validationErrorf("messages[%d].content[%d]: block type is required", i, j)
			}
		}
	}

	for i, t := range r.Tools {
		if t.Name == "" {
			return validationErrorf("tools[%d]: name is required", i)
		}
		if t.IsCodeExecution() {
			continue
		}
		if t.InputSchema == nil {
			return validationErrorf("tools[%d] (%s): input_schema is required", i, t.Name)
		}
		if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(t.InputSchema)); err != nil {
			return validationErrorf("tools[%d] (%s): invalid input_schema: %v", i, t.Name, err)
		}
	}

	if r.ToolChoice != nil {
		switch r.ToolChoice.Type {
		case ToolChoiceAuto, ToolChoiceAny, ToolChoiceNone:
		case ToolChoiceTool:
			if r.ToolChoice.Name == "" {
				return validationErrorf("tool_choice of type tool requires name")
			}
		default:
			return validationErrorf("invalid tool_choice type %q", r.ToolChoice.Type)
		}
	}

	return nil
}

// tool_result list content is restricted to text and image blocks.
func validateToolResultContent(c *ToolResultContent) error {
	if c == nil || c.Blocks == nil {
		return nil
	}
	for k, b := range c.Blocks {
		switch b.Type {
		case TypeText:
		case TypeImage:
			if b.Source == nil {
				return fmt.Errorf("tool_result content[%d]: image requires source", k)
			}
		default:
			return fmt.Errorf("tool_result content[%d]: type %q is not allowed, only text and image", k, b.Type)
		}
	}
	return nil
}
