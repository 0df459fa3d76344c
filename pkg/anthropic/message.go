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
	"fmt"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// MessageContent is an ordered block list. A bare wire string is normalized
// to a single text block on parse.
type MessageContent []ContentBlock

// UnmarshalJSON accepts both `"hello"` and `[{"type":"text",...}]`.
func (m *MessageContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = MessageContent{NewTextBlock(s)}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("content must be a string or a block list: %w", err)
	}
	*m = MessageContent(blocks)
	return nil
}

// SystemPrompt is the system field: a bare string normalizes to a single
// text block, mirroring MessageContent.
type SystemPrompt []ContentBlock

// UnmarshalJSON accepts both forms of the system field.
func (s *SystemPrompt) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = SystemPrompt{NewTextBlock(str)}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("system must be a string or a block list: %w", err)
	}
	*s = SystemPrompt(blocks)
	return nil
}

// Text joins the prompt's text blocks.
func (s SystemPrompt) Text() string {
	var out string
	for _, b := range s {
		if b.Type == TypeText {
			out += b.Text
		}
	}
	return out
}

// Message is one conversation turn.
type Message struct {
	Role    string         `json:"role"`
	Content MessageContent `json:"content"`
}

// NewUserMessage builds a user turn from blocks.
func NewUserMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleUser, Content: blocks}
}

// NewAssistantMessage builds an assistant turn from blocks.
func NewAssistantMessage(blocks ...ContentBlock) Message {
	return Message{Role: RoleAssistant, Content: blocks}
}

// ToolUses returns the message's tool_use blocks.
func (m Message) ToolUses() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == TypeToolUse {
			out = append(out, b)
		}
	}
	return out
}

// ToolResults returns the message's tool_result blocks.
func (m Message) ToolResults() []ContentBlock {
	var out []ContentBlock
	for _, b := range m.Content {
		if b.Type == TypeToolResult {
			out = append(out, b)
		}
	}
	return out
}
