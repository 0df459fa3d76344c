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
// Package anthropic models the Anthropic Messages API wire schema: content
// blocks, messages, requests, responses, and streaming events. This is the
// proxy's public schema; the Bedrock Converse shape is derived from it in
// pkg/bedrock.
package anthropic

import (
	"encoding/json"
	"fmt"
)

// Content block type tags.
const (
	TypeText                        = "text"
	TypeImage                       = "image"
	TypeDocument                    = "document"
	TypeThinking                    = "thinking"
	TypeRedactedThinking            = "redacted_thinking"
	TypeToolUse                     = "tool_use"
	TypeToolResult                  = "tool_result"
	TypeServerToolUse               = "server_tool_use"
	TypeCodeExecutionToolResult     = "code_execution_tool_result"
	TypeBashCodeExecutionToolResult = "bash_code_execution_tool_result"
)

// Caller type tags. A tool_use emitted by a programmatic-tool-calling round
// always carries a caller: either the model invoked the tool itself (direct)
// or sandbox code did, under a server_tool_use identified by ToolID.
const (
	CallerDirect        = "direct"
	CallerCodeExecution = "code_execution_20250825"
)

// Beta feature identifiers consumed from the anthropic-beta header.
const (
	BetaAdvancedToolUse = "advanced-tool-use-2025-11-20"
	BetaCodeExecution   = "code-execution-2025-08-25"
)

// ToolTypeCodeExecution marks a tool definition as the server-provided
// code-execution capability rather than a client-fulfilled tool.
const ToolTypeCodeExecution = "code_execution_20250825"

// CacheControl is a positional prompt-cache marker.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// Source is a base64 payload for image and document blocks.
type Source struct {
	Type      string `json:"type"` // "base64"
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// Caller records who invoked a tool_use block.
type Caller struct {
	Type   string `json:"type"`
	ToolID string `json:"tool_id,omitempty"`
}

// CodeExecutionResult is the payload of a code_execution_tool_result or
// bash_code_execution_tool_result block.
type CodeExecutionResult struct {
	Type       string `json:"type"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	ReturnCode int    `json:"return_code"`
}

// ToolResultContent is either a bare string or a list of text/image blocks.
type ToolResultContent struct {
	Text   string
	Blocks []ContentBlock
}

// IsList reports whether the wire value was a block list.
func (c *ToolResultContent) IsList() bool {
	return c.Blocks != nil
}

// Flatten returns the textual content, joining text blocks when the value is
// a list.
func (c *ToolResultContent) Flatten() string {
	if c == nil {
		return ""
	}
	if c.Blocks == nil {
		return c.Text
	}
	var out string
	for _, b := range c.Blocks {
		if b.Type == TypeText {
			out += b.Text
		}
	}
	return out
}

// UnmarshalJSON accepts both the string and the list form.
func (c *ToolResultContent) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Text = s
		c.Blocks = nil
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return fmt.Errorf("tool_result content must be a string or a block list: %w", err)
	}
	c.Blocks = blocks
	return nil
}

// MarshalJSON re-emits the original form.
func (c ToolResultContent) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

// ContentBlock is the polymorphic message block, discriminated by Type.
// Exactly the fields belonging to the active variant are serialized.
type ContentBlock struct {
	Type string `json:"type"`

	// text
	Text string `json:"text,omitempty"`

	// image, document
	Source *Source `json:"source,omitempty"`
	// document
	Name string `json:"name,omitempty"`

	// thinking
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
	// redacted_thinking
	Data string `json:"data,omitempty"`

	// tool_use, server_tool_use
	ID     string         `json:"id,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
	Caller *Caller        `json:"caller,omitempty"`

	// tool_result
	ToolUseID string             `json:"tool_use_id,omitempty"`
	Content   *ToolResultContent `json:"content,omitempty"`
	IsError   bool               `json:"is_error,omitempty"`

	// code_execution_tool_result, bash_code_execution_tool_result
	ExecutionResult *CodeExecutionResult `json:"-"`

	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// NewTextBlock returns a text content block.
func NewTextBlock(text string) ContentBlock {
	return ContentBlock{Type: TypeText, Text: text}
}

// NewToolUseBlock returns a tool_use content block.
func NewToolUseBlock(id, name string, input map[string]any) ContentBlock {
	if input == nil {
		input = map[string]any{}
	}
	return ContentBlock{Type: TypeToolUse, ID: id, Name: name, Input: input}
}

// NewToolResultBlock returns a tool_result content block with text content.
func NewToolResultBlock(toolUseID, text string, isError bool) ContentBlock {
	return ContentBlock{
		Type:      TypeToolResult,
		ToolUseID: toolUseID,
		Content:   &ToolResultContent{Text: text},
		IsError:   isError,
	}
}

// MarshalJSON serializes only the fields of the active variant so blocks
// round-trip without leaking zero-valued siblings.
func (b ContentBlock) MarshalJSON() ([]byte, error) {
	switch b.Type {
	case TypeText:
		return json.Marshal(struct {
			Type         string        `json:"type"`
			Text         string        `json:"text"`
			CacheControl *CacheControl `json:"cache_control,omitempty"`
		}{b.Type, b.Text, b.CacheControl})

	case TypeImage, TypeDocument:
		return json.Marshal(struct {
			Type         string        `json:"type"`
			Source       *Source       `json:"source"`
			Name         string        `json:"name,omitempty"`
			CacheControl *CacheControl `json:"cache_control,omitempty"`
		}{b.Type, b.Source, b.Name, b.CacheControl})

	case TypeThinking:
		return json.Marshal(struct {
			Type      string `json:"type"`
			Thinking  string `json:"thinking"`
			Signature string `json:"signature,omitempty"`
		}{b.Type, b.Thinking, b.Signature})

	case TypeRedactedThinking:
		return json.Marshal(struct {
			Type string `json:"type"`
			Data string `json:"data"`
		}{b.Type, b.Data})

	case TypeToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type         string         `json:"type"`
			ID           string         `json:"id"`
			Name         string         `json:"name"`
			Input        map[string]any `json:"input"`
			Caller       *Caller        `json:"caller,omitempty"`
			CacheControl *CacheControl  `json:"cache_control,omitempty"`
		}{b.Type, b.ID, b.Name, input, b.Caller, b.CacheControl})

	case TypeServerToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		return json.Marshal(struct {
			Type  string         `json:"type"`
			ID    string         `json:"id"`
			Name  string         `json:"name"`
			Input map[string]any `json:"input"`
		}{b.Type, b.ID, b.Name, input})

	case TypeToolResult:
		return json.Marshal(struct {
			Type         string             `json:"type"`
			ToolUseID    string             `json:"tool_use_id"`
			Content      *ToolResultContent `json:"content"`
			IsError      bool               `json:"is_error,omitempty"`
			CacheControl *CacheControl      `json:"cache_control,omitempty"`
		}{b.Type, b.ToolUseID, b.Content, b.IsError, b.CacheControl})

	case TypeCodeExecutionToolResult, TypeBashCodeExecutionToolResult:
		return json.Marshal(struct {
			Type      string               `json:"type"`
			ToolUseID string               `json:"tool_use_id"`
			Content   *CodeExecutionResult `json:"content"`
		}{b.Type, b.ToolUseID, b.ExecutionResult})

	default:
		type raw ContentBlock
		return json.Marshal(raw(b))
	}
}

// UnmarshalJSON decodes the shared fields and routes the "content" key to the
// variant-appropriate shape.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type raw ContentBlock
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}

	switch head.Type {
	case TypeCodeExecutionToolResult, TypeBashCodeExecutionToolResult:
		var wire struct {
			Type      string               `json:"type"`
			ToolUseID string               `json:"tool_use_id"`
			Content   *CodeExecutionResult `json:"content"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return err
		}
		*b = ContentBlock{Type: wire.Type, ToolUseID: wire.ToolUseID, ExecutionResult: wire.Content}
		return nil
	default:
		var r raw
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		*b = ContentBlock(r)
		return nil
	}
}
