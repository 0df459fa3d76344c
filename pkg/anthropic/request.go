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

// Tool is a tool definition offered to the model.
type Tool struct {
	// Type marks server-provided capabilities such as the code-execution
	// sentinel. Empty for ordinary client-fulfilled tools.
	Type           string         `json:"type,omitempty"`
	Name           string         `json:"name"`
	Description    string         `json:"description,omitempty"`
	InputSchema    map[string]any `json:"input_schema,omitempty"`
	CacheControl   *CacheControl  `json:"cache_control,omitempty"`
	AllowedCallers []string       `json:"allowed_callers,omitempty"`
}

// IsCodeExecution reports whether the definition is a code-execution
// server capability.
func (t Tool) IsCodeExecution() bool {
	return t.Type == ToolTypeCodeExecution
}

// AllowsCaller reports whether the tool may be invoked by the given caller
// type. An absent allowed_callers list means direct-only.
func (t Tool) AllowsCaller(caller string) bool {
	if len(t.AllowedCallers) == 0 {
		return caller == CallerDirect
	}
	for _, c := range t.AllowedCallers {
		if c == caller {
			return true
		}
	}
	return false
}

// ToolChoice directives.
const (
	ToolChoiceAuto = "auto"
	ToolChoiceAny  = "any"
	ToolChoiceTool = "tool"
	ToolChoiceNone = "none"
)

// ToolChoice directs how the model selects tools.
type ToolChoice struct {
	Type                   string `json:"type"`
	Name                   string `json:"name,omitempty"`
	DisableParallelToolUse bool   `json:"disable_parallel_tool_use,omitempty"`
}

// ThinkingConfig enables extended thinking with a token budget.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled" or "disabled"
	BudgetTokens int    `json:"budget_tokens,omitempty"`
}

// Enabled reports whether thinking is requested.
func (t *ThinkingConfig) Enabled() bool {
	return t != nil && t.Type == "enabled"
}

// MessagesRequest is the body of POST /v1/messages.
type MessagesRequest struct {
	Model         string          `json:"model"`
	Messages      []Message       `json:"messages"`
	MaxTokens     int             `json:"max_tokens"`
	System        SystemPrompt    `json:"system,omitempty"`
	Temperature   *float64        `json:"temperature,omitempty"`
	TopP          *float64        `json:"top_p,omitempty"`
	TopK          *int            `json:"top_k,omitempty"`
	StopSequences []string        `json:"stop_sequences,omitempty"`
	Stream        bool            `json:"stream,omitempty"`
	Tools         []Tool          `json:"tools,omitempty"`
	ToolChoice    *ToolChoice     `json:"tool_choice,omitempty"`
	Thinking      *ThinkingConfig `json:"thinking,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`

	// Container names an existing sandbox session to reuse.
	Container string `json:"container,omitempty"`
}

// CountTokensRequest is the body of POST /v1/messages/count_tokens. It is the
// messages request minus the generation controls.
type CountTokensRequest struct {
	Model    string       `json:"model"`
	Messages []Message    `json:"messages"`
	System   SystemPrompt `json:"system,omitempty"`
	Tools    []Tool       `json:"tools,omitempty"`
}

// CountTokensResponse is the count_tokens result.
type CountTokensResponse struct {
	InputTokens int `json:"input_tokens"`
}
