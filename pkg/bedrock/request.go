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
package bedrock

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/modelmap"
)

// Options gates translator features.
type Options struct {
	PromptCachingEnabled   bool
	EnableToolUse          bool
	EnableExtendedThinking bool
	EnableDocumentSupport  bool
}

// Translator converts between the Anthropic schema and the Converse schema.
// A Translator is not safe for concurrent use; build one per request.
type Translator struct {
	resolver *modelmap.Resolver
	opts     Options
}

// NewTranslator builds a Translator over a model resolver.
func NewTranslator(resolver *modelmap.Resolver, opts Options) *Translator {
	return &Translator{resolver: resolver, opts: opts}
}

// Resolve maps the caller model id to the upstream id.
func (t *Translator) Resolve(modelID string) string {
	return t.resolver.Resolve(modelID)
}

// BuildConverseInput translates a messages request into a Converse call.
// betas carries pass-through anthropic-beta values for Claude-family targets.
func (t *Translator) BuildConverseInput(req *anthropic.MessagesRequest, betas []string) (*bedrockruntime.ConverseInput, error) {
	modelID := t.resolver.Resolve(req.Model)
	claude := modelmap.IsClaudeFamily(modelID)

	messages, err := t.convertMessages(req.Messages, claude)
	if err != nil {
		return nil, err
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("no valid messages to send")
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: messages,
		InferenceConfig: &bedrocktypes.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(req.MaxTokens)),
		},
	}
	if req.Temperature != nil {
		input.InferenceConfig.Temperature = aws.Float32(float32(*req.Temperature))
	}
	if req.TopP != nil {
		input.InferenceConfig.TopP = aws.Float32(float32(*req.TopP))
	}
	if len(req.StopSequences) > 0 {
		input.InferenceConfig.StopSequences = req.StopSequences
	}

	if system := t.convertSystem(req.System, claude); len(system) > 0 {
		input.System = system
	}

	if toolConfig := t.convertTools(req.Tools, req.ToolChoice, claude); toolConfig != nil {
		input.ToolConfig = toolConfig
	}

	if fields := t.additionalFields(req, betas, claude); len(fields) > 0 {
		input.AdditionalModelRequestFields = document.NewLazyDocument(fields)
	}

	return input, nil
}

// BuildConverseStreamInput is the streaming variant; the shapes are
// field-identical.
func (t *Translator) BuildConverseStreamInput(req *anthropic.MessagesRequest, betas []string) (*bedrockruntime.ConverseStreamInput, error) {
	in, err := t.BuildConverseInput(req, betas)
	if err != nil {
		return nil, err
	}
	return &bedrockruntime.ConverseStreamInput{
		ModelId:                      in.ModelId,
		Messages:                     in.Messages,
		InferenceConfig:              in.InferenceConfig,
		System:                       in.System,
		ToolConfig:                   in.ToolConfig,
		AdditionalModelRequestFields: in.AdditionalModelRequestFields,
	}, nil
}

func (t *Translator) convertSystem(system anthropic.SystemPrompt, claude bool) []bedrocktypes.SystemContentBlock {
	var blocks []bedrocktypes.SystemContentBlock
	for _, b := range system {
		if b.Type != anthropic.TypeText || b.Text == "" {
			continue
		}
		blocks = append(blocks, &bedrocktypes.SystemContentBlockMemberText{Value: b.Text})
		if t.cacheMarker(b.CacheControl, claude) {
			blocks = append(blocks, &bedrocktypes.SystemContentBlockMemberCachePoint{
				Value: bedrocktypes.CachePointBlock{Type: bedrocktypes.CachePointTypeDefault},
			})
		}
	}
	return blocks
}

func (t *Translator) convertMessages(messages []anthropic.Message, claude bool) ([]bedrocktypes.Message, error) {
	var out []bedrocktypes.Message
	for i, msg := range messages {
		role := bedrocktypes.ConversationRoleUser
		if msg.Role == anthropic.RoleAssistant {
			role = bedrocktypes.ConversationRoleAssistant
		}

		var content []bedrocktypes.ContentBlock
		for j, b := range msg.Content {
			blocks, err := t.convertBlock(b, claude)
			if err != nil {
				return nil, fmt.Errorf("messages[%d].content[%d]: %w", i, j, err)
			}
			content = append(content, blocks...)
		}
		if len(content) == 0 {
			continue
		}
		out = append(out, bedrocktypes.Message{Role: role, Content: content})
	}
	return out, nil
}

// convertBlock returns zero or more Converse blocks for one Anthropic block.
// The cache marker is interleaved immediately after the element carrying it;
// the Converse API treats the marker positionally.
func (t *Translator) convertBlock(b anthropic.ContentBlock, claude bool) ([]bedrocktypes.ContentBlock, error) {
	var out []bedrocktypes.ContentBlock

	switch b.Type {
	case anthropic.TypeText:
		if b.Text == "" {
			return nil, nil
		}
		out = append(out, &bedrocktypes.ContentBlockMemberText{Value: b.Text})

	case anthropic.TypeImage:
		if b.Source == nil {
			return nil, fmt.Errorf("image block requires source")
		}
		raw, err := base64.StdEncoding.DecodeString(b.Source.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid image base64: %w", err)
		}
		format := strings.TrimPrefix(b.Source.MediaType, "image/")
		out = append(out, &bedrocktypes.ContentBlockMemberImage{
			Value: bedrocktypes.ImageBlock{
				Format: bedrocktypes.ImageFormat(format),
				Source: &bedrocktypes.ImageSourceMemberBytes{Value: raw},
			},
		})

	case anthropic.TypeDocument:
		if !t.opts.EnableDocumentSupport {
			return nil, nil
		}
		if b.Source == nil {
			return nil, fmt.Errorf("document block requires source")
		}
		raw, err := base64.StdEncoding.DecodeString(b.Source.Data)
		if err != nil {
			return nil, fmt.Errorf("invalid document base64: %w", err)
		}
		name := b.Name
		if name == "" {
			name = "document"
		}
		out = append(out, &bedrocktypes.ContentBlockMemberDocument{
			Value: bedrocktypes.DocumentBlock{
				Format: documentFormat(b.Source.MediaType),
				Name:   aws.String(name),
				Source: &bedrocktypes.DocumentSourceMemberBytes{Value: raw},
			},
		})

	case anthropic.TypeThinking:
		// Assistant-side thinking survives as bracketed text when extended
		// thinking is on, and is dropped otherwise.
		if !t.opts.EnableExtendedThinking || b.Thinking == "" {
			return nil, nil
		}
		out = append(out, &bedrocktypes.ContentBlockMemberText{
			Value: "<thinking>" + b.Thinking + "</thinking>",
		})

	case anthropic.TypeRedactedThinking:
		return nil, nil

	case anthropic.TypeToolUse:
		input := b.Input
		if input == nil {
			input = map[string]any{}
		}
		out = append(out, &bedrocktypes.ContentBlockMemberToolUse{
			Value: bedrocktypes.ToolUseBlock{
				ToolUseId: aws.String(b.ID),
				Name:      aws.String(b.Name),
				Input:     document.NewLazyDocument(input),
			},
		})

	case anthropic.TypeToolResult:
		block, err := convertToolResult(b)
		if err != nil {
			return nil, err
		}
		out = append(out, block)

	case anthropic.TypeServerToolUse, anthropic.TypeCodeExecutionToolResult, anthropic.TypeBashCodeExecutionToolResult:
		// Server-side artifacts never travel upstream. The orchestrators
		// filter them; skipping here keeps stray blocks from breaking turns.
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported block type %q", b.Type)
	}

	if t.cacheMarker(b.CacheControl, claude) {
		out = append(out, &bedrocktypes.ContentBlockMemberCachePoint{
			Value: bedrocktypes.CachePointBlock{Type: bedrocktypes.CachePointTypeDefault},
		})
	}
	return out, nil
}

func convertToolResult(b anthropic.ContentBlock) (bedrocktypes.ContentBlock, error) {
	var content []bedrocktypes.ToolResultContentBlock
	if b.Content != nil && b.Content.IsList() {
		for _, inner := range b.Content.Blocks {
			switch inner.Type {
			case anthropic.TypeText:
				content = append(content, &bedrocktypes.ToolResultContentBlockMemberText{Value: inner.Text})
			case anthropic.TypeImage:
				if inner.Source == nil {
					return nil, fmt.Errorf("tool_result image requires source")
				}
				raw, err := base64.StdEncoding.DecodeString(inner.Source.Data)
				if err != nil {
					return nil, fmt.Errorf("invalid tool_result image base64: %w", err)
				}
				content = append(content, &bedrocktypes.ToolResultContentBlockMemberImage{
					Value: bedrocktypes.ImageBlock{
						Format: bedrocktypes.ImageFormat(strings.TrimPrefix(inner.Source.MediaType, "image/")),
						Source: &bedrocktypes.ImageSourceMemberBytes{Value: raw},
					},
				})
			default:
				return nil, fmt.Errorf("tool_result content type %q is not allowed", inner.Type)
			}
		}
	} else {
		content = append(content, &bedrocktypes.ToolResultContentBlockMemberText{Value: b.Content.Flatten()})
	}

	status := bedrocktypes.ToolResultStatusSuccess
	if b.IsError {
		status = bedrocktypes.ToolResultStatusError
	}
	return &bedrocktypes.ContentBlockMemberToolResult{
		Value: bedrocktypes.ToolResultBlock{
			ToolUseId: aws.String(b.ToolUseID),
			Content:   content,
			Status:    status,
		},
	}, nil
}

func (t *Translator) convertTools(tools []anthropic.Tool, choice *anthropic.ToolChoice, claude bool) *bedrocktypes.ToolConfiguration {
	if !t.opts.EnableToolUse || len(tools) == 0 {
		return nil
	}
	if choice != nil && choice.Type == anthropic.ToolChoiceNone {
		return nil
	}

	var converseTools []bedrocktypes.Tool
	for _, tool := range tools {
		if tool.IsCodeExecution() {
			// The sentinel is rewritten by the orchestrators before we get
			// here; a leftover has no schema to offer upstream.
			continue
		}
		schema := tool.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		converseTools = append(converseTools, &bedrocktypes.ToolMemberToolSpec{
			Value: bedrocktypes.ToolSpecification{
				Name:        aws.String(tool.Name),
				Description: aws.String(tool.Description),
				InputSchema: &bedrocktypes.ToolInputSchemaMemberJson{
					Value: document.NewLazyDocument(schema),
				},
			},
		})
		if t.cacheMarker(tool.CacheControl, claude) {
			converseTools = append(converseTools, &bedrocktypes.ToolMemberCachePoint{
				Value: bedrocktypes.CachePointBlock{Type: bedrocktypes.CachePointTypeDefault},
			})
		}
	}
	if len(converseTools) == 0 {
		return nil
	}

	cfg := &bedrocktypes.ToolConfiguration{Tools: converseTools}
	if choice != nil {
		switch choice.Type {
		case anthropic.ToolChoiceAny:
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberAny{Value: bedrocktypes.AnyToolChoice{}}
		case anthropic.ToolChoiceTool:
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberTool{
				Value: bedrocktypes.SpecificToolChoice{Name: aws.String(choice.Name)},
			}
		default:
			cfg.ToolChoice = &bedrocktypes.ToolChoiceMemberAuto{Value: bedrocktypes.AutoToolChoice{}}
		}
	}
	return cfg
}

func (t *Translator) additionalFields(req *anthropic.MessagesRequest, betas []string, claude bool) map[string]any {
	fields := map[string]any{}
	if req.TopK != nil {
		fields["top_k"] = *req.TopK
	}
	if claude && len(betas) > 0 {
		fields["anthropic_beta"] = betas
	}
	if claude && t.opts.EnableExtendedThinking && req.Thinking.Enabled() {
		fields["thinking"] = map[string]any{
			"type":          "enabled",
			"budget_tokens": req.Thinking.BudgetTokens,
		}
	}
	return fields
}

func (t *Translator) cacheMarker(cc *anthropic.CacheControl, claude bool) bool {
	return cc != nil && claude && t.opts.PromptCachingEnabled
}

func documentFormat(mediaType string) bedrocktypes.DocumentFormat {
	switch mediaType {
	case "application/pdf":
		return bedrocktypes.DocumentFormatPdf
	case "text/csv":
		return bedrocktypes.DocumentFormatCsv
	case "text/html":
		return bedrocktypes.DocumentFormatHtml
	case "text/markdown":
		return bedrocktypes.DocumentFormatMd
	case "text/plain":
		return bedrocktypes.DocumentFormatTxt
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return bedrocktypes.DocumentFormatDocx
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return bedrocktypes.DocumentFormatXlsx
	default:
		return bedrocktypes.DocumentFormatTxt
	}
}
