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
	"context"
	"encoding/json"
	"unicode"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/teradata-labs/heddle/pkg/anthropic"
	"github.com/teradata-labs/heddle/pkg/modelmap"
)

// Estimator weights for non-text content.
const (
	imageTokenCost    = 85
	documentTokenCost = 250
	framingOverhead   = 1.05
)

// CountTokens returns the input token count for a request. Claude-family
// targets use the upstream CountTokens API; other targets, or a failed
// upstream call, fall back to the local estimator.
func (c *Client) CountTokens(ctx context.Context, t *Translator, req *anthropic.CountTokensRequest) (int, error) {
	modelID := t.Resolve(req.Model)
	if !modelmap.IsClaudeFamily(modelID) {
		return EstimateTokens(req), nil
	}

	full := &anthropic.MessagesRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		System:    req.System,
		Tools:     req.Tools,
		MaxTokens: 1,
	}
	input, err := t.BuildConverseInput(full, nil)
	if err != nil {
		return 0, err
	}

	// ConverseTokensRequest carries messages and system only; upstream counts
	// exclude tool definitions.
	out, err := c.runtime.CountTokens(ctx, &bedrockruntime.CountTokensInput{
		ModelId: aws.String(modelID),
		Input: &bedrocktypes.CountTokensInputMemberConverse{
			Value: bedrocktypes.ConverseTokensRequest{
				Messages: input.Messages,
				System:   input.System,
			},
		},
	})
	if err != nil {
		c.logger.Warn("count_tokens upstream call failed, using estimator", zap.Error(err))
		return EstimateTokens(req), nil
	}
	return int(aws.ToInt32(out.InputTokens)), nil
}

// EstimateTokens approximates the input token count without an upstream
// call. CJK code points weigh one token each, other code points one token per
// four characters; images and documents add flat costs; the total carries a
// 5% framing overhead and is floored at 1. Best-effort only, never used for
// billing.
func EstimateTokens(req *anthropic.CountTokensRequest) int {
	var cjk, other, extra int

	countText := func(s string) {
		for _, r := range s {
			if isCJK(r) {
				cjk++
			} else {
				other++
			}
		}
	}

	for _, b := range req.System {
		countText(b.Text)
	}
	for _, msg := range req.Messages {
		for _, b := range msg.Content {
			switch b.Type {
			case anthropic.TypeText:
				countText(b.Text)
			case anthropic.TypeThinking:
				countText(b.Thinking)
			case anthropic.TypeImage:
				extra += imageTokenCost
			case anthropic.TypeDocument:
				extra += documentTokenCost
			case anthropic.TypeToolUse:
				countText(b.Name)
				if raw, err := json.Marshal(b.Input); err == nil {
					countText(string(raw))
				}
			case anthropic.TypeToolResult:
				countText(b.Content.Flatten())
			}
		}
	}
	for _, tool := range req.Tools {
		countText(tool.Name)
		countText(tool.Description)
		if raw, err := json.Marshal(tool.InputSchema); err == nil {
			countText(string(raw))
		}
	}

	total := float64(cjk) + float64(other)/4 + float64(extra)
	total *= framingOverhead
	if total < 1 {
		return 1
	}
	return int(total)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
