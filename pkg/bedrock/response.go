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
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// MapStopReason translates a Converse stop reason into the Anthropic
// vocabulary. Unknown reasons collapse to end_turn.
func MapStopReason(reason bedrocktypes.StopReason) string {
	switch reason {
	case bedrocktypes.StopReasonEndTurn:
		return anthropic.StopEndTurn
	case bedrocktypes.StopReasonMaxTokens:
		return anthropic.StopMaxTokens
	case bedrocktypes.StopReasonStopSequence:
		return anthropic.StopStopSequence
	case bedrocktypes.StopReasonToolUse:
		return anthropic.StopToolUse
	default:
		// content_filtered, guardrail_intervened, "complete" and anything
		// the upstream adds later.
		return anthropic.StopEndTurn
	}
}

// TranslateResponse converts a Converse output into a messages response.
// model is the caller-facing model id, echoed back verbatim.
func TranslateResponse(output *bedrockruntime.ConverseOutput, model string) (*anthropic.MessagesResponse, error) {
	resp := &anthropic.MessagesResponse{
		ID:         anthropic.NewMessageID(),
		Type:       "message",
		Role:       anthropic.RoleAssistant,
		Model:      model,
		StopReason: MapStopReason(output.StopReason),
	}

	if msg, ok := output.Output.(*bedrocktypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			switch b := block.(type) {
			case *bedrocktypes.ContentBlockMemberText:
				// Empty text blocks preceding a toolUse are an upstream
				// artifact and are dropped.
				if b.Value == "" {
					continue
				}
				resp.Content = append(resp.Content, anthropic.NewTextBlock(b.Value))

			case *bedrocktypes.ContentBlockMemberToolUse:
				resp.Content = append(resp.Content, anthropic.NewToolUseBlock(
					aws.ToString(b.Value.ToolUseId),
					aws.ToString(b.Value.Name),
					documentToMap(b.Value.Input),
				))

			case *bedrocktypes.ContentBlockMemberImage:
				raw, ok := b.Value.Source.(*bedrocktypes.ImageSourceMemberBytes)
				if !ok {
					continue
				}
				resp.Content = append(resp.Content, anthropic.ContentBlock{
					Type: anthropic.TypeImage,
					Source: &anthropic.Source{
						Type:      "base64",
						MediaType: "image/" + string(b.Value.Format),
						Data:      base64.StdEncoding.EncodeToString(raw.Value),
					},
				})

			case *bedrocktypes.ContentBlockMemberReasoningContent:
				if rc, ok := b.Value.(*bedrocktypes.ReasoningContentBlockMemberReasoningText); ok {
					resp.Content = append(resp.Content, anthropic.ContentBlock{
						Type:      anthropic.TypeThinking,
						Thinking:  aws.ToString(rc.Value.Text),
						Signature: aws.ToString(rc.Value.Signature),
					})
				}
			}
		}
	}

	if output.Usage != nil {
		resp.Usage = translateUsage(output.Usage)
	}
	return resp, nil
}

func translateUsage(u *bedrocktypes.TokenUsage) anthropic.Usage {
	usage := anthropic.Usage{
		InputTokens:  int(aws.ToInt32(u.InputTokens)),
		OutputTokens: int(aws.ToInt32(u.OutputTokens)),
	}
	if u.CacheWriteInputTokens != nil {
		v := int(aws.ToInt32(u.CacheWriteInputTokens))
		usage.CacheCreationInputTokens = &v
	}
	if u.CacheReadInputTokens != nil {
		v := int(aws.ToInt32(u.CacheReadInputTokens))
		usage.CacheReadInputTokens = &v
	}
	return usage
}

// documentToMap decodes a smithy document union into a plain map.
func documentToMap(doc interface{ MarshalSmithyDocument() ([]byte, error) }) map[string]any {
	out := map[string]any{}
	if doc == nil {
		return out
	}
	raw, err := doc.MarshalSmithyDocument()
	if err != nil {
		return out
	}
	_ = json.Unmarshal(raw, &out)
	return out
}
