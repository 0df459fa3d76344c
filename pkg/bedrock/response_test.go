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
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

func converseOutput(stop bedrocktypes.StopReason, blocks ...bedrocktypes.ContentBlock) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &bedrocktypes.ConverseOutputMemberMessage{
			Value: bedrocktypes.Message{
				Role:    bedrocktypes.ConversationRoleAssistant,
				Content: blocks,
			},
		},
		StopReason: stop,
		Usage: &bedrocktypes.TokenUsage{
			InputTokens:  aws.Int32(12),
			OutputTokens: aws.Int32(7),
		},
	}
}

func TestMapStopReason(t *testing.T) {
	tests := []struct {
		in   bedrocktypes.StopReason
		want string
	}{
		{bedrocktypes.StopReasonEndTurn, anthropic.StopEndTurn},
		{bedrocktypes.StopReasonMaxTokens, anthropic.StopMaxTokens},
		{bedrocktypes.StopReasonStopSequence, anthropic.StopStopSequence},
		{bedrocktypes.StopReasonToolUse, anthropic.StopToolUse},
		{bedrocktypes.StopReasonContentFiltered, anthropic.StopEndTurn},
		{bedrocktypes.StopReason("complete"), anthropic.StopEndTurn},
		{bedrocktypes.StopReason("something_new"), anthropic.StopEndTurn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapStopReason(tt.in), "stop reason %q", tt.in)
	}
}

func TestTranslateResponseEmptyTextFilter(t *testing.T) {
	out := converseOutput(bedrocktypes.StopReasonToolUse,
		&bedrocktypes.ContentBlockMemberText{Value: ""},
		&bedrocktypes.ContentBlockMemberToolUse{
			Value: bedrocktypes.ToolUseBlock{
				ToolUseId: aws.String("tu1"),
				Name:      aws.String("get_weather"),
				Input:     document.NewLazyDocument(map[string]any{"city": "Paris"}),
			},
		},
	)

	resp, err := TranslateResponse(out, "claude-haiku-4-5")
	require.NoError(t, err)
	require.Len(t, resp.Content, 1)
	assert.Equal(t, anthropic.TypeToolUse, resp.Content[0].Type)
	assert.Equal(t, "tu1", resp.Content[0].ID)
	assert.Equal(t, "get_weather", resp.Content[0].Name)
	assert.Equal(t, map[string]any{"city": "Paris"}, resp.Content[0].Input)
	assert.Equal(t, anthropic.StopToolUse, resp.StopReason)
}

func TestTranslateResponseKeepsNonEmptyTextBeforeToolUse(t *testing.T) {
	out := converseOutput(bedrocktypes.StopReasonToolUse,
		&bedrocktypes.ContentBlockMemberText{Value: "x"},
		&bedrocktypes.ContentBlockMemberToolUse{
			Value: bedrocktypes.ToolUseBlock{
				ToolUseId: aws.String("tu1"),
				Name:      aws.String("get_weather"),
				Input:     document.NewLazyDocument(map[string]any{}),
			},
		},
	)

	resp, err := TranslateResponse(out, "claude-haiku-4-5")
	require.NoError(t, err)
	require.Len(t, resp.Content, 2)
	assert.Equal(t, anthropic.TypeText, resp.Content[0].Type)
	assert.Equal(t, "x", resp.Content[0].Text)
	assert.Equal(t, anthropic.TypeToolUse, resp.Content[1].Type)
}

func TestTranslateResponseUsageAndIdentity(t *testing.T) {
	out := converseOutput(bedrocktypes.StopReasonEndTurn,
		&bedrocktypes.ContentBlockMemberText{Value: "Hi"},
	)
	resp, err := TranslateResponse(out, "claude-haiku-4-5")
	require.NoError(t, err)

	assert.Equal(t, "message", resp.Type)
	assert.Equal(t, anthropic.RoleAssistant, resp.Role)
	assert.Equal(t, "claude-haiku-4-5", resp.Model)
	assert.Regexp(t, `^msg_`, resp.ID)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, 7, resp.Usage.OutputTokens)
	assert.Nil(t, resp.Usage.CacheReadInputTokens)
}

func TestTranslateResponseCacheUsage(t *testing.T) {
	out := converseOutput(bedrocktypes.StopReasonEndTurn,
		&bedrocktypes.ContentBlockMemberText{Value: "Hi"},
	)
	out.Usage.CacheReadInputTokens = aws.Int32(100)
	out.Usage.CacheWriteInputTokens = aws.Int32(5)

	resp, err := TranslateResponse(out, "m")
	require.NoError(t, err)
	require.NotNil(t, resp.Usage.CacheReadInputTokens)
	assert.Equal(t, 100, *resp.Usage.CacheReadInputTokens)
	require.NotNil(t, resp.Usage.CacheCreationInputTokens)
	assert.Equal(t, 5, *resp.Usage.CacheCreationInputTokens)
}
