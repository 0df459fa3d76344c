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
	"github.com/aws/aws-sdk-go-v2/aws"
	bedrocktypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// StreamTranslator converts ConverseStream events into Anthropic SSE events.
//
// Two upstream quirks drive the state kept here. First, some model variants
// skip contentBlockStart entirely; the translator tracks announced indices
// and synthesizes a start before the first delta of any unannounced index.
// Second, usage metadata arrives after messageStop, so message_delta and
// message_stop are withheld until metadata is seen (or the stream ends).
//
// Not safe for concurrent use; build one per stream.
type StreamTranslator struct {
	model    string
	started  map[int]bool
	usage    anthropic.Usage
	stopSeen bool
	stopSent bool
	stop     string
}

// NewStreamTranslator builds a translator for one stream. model is the
// caller-facing model id echoed in message_start.
func NewStreamTranslator(model string) *StreamTranslator {
	return &StreamTranslator{model: model, started: map[int]bool{}}
}

// Translate converts one upstream event into zero or more Anthropic events.
func (s *StreamTranslator) Translate(event bedrocktypes.ConverseStreamOutput) []anthropic.StreamEvent {
	switch e := event.(type) {
	case *bedrocktypes.ConverseStreamOutputMemberMessageStart:
		return []anthropic.StreamEvent{{
			Type: anthropic.EventMessageStart,
			Message: &anthropic.MessagesResponse{
				ID:      anthropic.NewMessageID(),
				Type:    "message",
				Role:    anthropic.RoleAssistant,
				Model:   s.model,
				Content: []anthropic.ContentBlock{},
				Usage:   anthropic.Usage{},
			},
		}}

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockStart:
		idx := int(aws.ToInt32(e.Value.ContentBlockIndex))
		s.started[idx] = true
		block := anthropic.NewTextBlock("")
		if tu, ok := e.Value.Start.(*bedrocktypes.ContentBlockStartMemberToolUse); ok {
			block = anthropic.ContentBlock{
				Type:  anthropic.TypeToolUse,
				ID:    aws.ToString(tu.Value.ToolUseId),
				Name:  aws.ToString(tu.Value.Name),
				Input: map[string]any{},
			}
		}
		return []anthropic.StreamEvent{anthropic.NewContentBlockStart(idx, block)}

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockDelta:
		idx := int(aws.ToInt32(e.Value.ContentBlockIndex))
		var out []anthropic.StreamEvent

		delta, thinking := translateDelta(e.Value.Delta)
		if delta == nil {
			return nil
		}
		if !s.started[idx] {
			s.started[idx] = true
			block := anthropic.NewTextBlock("")
			if thinking {
				block = anthropic.ContentBlock{Type: anthropic.TypeThinking}
			}
			out = append(out, anthropic.NewContentBlockStart(idx, block))
		}
		out = append(out, anthropic.NewContentBlockDelta(idx, *delta))
		return out

	case *bedrocktypes.ConverseStreamOutputMemberContentBlockStop:
		idx := int(aws.ToInt32(e.Value.ContentBlockIndex))
		return []anthropic.StreamEvent{anthropic.NewContentBlockStop(idx)}

	case *bedrocktypes.ConverseStreamOutputMemberMessageStop:
		// Held back until metadata delivers the real output token count.
		s.stopSeen = true
		s.stop = MapStopReason(e.Value.StopReason)
		return nil

	case *bedrocktypes.ConverseStreamOutputMemberMetadata:
		if e.Value.Usage != nil {
			s.usage = translateUsage(e.Value.Usage)
		}
		if s.stopSeen {
			return s.emitStop()
		}
		return nil

	default:
		return nil
	}
}

// Finish flushes the deferred terminal events. Call once after the upstream
// stream is exhausted; it is a no-op if metadata already triggered emission.
func (s *StreamTranslator) Finish() []anthropic.StreamEvent {
	if s.stopSent || !s.stopSeen {
		return nil
	}
	return s.emitStop()
}

// Usage returns the merged usage for the call, valid after the stream ends.
func (s *StreamTranslator) Usage() anthropic.Usage {
	return s.usage
}

func (s *StreamTranslator) emitStop() []anthropic.StreamEvent {
	s.stopSent = true
	usage := s.usage
	return []anthropic.StreamEvent{
		{
			Type:  anthropic.EventMessageDelta,
			Delta: anthropic.MessageDelta{StopReason: s.stop},
			Usage: &usage,
		},
		{Type: anthropic.EventMessageStop},
	}
}

// translateDelta maps a Converse block delta to an Anthropic stream delta.
// The second return reports whether the delta carries reasoning, which
// decides the synthesized start type.
func translateDelta(delta bedrocktypes.ContentBlockDelta) (*anthropic.StreamDelta, bool) {
	switch d := delta.(type) {
	case *bedrocktypes.ContentBlockDeltaMemberText:
		return &anthropic.StreamDelta{Type: anthropic.DeltaText, Text: d.Value}, false

	case *bedrocktypes.ContentBlockDeltaMemberToolUse:
		return &anthropic.StreamDelta{
			Type:        anthropic.DeltaInputJSON,
			PartialJSON: aws.ToString(d.Value.Input),
		}, false

	case *bedrocktypes.ContentBlockDeltaMemberReasoningContent:
		switch rc := d.Value.(type) {
		case *bedrocktypes.ReasoningContentBlockDeltaMemberText:
			return &anthropic.StreamDelta{Type: anthropic.DeltaThinking, Thinking: rc.Value}, true
		case *bedrocktypes.ReasoningContentBlockDeltaMemberSignature:
			return &anthropic.StreamDelta{Type: anthropic.DeltaSignature, Signature: rc.Value}, true
		default:
			return nil, true
		}

	default:
		return nil, false
	}
}
