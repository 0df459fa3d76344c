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

// Streaming event types.
const (
	EventMessageStart      = "message_start"
	EventMessageDelta      = "message_delta"
	EventMessageStop       = "message_stop"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventPing              = "ping"
	EventError             = "error"
)

// Streaming delta types.
const (
	DeltaText      = "text_delta"
	DeltaInputJSON = "input_json_delta"
	DeltaThinking  = "thinking_delta"
	DeltaSignature = "signature_delta"
)

// StreamDelta is the incremental payload of a content_block_delta event.
type StreamDelta struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`
}

// MessageDelta is the payload of a message_delta event.
type MessageDelta struct {
	StopReason   string  `json:"stop_reason,omitempty"`
	StopSequence *string `json:"stop_sequence,omitempty"`
}

// StreamEvent is one Anthropic SSE event. Fields are populated per Type.
type StreamEvent struct {
	Type         string            `json:"type"`
	Message      *MessagesResponse `json:"message,omitempty"`       // message_start
	Index        *int              `json:"index,omitempty"`         // content_block_*
	ContentBlock *ContentBlock     `json:"content_block,omitempty"` // content_block_start
	Delta        any               `json:"delta,omitempty"`         // content_block_delta, message_delta
	Usage        *Usage            `json:"usage,omitempty"`         // message_delta
	Error        *ErrorDetail      `json:"error,omitempty"`         // error
}

// NewContentBlockStart builds a content_block_start event.
func NewContentBlockStart(index int, block ContentBlock) StreamEvent {
	return StreamEvent{Type: EventContentBlockStart, Index: &index, ContentBlock: &block}
}

// NewContentBlockDelta builds a content_block_delta event.
func NewContentBlockDelta(index int, delta StreamDelta) StreamEvent {
	return StreamEvent{Type: EventContentBlockDelta, Index: &index, Delta: delta}
}

// NewContentBlockStop builds a content_block_stop event.
func NewContentBlockStop(index int) StreamEvent {
	return StreamEvent{Type: EventContentBlockStop, Index: &index}
}
