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
package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teradata-labs/heddle/pkg/anthropic"
)

// sseWriter emits Anthropic SSE frames, flushing after each event.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) *sseWriter {
	flusher, _ := w.(http.Flusher)
	return &sseWriter{w: w, flusher: flusher}
}

func (s *sseWriter) writeHeaders() {
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.started = true
}

func (s *sseWriter) write(ev anthropic.StreamEvent) error {
	if !s.started {
		s.writeHeaders()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// writeError emits a terminal SSE error frame.
func (s *sseWriter) writeError(errType, message string) error {
	if !s.started {
		s.writeHeaders()
	}
	data, err := json.Marshal(anthropic.NewErrorResponse(errType, message))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: error\ndata: %s\n\n", data); err != nil {
		return err
	}
	if s.flusher != nil {
		s.flusher.Flush()
	}
	return nil
}

// synthesizeStream replays a completed response as the canonical SSE event
// sequence. Orchestrated responses are produced whole, so streaming them is
// a framing exercise, not incremental generation.
func synthesizeStream(resp *anthropic.MessagesResponse) []anthropic.StreamEvent {
	start := *resp
	start.Content = []anthropic.ContentBlock{}
	start.StopReason = ""
	start.Usage = anthropic.Usage{InputTokens: resp.Usage.InputTokens}

	events := []anthropic.StreamEvent{{
		Type:    anthropic.EventMessageStart,
		Message: &start,
	}}

	for i, block := range resp.Content {
		switch block.Type {
		case anthropic.TypeText:
			events = append(events,
				anthropic.NewContentBlockStart(i, anthropic.NewTextBlock("")),
				anthropic.NewContentBlockDelta(i, anthropic.StreamDelta{
					Type: anthropic.DeltaText,
					Text: block.Text,
				}),
				anthropic.NewContentBlockStop(i))
		case anthropic.TypeThinking:
			events = append(events,
				anthropic.NewContentBlockStart(i, anthropic.ContentBlock{Type: anthropic.TypeThinking}),
				anthropic.NewContentBlockDelta(i, anthropic.StreamDelta{
					Type:     anthropic.DeltaThinking,
					Thinking: block.Thinking,
				}),
				anthropic.NewContentBlockStop(i))
		default:
			// tool_use, server_tool_use and result blocks carry their full
			// payload in the start event.
			events = append(events,
				anthropic.NewContentBlockStart(i, block),
				anthropic.NewContentBlockStop(i))
		}
	}

	usage := resp.Usage
	events = append(events,
		anthropic.StreamEvent{
			Type:  anthropic.EventMessageDelta,
			Delta: anthropic.MessageDelta{StopReason: resp.StopReason},
			Usage: &usage,
		},
		anthropic.StreamEvent{Type: anthropic.EventMessageStop})
	return events
}
