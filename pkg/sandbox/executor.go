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
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Executor defaults.
const (
	DefaultBatchWindow      = 100 * time.Millisecond
	DefaultExecutionTimeout = 300 * time.Second
)

// Event is one emission of an execution generator. Exactly one field is set:
// a single tool call, a parallel batch, the terminal result, or an error.
type Event struct {
	Call   *ToolCall
	Batch  []*ToolCall
	Result *CodeOutput
	Err    error
}

// Execution is a running code block inside a session. Its goroutine persists
// across HTTP requests: a suspended execution keeps reading the sandbox
// stream while the tool result travels through the client.
type Execution struct {
	session *Session
	events  chan Event
	cancel  context.CancelFunc
	done    chan struct{}
}

// Executor drives code blocks through sandbox sessions.
type Executor struct {
	// BatchWindow is how long the generator collects parallel tool calls
	// after the first one before emitting a batch.
	BatchWindow time.Duration
	// ExecutionTimeout caps one code block from submission to terminal
	// output.
	ExecutionTimeout time.Duration
	Logger           *zap.Logger
}

// NewExecutor builds an Executor with defaults applied.
func NewExecutor(batchWindow, executionTimeout time.Duration, logger *zap.Logger) *Executor {
	if batchWindow == 0 {
		batchWindow = DefaultBatchWindow
	}
	if executionTimeout == 0 {
		executionTimeout = DefaultExecutionTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{BatchWindow: batchWindow, ExecutionTimeout: executionTimeout, Logger: logger}
}

// Run ships a code block into the session and returns the live execution.
// The caller consumes Events() and feeds tool results back via Submit.
func (e *Executor) Run(sess *Session, code string, toolNames []string) (*Execution, error) {
	frame, err := EncodeCode(code, toolNames)
	if err != nil {
		return nil, err
	}
	for _, line := range strings.Split(frame, "\n") {
		if err := sess.Stream.WriteLine(line); err != nil {
			return nil, fmt.Errorf("submitting code to sandbox: %w", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.ExecutionTimeout)
	exec := &Execution{
		session: sess,
		events:  make(chan Event, 8),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go e.loop(ctx, exec)
	return exec, nil
}

// Events returns the generator's outbound channel. It closes after the
// terminal Result or Err event.
func (x *Execution) Events() <-chan Event {
	return x.events
}

// Submit feeds tool results to the code waiting inside the sandbox.
func (x *Execution) Submit(results []ToolResult) error {
	for _, res := range results {
		line, err := EncodeToolResult(res)
		if err != nil {
			return err
		}
		if err := x.session.Stream.WriteLine(line); err != nil {
			return fmt.Errorf("submitting tool result: %w", err)
		}
	}
	return nil
}

// Abort cancels the execution. The generator emits an error event if it has
// not already terminated.
func (x *Execution) Abort() {
	x.cancel()
	<-x.done
}

// loop is the generator body. It multiplexes the session's stdout and stderr
// channels: tool calls arrive on stderr and are batched within BatchWindow;
// the terminal output arrives on stdout.
func (e *Executor) loop(ctx context.Context, x *Execution) {
	defer close(x.done)
	defer close(x.events)
	defer x.cancel()

	stream := x.session.Stream
	for {
		select {
		case <-ctx.Done():
			x.events <- Event{Err: fmt.Errorf("execution aborted: %w", ctx.Err())}
			return

		case line, ok := <-stream.Stdout():
			if !ok {
				x.events <- Event{Err: fmt.Errorf("sandbox stream closed during execution")}
				return
			}
			if out, ok := ParseOutput(line); ok {
				x.events <- Event{Result: out}
				return
			}

		case line, ok := <-stream.Stderr():
			if !ok {
				x.events <- Event{Err: fmt.Errorf("sandbox stream closed during execution")}
				return
			}
			call, ok := ParseToolCall(line)
			if !ok {
				continue
			}
			batch, result, err := e.collectBatch(ctx, x, call)
			if err != nil {
				x.events <- Event{Err: err}
				return
			}
			if len(batch) == 1 {
				x.events <- Event{Call: batch[0]}
			} else {
				x.events <- Event{Batch: batch}
			}
			// A terminal output can race the batching window when the code
			// finishes immediately after its last call.
			if result != nil {
				x.events <- Event{Result: result}
				return
			}
		}
	}
}

// collectBatch gathers parallel tool calls emitted within the batching
// window after the first call. It also watches stdout so a terminal output
// seen during the window is not lost.
func (e *Executor) collectBatch(ctx context.Context, x *Execution, first *ToolCall) ([]*ToolCall, *CodeOutput, error) {
	batch := []*ToolCall{first}
	stream := x.session.Stream
	timer := time.NewTimer(e.BatchWindow)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return batch, nil, nil
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("execution aborted: %w", ctx.Err())
		case line, ok := <-stream.Stderr():
			if !ok {
				return nil, nil, fmt.Errorf("sandbox stream closed during execution")
			}
			if call, ok := ParseToolCall(line); ok {
				batch = append(batch, call)
			}
		case line, ok := <-stream.Stdout():
			if !ok {
				return nil, nil, fmt.Errorf("sandbox stream closed during execution")
			}
			if out, ok := ParseOutput(line); ok {
				return batch, out, nil
			}
		}
	}
}
