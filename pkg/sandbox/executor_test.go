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
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRunner simulates the in-container runner: it reads stdin lines and
// writes multiplexed frames the way Docker would.
type fakeRunner struct {
	t     *testing.T
	stdin <-chan string
	mux   io.Writer
}

func newFakeSession(t *testing.T) (*Session, *fakeRunner) {
	t.Helper()
	muxR, muxW := io.Pipe()
	stdinR, stdinW := io.Pipe()
	stream := NewStream(muxR, stdinW, muxR)
	t.Cleanup(func() {
		_ = stream.Close()
		_ = muxW.Close()
	})
	// Drain stdin concurrently: Executor.Run writes the code frame through
	// the unbuffered io.Pipe before returning, so the reader must already be
	// consuming or Run blocks forever.
	lines := make(chan string, 256)
	go func() {
		br := bufio.NewReader(stdinR)
		for {
			line, err := br.ReadString('\n')
			if line != "" {
				lines <- line
			}
			if err != nil {
				close(lines)
				return
			}
		}
	}()
	sess := &Session{ID: "container_test00000000", Stream: stream}
	return sess, &fakeRunner{t: t, stdin: lines, mux: muxW}
}

// readLine returns the next stdin line (newline included), mirroring
// bufio.Reader.ReadString('\n') over the drained channel.
func (r *fakeRunner) readLine() (string, error) {
	select {
	case line, ok := <-r.stdin:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-time.After(5 * time.Second):
		return "", fmt.Errorf("timed out waiting for stdin line")
	}
}

func (r *fakeRunner) emit(stream byte, line string) {
	payload := []byte(line + "\n")
	header := make([]byte, muxHeaderSize)
	header[0] = stream
	binary.BigEndian.PutUint32(header[4:], uint32(len(payload)))
	_, err := r.mux.Write(append(header, payload...))
	require.NoError(r.t, err)
}

func (r *fakeRunner) emitCall(callID, tool string, args map[string]any) {
	raw, err := json.Marshal(ToolCall{CallID: callID, ToolName: tool, Arguments: args})
	require.NoError(r.t, err)
	r.emit(streamStderr, MarkerToolCall+string(raw)+MarkerEndCall)
}

func (r *fakeRunner) emitOutput(out CodeOutput) {
	raw, err := json.Marshal(out)
	require.NoError(r.t, err)
	r.emit(streamStdout, MarkerOutput+string(raw)+MarkerEndOutput)
}

// awaitCode consumes the framed code block from stdin and returns its
// payload.
func (r *fakeRunner) awaitCode() codePayload {
	var lines []string
	inBlock := false
	for {
		line, err := r.readLine()
		require.NoError(r.t, err)
		line = strings.TrimSuffix(line, "\n")
		switch {
		case line == MarkerCodeStart:
			inBlock = true
		case line == MarkerCodeEnd:
			var p codePayload
			require.NoError(r.t, json.Unmarshal([]byte(strings.Join(lines, "\n")), &p))
			return p
		case inBlock:
			lines = append(lines, line)
		}
	}
}

// awaitResult consumes one tool-result line from stdin.
func (r *fakeRunner) awaitResult() ToolResult {
	for {
		line, err := r.readLine()
		require.NoError(r.t, err)
		payload, ok := between(strings.TrimSuffix(line, "\n"), MarkerToolRes, MarkerEndRes)
		if !ok {
			continue
		}
		var res ToolResult
		require.NoError(r.t, json.Unmarshal([]byte(payload), &res))
		return res
	}
}

func nextEvent(t *testing.T, x *Execution) Event {
	t.Helper()
	select {
	case ev := <-x.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event within deadline")
		return Event{}
	}
}

func TestExecutorSingleToolCall(t *testing.T) {
	sess, runner := newFakeSession(t)
	exec := NewExecutor(50*time.Millisecond, 5*time.Second, nil)

	x, err := exec.Run(sess, "print(await get_weather(city='Paris'))", []string{"get_weather"})
	require.NoError(t, err)

	payload := runner.awaitCode()
	assert.Equal(t, []string{"get_weather"}, payload.Tools)
	assert.Contains(t, payload.Code, "get_weather")

	runner.emitCall("call1", "get_weather", map[string]any{"city": "Paris"})

	ev := nextEvent(t, x)
	require.NotNil(t, ev.Call)
	assert.Equal(t, "call1", ev.Call.CallID)
	assert.Equal(t, "get_weather", ev.Call.ToolName)

	// Feed the result back; the runner then finishes.
	require.NoError(t, x.Submit([]ToolResult{{CallID: "call1", Result: "18°C"}}))
	res := runner.awaitResult()
	assert.Equal(t, "call1", res.CallID)
	assert.Equal(t, "18°C", res.Result)

	runner.emitOutput(CodeOutput{Success: true, Output: "18°C\n"})
	ev = nextEvent(t, x)
	require.NotNil(t, ev.Result)
	assert.True(t, ev.Result.Success)
	assert.Equal(t, "18°C\n", ev.Result.Output)
}

func TestExecutorBatchesParallelCalls(t *testing.T) {
	sess, runner := newFakeSession(t)
	exec := NewExecutor(100*time.Millisecond, 5*time.Second, nil)

	x, err := exec.Run(sess, "await asyncio.gather(...)", []string{"get_item"})
	require.NoError(t, err)
	runner.awaitCode()

	// Three parallel calls land within the batching window.
	for i := 1; i <= 3; i++ {
		runner.emitCall(fmt.Sprintf("call%d", i), "get_item", map[string]any{"sku": float64(i)})
	}

	ev := nextEvent(t, x)
	require.Len(t, ev.Batch, 3)
	ids := []string{ev.Batch[0].CallID, ev.Batch[1].CallID, ev.Batch[2].CallID}
	assert.ElementsMatch(t, []string{"call1", "call2", "call3"}, ids)
}

func TestExecutorParallelDemux(t *testing.T) {
	sess, runner := newFakeSession(t)
	exec := NewExecutor(50*time.Millisecond, 5*time.Second, nil)

	x, err := exec.Run(sess, "gather", []string{"get_item"})
	require.NoError(t, err)
	runner.awaitCode()

	runner.emitCall("a", "get_item", map[string]any{"sku": float64(1)})
	runner.emitCall("b", "get_item", map[string]any{"sku": float64(2)})
	ev := nextEvent(t, x)
	require.Len(t, ev.Batch, 2)

	// Results keyed by call id reach the runner in submission order, each
	// under its own id.
	require.NoError(t, x.Submit([]ToolResult{
		{CallID: "b", Result: "two"},
		{CallID: "a", Result: "one"},
	}))
	first := runner.awaitResult()
	second := runner.awaitResult()
	byID := map[string]any{first.CallID: first.Result, second.CallID: second.Result}
	assert.Equal(t, map[string]any{"a": "one", "b": "two"}, byID)

	runner.emitOutput(CodeOutput{Success: true, Output: "one two\n"})
	ev = nextEvent(t, x)
	require.NotNil(t, ev.Result)
}

func TestExecutorImmediateOutput(t *testing.T) {
	sess, runner := newFakeSession(t)
	exec := NewExecutor(50*time.Millisecond, 5*time.Second, nil)

	x, err := exec.Run(sess, "print('hi')", nil)
	require.NoError(t, err)
	runner.awaitCode()

	runner.emitOutput(CodeOutput{Success: true, Output: "hi\n"})
	ev := nextEvent(t, x)
	require.NotNil(t, ev.Result)
	assert.Equal(t, "hi\n", ev.Result.Output)

	_, open := <-x.Events()
	assert.False(t, open, "events channel closes after terminal result")
}

func TestExecutorTimeout(t *testing.T) {
	sess, runner := newFakeSession(t)
	exec := NewExecutor(20*time.Millisecond, 50*time.Millisecond, nil)

	x, err := exec.Run(sess, "while True: pass", nil)
	require.NoError(t, err)
	runner.awaitCode()

	ev := nextEvent(t, x)
	require.Error(t, ev.Err)
	assert.Contains(t, ev.Err.Error(), "aborted")
}

func TestExecutorRunCommand(t *testing.T) {
	sess, runner := newFakeSession(t)
	exec := NewExecutor(0, 0, nil)

	go func() {
		line, err := runner.readLine()
		require.NoError(t, err)
		assert.Contains(t, line, MarkerStandaloneCmd)
		raw, _ := json.Marshal(StandaloneResult{Type: "bash_result", Stdout: "3\n", ReturnCode: 0})
		runner.emit(streamStdout, MarkerStandaloneRes+string(raw))
	}()

	res, err := exec.RunCommand(context.Background(), sess, StandaloneCommand{
		Type:  "bash",
		Input: map[string]any{"command": "cat /tmp/n"},
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "3\n", res.Stdout)
	assert.Equal(t, 0, res.ReturnCode)
}
