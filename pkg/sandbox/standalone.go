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
	"time"
)

// RunCommand executes one standalone command on a session and waits for its
// typed result. Standalone executions are synchronous: one command, one
// result line.
func (e *Executor) RunCommand(ctx context.Context, sess *Session, cmd StandaloneCommand, timeout time.Duration) (*StandaloneResult, error) {
	if timeout == 0 {
		timeout = e.ExecutionTimeout
	}

	frame, err := EncodeStandaloneCommand(cmd)
	if err != nil {
		return nil, err
	}
	if err := sess.Stream.WriteLine(frame); err != nil {
		return nil, fmt.Errorf("submitting command to sandbox: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("sandbox command timed out after %s", timeout)
		}
		line, err := sess.Stream.ReadLine(ctx, sess.Stream.Stdout(), remaining)
		if err != nil {
			return nil, fmt.Errorf("reading command result: %w", err)
		}
		if res, ok := ParseStandaloneResult(line); ok {
			return res, nil
		}
	}
}
