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
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// Docker multiplexed-stream framing: an 8-byte header of
// stream_type(1) | reserved(3) | payload_size_be32(4), then the payload.
const (
	muxHeaderSize = 8
	// maxFrameSize bounds a single frame; anything larger is treated as
	// stream corruption.
	maxFrameSize = 1 << 20

	streamStdout byte = 1
	streamStderr byte = 2
)

// ErrStreamClosed is returned by reads and writes after the stream closes.
var ErrStreamClosed = errors.New("sandbox stream closed")

// Stream is the duplex byte stream attached to a container. Writes go to the
// container's stdin; a pump goroutine parses the multiplexed read side into
// per-stream line channels.
type Stream struct {
	writer io.Writer
	closer io.Closer

	stdout chan string
	stderr chan string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	pumpErr   error
}

// NewStream builds a Stream over a reader (the multiplexed output), a writer
// (stdin), and a closer for the underlying connection. The pump goroutine
// starts immediately.
func NewStream(r io.Reader, w io.Writer, c io.Closer) *Stream {
	s := &Stream{
		writer: w,
		closer: c,
		stdout: make(chan string, 256),
		stderr: make(chan string, 256),
		closed: make(chan struct{}),
	}
	go s.pump(r)
	return s
}

// WriteLine writes one line to the container's stdin.
func (s *Stream) WriteLine(line string) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	default:
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := io.WriteString(s.writer, line+"\n"); err != nil {
		return fmt.Errorf("writing to sandbox stdin: %w", err)
	}
	return nil
}

// Stdout returns the channel of complete stdout lines.
func (s *Stream) Stdout() <-chan string {
	return s.stdout
}

// Stderr returns the channel of complete stderr lines.
func (s *Stream) Stderr() <-chan string {
	return s.stderr
}

// ReadLine returns the next line from the given channel, bounded by the
// timeout and the context.
func (s *Stream) ReadLine(ctx context.Context, ch <-chan string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case line, ok := <-ch:
		if !ok {
			return "", s.closeErr()
		}
		return line, nil
	case <-timer.C:
		return "", fmt.Errorf("sandbox read timed out after %s", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears down the stream and unblocks all readers.
func (s *Stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// Closed reports whether the stream has been torn down.
func (s *Stream) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func (s *Stream) closeErr() error {
	if s.pumpErr != nil {
		return s.pumpErr
	}
	return ErrStreamClosed
}

// pump reads frames header-first and assembles complete newline-terminated
// lines per stream. Partial reads are the norm; io.ReadFull loops until each
// header or payload is complete. Cancellation happens by closing the
// underlying connection, which fails the blocking read.
func (s *Stream) pump(r io.Reader) {
	defer func() {
		close(s.stdout)
		close(s.stderr)
		_ = s.Close()
	}()

	var stdoutBuf, stderrBuf []byte
	header := make([]byte, muxHeaderSize)

	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if !errors.Is(err, io.EOF) && !s.Closed() {
				s.pumpErr = fmt.Errorf("reading frame header: %w", err)
			}
			return
		}
		size := binary.BigEndian.Uint32(header[4:8])
		if size > maxFrameSize {
			s.pumpErr = fmt.Errorf("frame of %d bytes exceeds limit, abandoning stream", size)
			return
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			if !s.Closed() {
				s.pumpErr = fmt.Errorf("reading frame payload: %w", err)
			}
			return
		}

		switch header[0] {
		case streamStdout:
			stdoutBuf = s.deliver(append(stdoutBuf, payload...), s.stdout)
		case streamStderr:
			stderrBuf = s.deliver(append(stderrBuf, payload...), s.stderr)
		default:
			// stream type 0 is stdin echo; ignore
		}
	}
}

// deliver splits complete lines off buf and sends them, returning the
// remaining partial line.
func (s *Stream) deliver(buf []byte, ch chan<- string) []byte {
	for {
		idx := -1
		for i, b := range buf {
			if b == '\n' {
				idx = i
				break
			}
		}
		if idx < 0 {
			return buf
		}
		line := string(buf[:idx])
		buf = buf[idx+1:]
		select {
		case ch <- line:
		case <-s.closed:
			return nil
		}
	}
}
