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
package modelmap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDefaultTable(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "us.anthropic.claude-haiku-4-5-20251001-v1:0", r.Resolve("claude-haiku-4-5"))
}

func TestResolvePassthrough(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "meta.llama3-70b-instruct-v1:0", r.Resolve("meta.llama3-70b-instruct-v1:0"))
}

func TestResolveOverridesWinOverDefaults(t *testing.T) {
	r, err := New(Config{Overrides: map[string]string{
		"claude-haiku-4-5": "eu.anthropic.claude-haiku-4-5-20251001-v1:0",
	}})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "eu.anthropic.claude-haiku-4-5-20251001-v1:0", r.Resolve("claude-haiku-4-5"))
}

func TestResolveCaches(t *testing.T) {
	r, err := New(Config{})
	require.NoError(t, err)
	defer r.Close()

	first := r.Resolve("claude-haiku-4-5")
	r.mu.Lock()
	r.overrides["claude-haiku-4-5"] = "changed"
	r.mu.Unlock()
	assert.Equal(t, first, r.Resolve("claude-haiku-4-5"))
}

func TestOverrideFileHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(path, []byte("claude-haiku-4-5: first-id\n"), 0o644))

	r, err := New(Config{OverridePath: path})
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "first-id", r.Resolve("claude-haiku-4-5"))

	require.NoError(t, os.WriteFile(path, []byte("claude-haiku-4-5: second-id\n"), 0o644))
	require.Eventually(t, func() bool {
		return r.Resolve("claude-haiku-4-5") == "second-id"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestIsClaudeFamily(t *testing.T) {
	assert.True(t, IsClaudeFamily("us.anthropic.claude-haiku-4-5-20251001-v1:0"))
	assert.True(t, IsClaudeFamily("claude-sonnet-4-5"))
	assert.False(t, IsClaudeFamily("meta.llama3-70b-instruct-v1:0"))
	assert.False(t, IsClaudeFamily("amazon.titan-text-express-v1"))
}
