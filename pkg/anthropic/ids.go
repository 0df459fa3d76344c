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

import (
	"strings"

	"github.com/google/uuid"
)

func hexID(n int) string {
	s := strings.ReplaceAll(uuid.NewString(), "-", "")
	if n < len(s) {
		return s[:n]
	}
	return s
}

// NewMessageID returns a msg_ identifier.
func NewMessageID() string {
	return "msg_" + hexID(24)
}

// NewToolUseID returns a toolu_ identifier.
func NewToolUseID() string {
	return "toolu_" + hexID(24)
}

// NewServerToolUseID returns a srvtoolu_ identifier.
func NewServerToolUseID() string {
	return "srvtoolu_" + hexID(24)
}
