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

import _ "embed"

// RunnerScriptVersion stamps every session with the deployed runner
// generation. Sessions created under a different version are incompatible
// and replaced; there is no in-place runner upgrade. Bump on any change to
// the embedded scripts.
const RunnerScriptVersion = 4

// RunnerPTC is the loop-mode runner for programmatic tool calling.
//
//go:embed runner_ptc.py
var RunnerPTC []byte

// RunnerStandalone is the command-mode runner for standalone code execution.
//
//go:embed runner_standalone.py
var RunnerStandalone []byte
