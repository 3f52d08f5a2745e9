// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

package render

import (
	"context"
	"strings"
)

// SandboxArg makes pandoc refuse to read local files or fetch URLs that the
// input references, such as images embedded into docx and pptx output.
const SandboxArg = "--sandbox"

// Sandboxed wraps r so every render runs with SandboxArg. Any sandbox setting
// in the caller's arguments is dropped, so it cannot be switched off. A nil r
// stays nil.
func Sandboxed(r Renderer) Renderer {
	if r == nil {
		return nil
	}
	if s, ok := r.(sandboxed); ok {
		return s
	}
	return sandboxed{r}
}

type sandboxed struct {
	Renderer
}

func (s sandboxed) Render(ctx context.Context, input, output, format string, args []string) error {
	kept := make([]string, 0, len(args)+1)
	for _, a := range args {
		if a == SandboxArg || strings.HasPrefix(a, SandboxArg+"=") {
			continue
		}
		kept = append(kept, a)
	}
	return s.Renderer.Render(ctx, input, output, format, append(kept, SandboxArg))
}

// Available forwards to the wrapped renderer when it can report availability.
func (s sandboxed) Available() error {
	if a, ok := s.Renderer.(interface{ Available() error }); ok {
		return a.Available()
	}
	return nil
}
