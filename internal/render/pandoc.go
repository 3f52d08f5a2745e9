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

// Package render turns Markdown into documents by running Pandoc.
package render

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

const (
	// DefaultBinary is the Pandoc executable looked up on PATH.
	DefaultBinary = "pandoc"

	probeTimeout = 10 * time.Second
	waitDelay    = 2 * time.Second
	installHint  = "install Pandoc from https://pandoc.org/installing.html or set the binary path in the config"
)

// Renderer renders a Markdown file into format at output.
type Renderer interface {
	Render(ctx context.Context, input, output, format string, args []string) error
}

// Pandoc is a Renderer backed by the pandoc binary. The first Render (or
// Available) call probes the binary once; the result is kept for the life of
// the value.
type Pandoc struct {
	binary string
	logger *log.Logger
	probe  func() probeResult
}

type probeResult struct {
	version string
	err     error
}

// Option configures a Pandoc renderer.
type Option func(*Pandoc)

// WithBinary sets the pandoc executable name or path.
func WithBinary(path string) Option {
	return func(p *Pandoc) {
		if path != "" {
			p.binary = path
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pandoc) {
		if l != nil {
			p.logger = l
		}
	}
}

// New returns a Pandoc renderer.
func New(opts ...Option) *Pandoc {
	p := &Pandoc{
		binary: DefaultBinary,
		logger: log.New(io.Discard),
	}
	for _, o := range opts {
		o(p)
	}
	p.probe = sync.OnceValue(p.runProbe)
	return p
}

func (p *Pandoc) runProbe() probeResult {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, p.binary, "--version").Output()
	if err != nil {
		p.logger.Debug("pandoc probe failed", "binary", p.binary, "err", err)
		return probeResult{err: fault.Wrap(fault.RendererNotInstalled, err, "pandoc is not available").WithHint(installHint)}
	}
	version, _, _ := strings.Cut(string(out), "\n")
	version = strings.TrimSpace(version)
	p.logger.Debug("pandoc available", "binary", p.binary, "version", version)
	return probeResult{version: version}
}

// Available reports whether pandoc could be run. The check happens once.
func (p *Pandoc) Available() error {
	return p.probe().err
}

// Version returns the first line of `pandoc --version`, or "" when pandoc is
// not available.
func (p *Pandoc) Version() string {
	return p.probe().version
}

// Render runs pandoc to convert the Markdown file input into format, writing
// output. Arguments in args are placed before the input path.
func (p *Pandoc) Render(ctx context.Context, input, output, format string, args []string) error {
	if err := p.Available(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fault.Wrap(fault.Internal, err, "create output directory")
	}

	argv := []string{"-f", "markdown", "-t", format, "-o", output}
	argv = append(argv, args...)
	argv = append(argv, input)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.binary, argv...)
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	p.logger.Debug("pandoc run", "format", format, "output", output, "args", args, "elapsed", time.Since(start), "err", err)
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fault.Wrap(fault.Timeout, ctxErr, "pandoc did not finish rendering %s", filepath.Base(input))
		}
		return fault.Wrap(fault.RenderFailed, ctxErr, "rendering %s was canceled", filepath.Base(input))
	}

	detail := strings.TrimSpace(stderr.String())
	if fault.ClassifyExternal("pandoc "+err.Error()) == fault.RendererNotInstalled {
		return fault.Wrap(fault.RendererNotInstalled, err, "pandoc could not be started").WithHint(installHint)
	}
	msg := "pandoc failed to render " + filepath.Base(input) + " as " + format
	if detail != "" {
		msg += ": " + detail
	}
	return fault.Wrap(fault.RenderFailed, err, "%s", msg).
		WithHint("pandoc rejected the input or arguments; check the Markdown and any --pandoc-arg values")
}
