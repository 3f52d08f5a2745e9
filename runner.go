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

package docbridge

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/plan"
	"github.com/nicholasgasior/docbridge/internal/render"
)

// Runner executes conversion plans.
type Runner struct {
	Engine   *Engine
	Renderer render.Renderer
	// Force allows replacing an existing output file.
	Force   bool
	Extract ExtractOptions
	Logger  *log.Logger
}

// Result describes a finished conversion.
type Result struct {
	Direction plan.Direction
	Input     string
	Output    string
	Format    string
	Bytes     int64
	Elapsed   time.Duration
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return log.New(io.Discard)
	}
	return r.Logger
}

// Execute runs p: inbound plans extract the input and write the formatted
// result, outbound plans hand the Markdown input to the renderer.
func (r *Runner) Execute(ctx context.Context, p *plan.Plan) (*Result, error) {
	start := time.Now()
	if err := r.checkOutput(p.Output); err != nil {
		return nil, err
	}

	res := &Result{Direction: p.Direction, Input: p.Input, Output: p.Output, Format: p.Format}
	switch p.Direction {
	case plan.Inbound:
		ex, err := r.Engine.ExtractFile(ctx, p.Input, r.Extract)
		if err != nil {
			return nil, err
		}
		n, err := r.write(ex, p.Format, p.Output)
		if err != nil {
			return nil, err
		}
		res.Bytes = n
	case plan.Outbound:
		if r.Renderer == nil {
			return nil, fault.New(fault.RendererNotInstalled, "no renderer is configured")
		}
		n, err := r.render(ctx, p)
		if err != nil {
			return nil, err
		}
		res.Bytes = n
	default:
		return nil, fault.New(fault.Internal, "plan has no direction")
	}

	res.Elapsed = time.Since(start)
	r.logger().Info("converted", "input", p.Input, "output", p.Output, "format", p.Format, "bytes", res.Bytes, "elapsed", res.Elapsed)
	return res, nil
}

// ExecuteURL downloads rawURL, extracts it and writes the result into
// outputDir (the working directory when empty). The output is named after
// the last path segment of the URL, or its host.
func (r *Runner) ExecuteURL(ctx context.Context, rawURL, format, outputDir string) (*Result, error) {
	start := time.Now()
	if plan.IsOutbound(format) {
		return nil, fault.New(fault.InvalidDirection, "cannot render a URL as %s", format).
			WithHint("outbound formats accept only local Markdown files")
	}
	if outputDir == "" {
		outputDir = "."
	}
	output, err := plan.ResolveOutputPath(URLBaseName(rawURL), format, outputDir)
	if err != nil {
		return nil, err
	}
	if output, err = filepath.Abs(output); err != nil {
		return nil, fault.Wrap(fault.Internal, err, "resolve output path")
	}
	if err := r.checkOutput(output); err != nil {
		return nil, err
	}

	ex, err := r.Engine.ExtractURL(ctx, rawURL, r.Extract)
	if err != nil {
		return nil, err
	}
	n, err := r.write(ex, format, output)
	if err != nil {
		return nil, err
	}
	res := &Result{Direction: plan.Inbound, Input: rawURL, Output: output, Format: format, Bytes: n, Elapsed: time.Since(start)}
	r.logger().Info("converted", "url", rawURL, "output", output, "format", format, "bytes", n, "elapsed", res.Elapsed)
	return res, nil
}

// URLBaseName names the document at rawURL: the last path segment, else the
// host, else "download".
func URLBaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "download"
	}
	if base := path.Base(u.Path); base != "/" && base != "." && base != "" {
		return base
	}
	if host := strings.ReplaceAll(u.Hostname(), ":", "_"); host != "" {
		return host + ".html"
	}
	return "download"
}

func (r *Runner) checkOutput(output string) error {
	if r.Force {
		return nil
	}
	if _, err := os.Stat(output); err == nil {
		return outputExists(output)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fault.Wrap(fault.Internal, err, "check output %s", output)
	}
	return nil
}

func outputExists(output string) error {
	return fault.New(fault.OutputExists, "%s already exists", output).
		WithHint("pass --force to overwrite it")
}

func (r *Runner) write(ex *Extraction, format, output string) (int64, error) {
	data, err := FormatExtraction(ex, format)
	if err != nil {
		return 0, err
	}
	if err := writeFileAtomic(output, data, r.Force); err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// render has the renderer write into a temporary file next to the output,
// then publishes it the same way write does.
func (r *Runner) render(ctx context.Context, p *plan.Plan) (int64, error) {
	dir := filepath.Dir(p.Output)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fault.Wrap(fault.Internal, err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".docbridge-*"+filepath.Ext(p.Output))
	if err != nil {
		return 0, fault.Wrap(fault.Internal, err, "create temporary output")
	}
	tmp.Close()
	defer os.Remove(tmp.Name())

	if err := r.Renderer.Render(ctx, p.Input, tmp.Name(), p.Format, p.PandocArgs); err != nil {
		return 0, err
	}
	fi, err := os.Stat(tmp.Name())
	if err != nil {
		return 0, fault.Wrap(fault.RenderFailed, err, "renderer produced no output")
	}
	if err := publish(tmp.Name(), p.Output, r.Force); err != nil {
		return 0, err
	}
	return fi.Size(), nil
}

// writeFileAtomic writes data to a temporary file next to path and publishes
// it, so readers never see a partial file.
func writeFileAtomic(path string, data []byte, overwrite bool) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fault.Wrap(fault.Internal, err, "create %s", dir)
	}
	tmp, err := os.CreateTemp(dir, ".docbridge-*")
	if err != nil {
		return fault.Wrap(fault.Internal, err, "write %s", path)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fault.Wrap(fault.Internal, err, "write %s", path)
	}
	if err := tmp.Close(); err != nil {
		return fault.Wrap(fault.Internal, err, "write %s", path)
	}
	return publish(tmp.Name(), path, overwrite)
}

// publish moves the finished file tmp to path. Without overwrite it hard
// links instead of renaming, which fails when path exists, so two writers
// racing for one output cannot replace each other's result. The caller
// removes tmp.
func publish(tmp, path string, overwrite bool) error {
	if err := os.Chmod(tmp, 0o644); err != nil {
		return fault.Wrap(fault.Internal, err, "write %s", path)
	}
	if overwrite {
		if err := os.Rename(tmp, path); err != nil {
			return fault.Wrap(fault.Internal, err, "write %s", path)
		}
		return nil
	}
	if err := os.Link(tmp, path); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return outputExists(path)
		}
		return fault.Wrap(fault.Internal, err, "write %s", path)
	}
	return nil
}
