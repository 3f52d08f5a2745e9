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

// Package mcpserver exposes conversions as Model Context Protocol tools.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nicholasgasior/docbridge"
	"github.com/nicholasgasior/docbridge/internal/config"
	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/plan"
	"github.com/nicholasgasior/docbridge/internal/render"
)

// Server holds the tool implementations.
type Server struct {
	engine   *docbridge.Engine
	renderer render.Renderer
	cfg      *config.Config
	logger   *log.Logger
	roots    []string
	version  string
}

// Option configures a Server.
type Option func(*Server)

// WithRoots restricts convert_file and render_markdown to paths under the
// given directories.
func WithRoots(dirs ...string) Option {
	return func(s *Server) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				s.roots = append(s.roots, resolveLinks(abs))
			}
		}
	}
}

// WithVersion sets the version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a Server. A nil renderer makes render_markdown report that
// rendering is unavailable.
func New(engine *docbridge.Engine, renderer render.Renderer, cfg *config.Config, logger *log.Logger, opts ...Option) *Server {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	s := &Server{engine: engine, renderer: render.Sandboxed(renderer), cfg: cfg, logger: logger, version: "dev"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MCP builds the protocol server with every tool registered.
func (s *Server) MCP() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "docbridge", Version: s.version}, nil)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "convert_url",
		Description: "Download a public http(s) URL and convert the document to Markdown, plain text, JSON or YAML.",
		Annotations: &mcp.ToolAnnotations{Title: "Convert URL", ReadOnlyHint: true},
	}, s.convertURL)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "convert_file",
		Description: "Convert a local document (PDF, Office, HTML, CSV, feeds, notebooks, images) to Markdown, plain text, JSON or YAML.",
		Annotations: &mcp.ToolAnnotations{Title: "Convert file", ReadOnlyHint: true},
	}, s.convertFile)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "render_markdown",
		Description: "Render Markdown into a DOCX, PPTX or HTML file with Pandoc.",
		Annotations: &mcp.ToolAnnotations{Title: "Render Markdown"},
	}, s.renderMarkdown)
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_formats",
		Description: "List output formats, accepted input extensions and configured render templates.",
		Annotations: &mcp.ToolAnnotations{Title: "List formats", ReadOnlyHint: true},
	}, s.listFormats)
	return srv
}

// Run serves the tools over stdin and stdout until ctx is done or the client
// disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("serving MCP on stdio", "version", s.version)
	return s.MCP().Run(ctx, &mcp.StdioTransport{})
}

// ConvertURLInput is the argument of the convert_url tool.
type ConvertURLInput struct {
	URL    string `json:"url" jsonschema:"http or https URL of the document"`
	Format string `json:"format,omitempty" jsonschema:"md, text, json or yaml; defaults to md"`
	OCR    bool   `json:"ocr,omitempty" jsonschema:"run OCR on images"`
}

// ConvertFileInput is the argument of the convert_file tool. Path must lie
// inside a configured root when roots are set.
type ConvertFileInput struct {
	Path   string `json:"path" jsonschema:"path of the document on the local disk"`
	Format string `json:"format,omitempty" jsonschema:"md, text, json or yaml; defaults to md"`
	OCR    bool   `json:"ocr,omitempty" jsonschema:"run OCR on images"`
}

// RenderInput is the argument of the render_markdown tool. Format wins over
// the template's format when both are given.
type RenderInput struct {
	Markdown string `json:"markdown" jsonschema:"Markdown source"`
	Output   string `json:"output" jsonschema:"path of the file to write"`
	Format   string `json:"format,omitempty" jsonschema:"docx, pptx or html; defaults to the configured outbound format or the template's"`
	Template string `json:"template,omitempty" jsonschema:"name of a configured render template"`
	Force    bool   `json:"force,omitempty" jsonschema:"overwrite an existing output file"`
}

// ListFormatsInput is the empty argument of the list_formats tool.
type ListFormatsInput struct{}

func (s *Server) convertURL(ctx context.Context, _ *mcp.CallToolRequest, in ConvertURLInput) (*mcp.CallToolResult, any, error) {
	format, err := inboundFormat(in.Format)
	if err != nil {
		return toolError(err), nil, nil
	}
	ex, err := s.engine.ExtractURL(ctx, in.URL, docbridge.ExtractOptions{OCR: in.OCR})
	if err != nil {
		s.logger.Warn("convert_url failed", "url", in.URL, "err", err)
		return toolError(err), nil, nil
	}
	return formatted(ex, format)
}

func (s *Server) convertFile(ctx context.Context, _ *mcp.CallToolRequest, in ConvertFileInput) (*mcp.CallToolResult, any, error) {
	format, err := inboundFormat(in.Format)
	if err != nil {
		return toolError(err), nil, nil
	}
	path, err := s.checkPath(in.Path)
	if err != nil {
		return toolError(err), nil, nil
	}
	ex, err := s.engine.ExtractFile(ctx, path, docbridge.ExtractOptions{OCR: in.OCR})
	if err != nil {
		s.logger.Warn("convert_file failed", "path", path, "err", err)
		return toolError(err), nil, nil
	}
	return formatted(ex, format)
}

func (s *Server) renderMarkdown(ctx context.Context, _ *mcp.CallToolRequest, in RenderInput) (*mcp.CallToolResult, any, error) {
	if s.renderer == nil {
		return toolError(fault.New(fault.RendererNotInstalled, "rendering is disabled")), nil, nil
	}
	format, err := s.outboundFormat(in)
	if err != nil {
		return toolError(err), nil, nil
	}
	output, err := s.checkPath(in.Output)
	if err != nil {
		return toolError(err), nil, nil
	}
	if !in.Force {
		if _, err := os.Stat(output); err == nil {
			return toolError(fault.New(fault.OutputExists, "%s already exists", output).
				WithHint("set force to overwrite it")), nil, nil
		}
	}
	args, err := plan.BuildPandocArgs(format, s.cfg, in.Template, nil)
	if err != nil {
		return toolError(err), nil, nil
	}

	dir, err := os.MkdirTemp("", "docbridge-mcp-*")
	if err != nil {
		return nil, nil, err
	}
	defer os.RemoveAll(dir)
	input := filepath.Join(dir, "document.md")
	if err := os.WriteFile(input, []byte(in.Markdown), 0o600); err != nil {
		return nil, nil, err
	}
	r := &docbridge.Runner{Engine: s.engine, Renderer: s.renderer, Force: in.Force, Logger: s.logger}
	res, err := r.Execute(ctx, &plan.Plan{Direction: plan.Outbound, Input: input, Output: output, Format: format, PandocArgs: args})
	if err != nil {
		return toolError(err), nil, nil
	}
	return textResult(fmt.Sprintf("Rendered %s to %s (%d bytes)", format, output, res.Bytes)), nil, nil
}

type formatsOutput struct {
	Formats   []plan.Format              `json:"formats"`
	Inputs    []string                   `json:"inputs"`
	Templates map[string]config.Template `json:"templates"`
}

func (s *Server) listFormats(_ context.Context, _ *mcp.CallToolRequest, _ ListFormatsInput) (*mcp.CallToolResult, any, error) {
	out := formatsOutput{
		Formats:   plan.Formats(),
		Inputs:    docbridge.SupportedExtensions(),
		Templates: s.cfg.Templates,
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return textResult(string(data)), nil, nil
}

func (s *Server) outboundFormat(in RenderInput) (string, error) {
	format := strings.ToLower(strings.TrimSpace(in.Format))
	if format == "" && in.Template != "" {
		f, err := plan.TemplateFormat(s.cfg, in.Template)
		if err != nil {
			return "", err
		}
		format = f
	}
	if format == "" {
		format = plan.OutboundFallback
		if s.cfg.OutboundDefault != "" {
			format = strings.ToLower(s.cfg.OutboundDefault)
		}
	}
	if !plan.IsOutbound(format) {
		return "", fault.New(fault.InvalidDirection, "%q is not a render format", format).
			WithHint("render formats: " + strings.Join(plan.FormatNames(plan.Outbound), ", "))
	}
	return format, nil
}

// checkPath makes p absolute and, when roots are configured, requires it to
// lie inside one of them once symlinks are followed. The returned path is the
// resolved one.
func (s *Server) checkPath(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", fault.New(fault.InvalidRequest, "a path is required")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fault.Wrap(fault.InvalidRequest, err, "resolve %q", p)
	}
	if len(s.roots) == 0 {
		return abs, nil
	}
	resolved := resolveLinks(abs)
	if fi, err := os.Lstat(resolved); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return "", fault.New(fault.PathEscape, "%s is a dangling symlink", abs)
	}
	for _, root := range s.roots {
		if rel, err := filepath.Rel(root, resolved); err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", fault.New(fault.PathEscape, "%s is outside the allowed directories", abs).
		WithHint("allowed: " + strings.Join(s.roots, ", "))
}

// resolveLinks follows the symlinks in the longest existing prefix of p and
// appends the components that do not exist yet.
func resolveLinks(p string) string {
	var rest []string
	for {
		if target, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{target}, rest...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return filepath.Join(append([]string{p}, rest...)...)
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

func inboundFormat(requested string) (string, error) {
	format := strings.ToLower(strings.TrimSpace(requested))
	if format == "" {
		return plan.InboundDefault, nil
	}
	if _, err := plan.Extension(format); err != nil {
		return "", err
	}
	if plan.IsOutbound(format) {
		return "", fault.New(fault.InvalidDirection, "%s is rendered from Markdown, not extracted", format).
			WithHint("use render_markdown instead")
	}
	return format, nil
}

func formatted(ex *docbridge.Extraction, format string) (*mcp.CallToolResult, any, error) {
	data, err := docbridge.FormatExtraction(ex, format)
	if err != nil {
		return toolError(err), nil, nil
	}
	return textResult(string(data)), nil, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

// toolError reports err to the model as a failed tool call, with its kind
// and hint.
func toolError(err error) *mcp.CallToolResult {
	msg := fmt.Sprintf("%s: %v", fault.KindOf(err), err)
	if hint := fault.HintOf(err); hint != "" {
		msg += "\nhint: " + hint
	}
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
	}
}
