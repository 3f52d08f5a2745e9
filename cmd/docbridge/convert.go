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

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nicholasgasior/docbridge"
	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/plan"
)

type convertOptions struct {
	format         string
	formatExplicit bool
	outputDir      string
	force          bool
	template       string
	pandocArgs     []string
	ocr            bool
	forceOCR       bool
	stdout         bool
	jobs           int
	extension      string
	keepDataURIs   bool
}

func (o *convertOptions) extract() docbridge.ExtractOptions {
	return docbridge.ExtractOptions{OCR: o.ocr, ForceOCR: o.forceOCR}
}

func newRootCmd(a *app) *cobra.Command {
	o := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "docbridge [inputs...]",
		Short: "Convert documents to Markdown and Markdown to documents",
		Long: titleStyle.Render("docbridge") + subtitleStyle.Render(" - documents in, Markdown out, and back") + `

Inputs are files, http(s) URLs, or - for standard input. Documents become
Markdown, plain text, JSON or YAML; Markdown files become Word, PowerPoint
or HTML through pandoc.

` + subtitleStyle.Render("Examples:") + `
  docbridge report.pdf                 Write report.md next to report.pdf
  docbridge notes.md                   Render notes.md with the outbound default
  docbridge -f json -o out/ *.docx     Batch convert into out/ as JSON
  docbridge --stdout https://go.dev    Print a web page as Markdown
  docbridge --template memo notes.md   Render with a configured template`,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return cmd.Help()
			}
			o.formatExplicit = cmd.Flags().Changed("format")
			return a.convert(cmd.Context(), o, args)
		},
	}
	a.bindGlobalFlags(cmd)

	f := cmd.Flags()
	f.StringVarP(&o.format, "format", "f", "", "output format (see 'docbridge formats')")
	f.StringVarP(&o.outputDir, "output-dir", "o", "", "directory for results (default: next to each input)")
	f.BoolVar(&o.force, "force", false, "overwrite existing outputs")
	f.StringVar(&o.template, "template", "", "named render template from the config")
	f.StringArrayVar(&o.pandocArgs, "pandoc-arg", nil, "extra pandoc argument, repeatable")
	f.BoolVar(&o.ocr, "ocr", false, "recognize text in images, skipping OCR if tesseract is missing")
	f.BoolVar(&o.forceOCR, "force-ocr", false, "recognize text in images and fail if tesseract is missing")
	f.BoolVar(&o.stdout, "stdout", false, "print results instead of writing files")
	f.IntVarP(&o.jobs, "jobs", "j", 0, "parallel conversions (default: number of CPUs)")
	f.StringVarP(&o.extension, "extension", "x", "", "file extension hint for standard input")
	f.BoolVar(&o.keepDataURIs, "keep-data-uris", false, "keep full base64 data URIs")

	cmd.AddCommand(
		newServeCmd(a),
		newMCPCmd(a),
		newWatchCmd(a),
		newFormatsCmd(a),
		newConfigCmd(a),
		newVersionCmd(a),
	)
	return cmd
}

func (a *app) convert(ctx context.Context, o *convertOptions, inputs []string) error {
	engine := a.engine(o.ocr || o.forceOCR, docbridge.WithKeepDataURIs(o.keepDataURIs))
	for _, in := range inputs {
		if in == "-" {
			o.stdout = true
		}
	}
	if o.stdout {
		return a.convertToStdout(ctx, engine, o, inputs)
	}

	jobs := o.jobs
	if jobs < 1 {
		jobs = runtime.GOMAXPROCS(0)
	}
	runner := a.runner(engine, o.force, o.extract())

	var (
		g      errgroup.Group
		mu     sync.Mutex
		failed []error
	)
	g.SetLimit(jobs)
	for _, in := range inputs {
		g.Go(func() error {
			res, err := a.convertOne(ctx, runner, o, in)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.reportError(in, err)
				failed = append(failed, err)
				return nil
			}
			a.reportResult(res)
			return nil
		})
	}
	_ = g.Wait()

	if len(failed) == 0 {
		return nil
	}
	code := exitUsage
	for _, err := range failed {
		if exitCode(err) != exitUsage {
			code = exitFailure
		}
	}
	return &exitError{code: code, err: fmt.Errorf("%d of %d conversions failed", len(failed), len(inputs))}
}

func (a *app) convertOne(ctx context.Context, r *docbridge.Runner, o *convertOptions, input string) (*docbridge.Result, error) {
	if docbridge.IsURL(input) {
		return r.ExecuteURL(ctx, input, a.inboundFormat(o), a.outputDir(o))
	}
	p, err := a.buildPlan(input, o)
	if err != nil {
		return nil, err
	}
	return r.Execute(ctx, p)
}

// buildPlan resolves the format and renderer arguments for a local input.
// A template picks the format unless one was given explicitly.
func (a *app) buildPlan(input string, o *convertOptions) (*plan.Plan, error) {
	cfg := a.cfg()
	format, explicit := o.format, o.formatExplicit
	if o.template != "" && !explicit {
		tf, err := plan.TemplateFormat(cfg, o.template)
		if err != nil {
			return nil, err
		}
		format, explicit = tf, true
	}
	if format == "" {
		format = cfg.DefaultFormat
	}

	p, err := plan.Build(input, format, plan.Options{
		FormatExplicit:  explicit,
		OutputDir:       a.outputDir(o),
		OutboundDefault: cfg.OutboundDefault,
	})
	if err != nil {
		return nil, err
	}
	if p.Direction != plan.Outbound {
		if o.template != "" || len(o.pandocArgs) > 0 {
			a.logger.Warn("--template and --pandoc-arg only apply when rendering", "input", input)
		}
		return p, nil
	}
	args, err := plan.BuildPandocArgs(p.Format, cfg, o.template, o.pandocArgs)
	if err != nil {
		return nil, err
	}
	if len(args) > 0 {
		p.PandocArgs = args
	}
	return p, nil
}

func (a *app) outputDir(o *convertOptions) string {
	if o.outputDir != "" {
		return o.outputDir
	}
	return a.cfg().OutputDir
}

func (a *app) inboundFormat(o *convertOptions) string {
	if o.format != "" {
		return strings.ToLower(o.format)
	}
	if f := a.cfg().DefaultFormat; f != "" && !plan.IsOutbound(f) {
		return f
	}
	return plan.InboundDefault
}

// convertToStdout extracts every input in order and prints the results.
func (a *app) convertToStdout(ctx context.Context, engine *docbridge.Engine, o *convertOptions, inputs []string) error {
	format := a.inboundFormat(o)
	if _, err := plan.Extension(format); err != nil {
		return err
	}
	if plan.IsOutbound(format) {
		return fault.New(fault.InvalidDirection, "%s output cannot be printed", format).
			WithHint("drop --stdout to write a file, or pick one of " + strings.Join(plan.FormatNames(plan.Inbound), ", "))
	}

	for i, in := range inputs {
		ex, err := a.extractInput(ctx, engine, o, in)
		if err != nil {
			a.reportError(in, err)
			return &exitError{code: exitCode(err), err: fmt.Errorf("convert %s", in)}
		}
		data, err := docbridge.FormatExtraction(ex, format)
		if err != nil {
			return err
		}
		if i > 0 {
			fmt.Fprintln(a.stdout)
		}
		if _, err := a.stdout.Write(data); err != nil {
			return err
		}
		if !bytes.HasSuffix(data, []byte("\n")) {
			fmt.Fprintln(a.stdout)
		}
	}
	return nil
}

func (a *app) extractInput(ctx context.Context, engine *docbridge.Engine, o *convertOptions, input string) (*docbridge.Extraction, error) {
	if input != "-" {
		return engine.Extract(ctx, input, o.extract())
	}
	data, err := io.ReadAll(a.stdin)
	if err != nil {
		return nil, fmt.Errorf("read standard input: %w", err)
	}
	info := docbridge.StreamInfo{Extension: normalizeExt(o.extension)}
	return engine.ExtractReader(ctx, bytes.NewReader(data), info, o.extract())
}
