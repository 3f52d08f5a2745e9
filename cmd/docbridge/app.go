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
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docbridge"
	"github.com/nicholasgasior/docbridge/internal/config"
	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/ocr"
	"github.com/nicholasgasior/docbridge/internal/plan"
	"github.com/nicholasgasior/docbridge/internal/render"
)

// app holds the global flags and the services every command shares. It is
// set up once by the root command's PersistentPreRunE.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfgFile   string
	logLevel  string
	verbose   bool
	pandocBin string

	logger *log.Logger
	loaded *config.Loaded
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *app {
	return &app{stdin: stdin, stdout: stdout, stderr: stderr}
}

func (a *app) bindGlobalFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&a.cfgFile, "config", "", "config file (default: global and nearest .docbridge.yaml)")
	f.StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	f.BoolVarP(&a.verbose, "verbose", "v", false, "shortcut for --log-level=debug")
	f.StringVar(&a.pandocBin, "pandoc", "pandoc", "pandoc executable used for rendering")
}

// setup builds the logger and loads the configuration.
func (a *app) setup(_ *cobra.Command, _ []string) error {
	level, err := log.ParseLevel(a.logLevel)
	if err != nil {
		return fault.Wrap(fault.InvalidRequest, err, "invalid --log-level %q", a.logLevel).
			WithHint("use debug, info, warn or error")
	}
	if a.verbose {
		level = log.DebugLevel
	}
	a.logger = log.NewWithOptions(a.stderr, log.Options{
		Prefix: "docbridge",
		Level:  level,
	})

	loaded, err := config.Load(config.LoadOptions{File: a.cfgFile, Logger: a.logger})
	if err != nil {
		return err
	}
	if err := loaded.Validate(plan.FormatNames(plan.Inbound), plan.FormatNames(plan.Outbound)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	a.loaded = loaded
	return nil
}

func (a *app) cfg() *config.Config {
	return a.loaded.Config
}

// engine builds an extraction engine. OCR is wired when the config enables
// it or the caller asks for it.
func (a *app) engine(withOCR bool, extra ...docbridge.Option) *docbridge.Engine {
	opts := append([]docbridge.Option{docbridge.WithLogger(a.logger)}, extra...)
	if c := a.cfg().OCR; c.Enabled || withOCR {
		opts = append(opts, docbridge.WithOCR(ocr.NewTesseract(c.Binary, c.Language, a.logger)))
	}
	return docbridge.New(opts...)
}

func (a *app) renderer() *render.Pandoc {
	return render.New(render.WithBinary(a.pandocBin), render.WithLogger(a.logger))
}

func (a *app) runner(engine *docbridge.Engine, force bool, extract docbridge.ExtractOptions) *docbridge.Runner {
	return &docbridge.Runner{
		Engine:   engine,
		Renderer: a.renderer(),
		Force:    force || a.cfg().Force,
		Extract:  extract,
		Logger:   a.logger,
	}
}

// reportError prints err with its hint to stderr.
func (a *app) reportError(subject string, err error) {
	msg := errorStyle.Render("✗") + " "
	if subject != "" {
		msg += subject + ": "
	}
	msg += err.Error()
	if hint := fault.HintOf(err); hint != "" {
		msg += "\n  " + subtitleStyle.Render("hint: "+hint)
	}
	fmt.Fprintln(a.stderr, msg)
}

func (a *app) reportResult(res *docbridge.Result) {
	fmt.Fprintf(a.stdout, "%s %s %s %s %s\n",
		successStyle.Render("✓"),
		res.Input,
		subtitleStyle.Render("→"),
		res.Output,
		subtitleStyle.Render(fmt.Sprintf("(%s, %s)", humanBytes(res.Bytes), res.Elapsed.Round(time.Millisecond))),
	)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// normalizeExt lower-cases ext and adds the leading dot.
func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
