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
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nicholasgasior/docbridge"
	"github.com/nicholasgasior/docbridge/internal/mcpserver"
	"github.com/nicholasgasior/docbridge/internal/plan"
	"github.com/nicholasgasior/docbridge/internal/render"
	"github.com/nicholasgasior/docbridge/internal/server"
	"github.com/nicholasgasior/docbridge/internal/watch"
)

func newServeCmd(a *app) *cobra.Command {
	var (
		addr     string
		noRender bool
		ocr      bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP conversion API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg().Server.Addr
			}
			var renderer render.Renderer
			if !noRender {
				renderer = a.renderer()
			}
			srv := server.New(a.engine(ocr), renderer, a.cfg(), a.logger)
			return srv.Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr from the config)")
	cmd.Flags().BoolVar(&noRender, "no-render", false, "disable the render endpoint")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "enable OCR for uploaded images")
	return cmd
}

func newMCPCmd(a *app) *cobra.Command {
	var (
		roots []string
		ocr   bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve conversion tools over MCP on stdio",
		Long: `Serve convert_url, convert_file, render_markdown and list_formats to an
MCP client over standard input and output. Logs go to standard error.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			srv := mcpserver.New(a.engine(ocr), a.renderer(), a.cfg(), a.logger,
				mcpserver.WithRoots(roots...),
				mcpserver.WithVersion(version),
			)
			return srv.Run(cmd.Context())
		},
	}
	cmd.Flags().StringArrayVar(&roots, "root", nil, "restrict file tools to this directory, repeatable")
	cmd.Flags().BoolVar(&ocr, "ocr", false, "enable OCR for images")
	return cmd
}

func newWatchCmd(a *app) *cobra.Command {
	o := &convertOptions{}
	var (
		initial bool
		include []string
		ignore  []string
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Convert files as they appear or change in a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o.formatExplicit = true
			if o.format == "" {
				o.format = a.cfg().DefaultFormat
			}
			if o.template != "" && !cmd.Flags().Changed("format") {
				tf, err := plan.TemplateFormat(a.cfg(), o.template)
				if err != nil {
					return err
				}
				o.format = tf
			}
			ext, err := plan.Extension(o.format)
			if err != nil {
				return err
			}

			wc := a.cfg().Watch
			if len(include) == 0 {
				include = wc.Include
				if plan.IsOutbound(o.format) {
					include = []string{"**/*.md", "**/*.markdown"}
				}
			}
			if len(ignore) == 0 {
				ignore = wc.Ignore
			}
			jobs := o.jobs
			if jobs < 1 {
				jobs = wc.Concurrency
			}

			runner := a.runner(a.engine(o.ocr || o.forceOCR), true, o.extract())
			w, err := watch.New(watch.Config{
				Dir:            args[0],
				OutputDir:      a.outputDir(o),
				Include:        include,
				Ignore:         ignore,
				SkipExtensions: []string{ext},
				Debounce:       wc.Debounce,
				Concurrency:    jobs,
				Initial:        initial,
				Convert:        a.watchConvert(runner, o),
				Logger:         a.logger,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "%s %s %s\n", titleStyle.Render("watching"), args[0], subtitleStyle.Render("→ "+o.format+" (ctrl-c to stop)"))
			return w.Run(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.format, "format", "f", "", "output format")
	f.StringVarP(&o.outputDir, "output-dir", "o", "", "directory for results (default: next to each input)")
	f.StringVar(&o.template, "template", "", "named render template from the config")
	f.StringArrayVar(&o.pandocArgs, "pandoc-arg", nil, "extra pandoc argument, repeatable")
	f.BoolVar(&o.ocr, "ocr", false, "recognize text in images")
	f.BoolVar(&o.forceOCR, "force-ocr", false, "recognize text in images and fail if tesseract is missing")
	f.IntVarP(&o.jobs, "jobs", "j", 0, "parallel conversions (default: watch.concurrency)")
	f.BoolVar(&initial, "initial", false, "convert matching files already present")
	f.StringArrayVar(&include, "include", nil, "glob of files to convert, repeatable (default: watch.include)")
	f.StringArrayVar(&ignore, "ignore", nil, "glob of files to skip, repeatable (default: watch.ignore)")
	return cmd
}

// watchConvert converts one changed file, reporting instead of failing so the
// watch keeps going.
func (a *app) watchConvert(r *docbridge.Runner, o *convertOptions) watch.ConvertFunc {
	return func(ctx context.Context, path string) error {
		p, err := a.buildPlan(path, o)
		if err == nil {
			var res *docbridge.Result
			if res, err = r.Execute(ctx, p); err == nil {
				a.reportResult(res)
				return nil
			}
		}
		a.reportError(path, err)
		return err
	}
}

func newFormatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List output formats, input extensions and templates",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			w := a.stdout
			fmt.Fprintln(w, titleStyle.Render("Output formats"))
			for _, f := range plan.Formats() {
				fmt.Fprintf(w, "  %s %-9s %-6s %s\n",
					formatNameStyle.Render(f.Name), f.Direction, f.Extension, subtitleStyle.Render(f.Description))
			}

			fmt.Fprintln(w)
			fmt.Fprintln(w, titleStyle.Render("Input extensions"))
			fmt.Fprintf(w, "  %s\n", strings.Join(docbridge.SupportedExtensions(), " "))

			fmt.Fprintln(w)
			fmt.Fprintln(w, titleStyle.Render("Templates"))
			names := a.cfg().TemplateNames()
			if len(names) == 0 {
				fmt.Fprintf(w, "  %s\n", subtitleStyle.Render("none configured"))
			}
			for _, name := range names {
				t := a.cfg().Templates[name]
				fmt.Fprintf(w, "  %s %-6s %s\n", formatNameStyle.Render(name), t.Format, subtitleStyle.Render(t.Description))
			}
			return nil
		},
	}
}

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			out, err := a.cfg().YAML()
			if err != nil {
				return err
			}
			if len(a.loaded.Sources) == 0 {
				fmt.Fprintln(a.stdout, subtitleStyle.Render("# built-in defaults"))
			}
			for _, src := range a.loaded.Sources {
				fmt.Fprintln(a.stdout, subtitleStyle.Render("# from "+src))
			}
			fmt.Fprint(a.stdout, out)
			return nil
		},
	})
	return cmd
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			fmt.Fprintf(a.stdout, "docbridge %s\n", version)
			if v := a.renderer().Version(); v != "" {
				fmt.Fprintf(a.stdout, "renderer: %s\n", v)
			} else {
				fmt.Fprintf(a.stdout, "renderer: %s\n", warningStyle.Render("pandoc not found"))
			}
			return nil
		},
	}
}
