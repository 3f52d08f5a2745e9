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

// Package plan decides what a conversion will do before any work starts:
// its direction, the final format, where the output goes, and which Pandoc
// arguments an outbound render receives.
package plan

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// Plan is a fully resolved conversion.
type Plan struct {
	Direction Direction
	// Input and Output are absolute paths.
	Input  string
	Output string
	Format string
	// PandocArgs is nil unless arguments were supplied.
	PandocArgs []string
}

// Options tunes Build.
type Options struct {
	// FormatExplicit is set when the caller named the format rather than
	// relying on a default.
	FormatExplicit bool
	OutputDir      string
	// OutboundDefault is substituted for bare Markdown input; empty means
	// OutboundFallback.
	OutboundDefault string
	PandocArgs      []string
}

// Build resolves a plan for converting input to format.
//
// Markdown input with no explicit format and the inbound default is taken to
// mean "render this Markdown", so the outbound default replaces the format.
// Outbound formats accept Markdown input only.
func Build(input, format string, opts Options) (*Plan, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = InboundDefault
	}
	if _, ok := LookupFormat(format); !ok {
		return nil, unknownFormat(format)
	}

	markdown := IsMarkdownPath(input)
	if markdown && !opts.FormatExplicit && format == InboundDefault {
		format = OutboundFallback
		if opts.OutboundDefault != "" {
			if !IsOutbound(opts.OutboundDefault) {
				return nil, fault.New(fault.UnknownFormat, "configured outbound default %q is not an outbound format", opts.OutboundDefault).
					WithHint("outbound formats: " + strings.Join(FormatNames(Outbound), ", "))
			}
			format = strings.ToLower(opts.OutboundDefault)
		}
	}

	direction := Inbound
	if IsOutbound(format) {
		if !markdown {
			return nil, fault.New(fault.InvalidDirection, "cannot convert %s to %s", filepath.Base(input), format).
				WithHint("outbound formats (" + strings.Join(FormatNames(Outbound), ", ") +
					") accept only Markdown input (" + strings.Join(markdownExtensions, ", ") +
					"); inbound formats are " + strings.Join(FormatNames(Inbound), ", "))
		}
		direction = Outbound
	}

	absInput, err := filepath.Abs(input)
	if err != nil {
		return nil, fault.Wrap(fault.Internal, err, "resolve input path %q", input)
	}
	outputDir := opts.OutputDir
	if outputDir != "" {
		if outputDir, err = filepath.Abs(outputDir); err != nil {
			return nil, fault.Wrap(fault.Internal, err, "resolve output directory %q", opts.OutputDir)
		}
	}
	output, err := ResolveOutputPath(absInput, format, outputDir)
	if err != nil {
		return nil, err
	}
	if sameFile(output, absInput) {
		return nil, fault.New(fault.SelfOverwrite, "output %s would overwrite the input", output).
			WithHint("choose an output directory or a different format")
	}

	p := &Plan{
		Direction: direction,
		Input:     absInput,
		Output:    output,
		Format:    format,
	}
	if len(opts.PandocArgs) > 0 {
		p.PandocArgs = append([]string(nil), opts.PandocArgs...)
	}
	return p, nil
}

// sameFile reports whether a and b name one file, including through links
// and case-insensitive file systems.
func sameFile(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
