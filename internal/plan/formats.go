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

package plan

import (
	"strings"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// Direction says which way a conversion goes.
type Direction string

const (
	// Inbound converts a document into LLM-friendly text.
	Inbound Direction = "inbound"
	// Outbound renders Markdown into a document.
	Outbound Direction = "outbound"
)

// Format describes an output format.
type Format struct {
	Name        string
	Extension   string
	Direction   Direction
	Description string
}

const (
	// InboundDefault is the format used when none is requested.
	InboundDefault = "md"
	// OutboundFallback is used for bare Markdown input when the config names
	// no outbound default.
	OutboundFallback = "docx"
)

var formats = []Format{
	{"md", ".md", Inbound, "Markdown"},
	{"text", ".txt", Inbound, "Plain text with Markdown markup stripped"},
	{"json", ".json", Inbound, "JSON envelope with content and metadata"},
	{"yaml", ".yaml", Inbound, "YAML envelope with content and metadata"},
	{"docx", ".docx", Outbound, "Word document (Pandoc)"},
	{"pptx", ".pptx", Outbound, "PowerPoint presentation (Pandoc)"},
	{"html", ".html", Outbound, "Standalone HTML page (Pandoc)"},
}

// markdownExtensions are the inputs accepted by outbound formats.
var markdownExtensions = []string{".md", ".markdown"}

// Formats returns every known format.
func Formats() []Format {
	out := make([]Format, len(formats))
	copy(out, formats)
	return out
}

// LookupFormat finds a format by name, case-insensitively.
func LookupFormat(name string) (Format, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, f := range formats {
		if f.Name == name {
			return f, true
		}
	}
	return Format{}, false
}

// FormatNames lists the names of formats going in direction d.
func FormatNames(d Direction) []string {
	var names []string
	for _, f := range formats {
		if f.Direction == d {
			names = append(names, f.Name)
		}
	}
	return names
}

// IsOutbound reports whether name is an outbound format.
func IsOutbound(name string) bool {
	f, ok := LookupFormat(name)
	return ok && f.Direction == Outbound
}

// IsMarkdownPath reports whether path has a Markdown extension.
func IsMarkdownPath(path string) bool {
	ext := strings.ToLower(extOf(path))
	for _, e := range markdownExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Extension returns the file extension for format.
func Extension(format string) (string, error) {
	f, ok := LookupFormat(format)
	if !ok {
		return "", unknownFormat(format)
	}
	return f.Extension, nil
}

func unknownFormat(name string) error {
	var names []string
	for _, f := range formats {
		names = append(names, f.Name)
	}
	return fault.New(fault.UnknownFormat, "unknown format %q", name).
		WithHint("supported formats: " + strings.Join(names, ", "))
}
