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
	"encoding/json"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/plan"
)

// FormatExtraction serializes ex as one of the inbound formats: "md" (the
// Markdown content), "text" (Markdown markup removed), "json" or "yaml" (an
// envelope with content, MIME type, title, metadata and quality score).
func FormatExtraction(ex *Extraction, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "", "md":
		return []byte(ex.Content + "\n"), nil
	case "text":
		return []byte(StripMarkdown(ex.Content) + "\n"), nil
	case "json":
		data, err := json.MarshalIndent(ex, "", "  ")
		if err != nil {
			return nil, fault.Wrap(fault.Internal, err, "encode JSON")
		}
		return append(data, '\n'), nil
	case "yaml":
		data, err := yaml.Marshal(ex)
		if err != nil {
			return nil, fault.Wrap(fault.Internal, err, "encode YAML")
		}
		return data, nil
	}
	if plan.IsOutbound(format) {
		return nil, fault.New(fault.InvalidDirection, "%s is rendered from Markdown, not extracted", format)
	}
	return nil, fault.New(fault.UnknownFormat, "unknown format %q", format).
		WithHint("inbound formats: " + strings.Join(plan.FormatNames(plan.Inbound), ", "))
}

var (
	reMDImage     = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	reMDLink      = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	reMDAutolink  = regexp.MustCompile(`<(https?://[^>]+)>`)
	reMDHeading   = regexp.MustCompile(`(?m)^#{1,6}[ \t]+`)
	reMDQuote     = regexp.MustCompile(`(?m)^>[ \t]?`)
	reMDFence     = regexp.MustCompile("(?m)^```.*$\n?")
	reMDTableRule = regexp.MustCompile(`(?m)^\|(?:[ \t]*:?-{3,}:?[ \t]*\|)+[ \t]*$\n?`)
	reMDTableBar  = regexp.MustCompile(`(?m)^\|[ \t]?|[ \t]?\|[ \t]*$`)
	reMDEmphasis  = regexp.MustCompile(`(\*\*|\*|~~)(\S(?:.*?\S)?)(\*\*|\*|~~)`)
	reMDInline    = regexp.MustCompile("`([^`]*)`")
	reHTMLComment = regexp.MustCompile(`(?s)<!--.*?-->\n?`)
)

// StripMarkdown removes Markdown markup and keeps the readable text. Table
// cells stay separated by " | ".
func StripMarkdown(md string) string {
	s := reHTMLComment.ReplaceAllString(md, "")
	s = reMDFence.ReplaceAllString(s, "")
	s = reMDImage.ReplaceAllString(s, "$1")
	s = reMDLink.ReplaceAllString(s, "$1")
	s = reMDAutolink.ReplaceAllString(s, "$1")
	s = reMDHeading.ReplaceAllString(s, "")
	s = reMDQuote.ReplaceAllString(s, "")
	s = reMDTableRule.ReplaceAllString(s, "")
	s = reMDTableBar.ReplaceAllString(s, "")
	s = reMDInline.ReplaceAllString(s, "$1")
	s = reMDEmphasis.ReplaceAllStringFunc(s, func(m string) string {
		sub := reMDEmphasis.FindStringSubmatch(m)
		if sub[1] != sub[3] {
			return m
		}
		return sub[2]
	})
	return normalizeOutput(s)
}
