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
	"fmt"
	"io"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/mdtable"
	"github.com/nicholasgasior/docbridge/internal/ooxml"
)

const pptxMIME = "application/vnd.openxmlformats-officedocument.presentationml.presentation"

// PptxConverter handles PowerPoint presentations.
type PptxConverter struct{}

// NewPptxConverter creates a new PptxConverter.
func NewPptxConverter() *PptxConverter {
	return &PptxConverter{}
}

func (c *PptxConverter) Accepts(info StreamInfo) bool {
	if info.Extension == ".pptx" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(info.MIMEType), pptxMIME)
}

func (c *PptxConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	pkg, err := openPackage(reader)
	if err != nil {
		return nil, fmt.Errorf("open PPTX: %w", err)
	}
	slides, err := ooxml.ReadSlides(pkg)
	if err != nil {
		return nil, fmt.Errorf("read PPTX: %w", err)
	}

	var md strings.Builder
	title := ""
	for _, s := range slides {
		fmt.Fprintf(&md, "<!-- Slide number: %d -->\n\n", s.Number)
		if s.Title != "" {
			fmt.Fprintf(&md, "# %s\n\n", s.Title)
			if title == "" {
				title = s.Title
			}
		}
		for _, p := range s.Paragraphs {
			md.WriteString(p)
			md.WriteString("\n\n")
		}
		for _, t := range s.Tables {
			md.WriteString(mdtable.Render(t))
			md.WriteString("\n")
		}
		if s.Notes != "" {
			md.WriteString("### Notes:\n\n")
			md.WriteString(s.Notes)
			md.WriteString("\n\n")
		}
	}

	return &Extraction{
		Content:  md.String(),
		MIMEType: pptxMIME,
		Title:    title,
		Metadata: map[string]any{"slides": len(slides)},
	}, nil
}
