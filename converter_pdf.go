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
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PdfConverter extracts the text layer of PDF files.
type PdfConverter struct{}

// NewPdfConverter creates a new PdfConverter.
func NewPdfConverter() *PdfConverter {
	return &PdfConverter{}
}

func (c *PdfConverter) Accepts(info StreamInfo) bool {
	if info.Extension == ".pdf" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(info.MIMEType), "application/pdf")
}

func (c *PdfConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read PDF: %w", err)
	}
	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	pages := doc.NumPage()
	var md strings.Builder
	emptyPages := 0
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := doc.Page(i)
		if page.V.IsNull() {
			emptyPages++
			continue
		}
		text := strings.TrimSpace(pageText(page))
		if text == "" {
			emptyPages++
			continue
		}
		md.WriteString(text)
		md.WriteString("\n\n")
	}

	content := md.String()
	ex := &Extraction{
		Content:      content,
		MIMEType:     "application/pdf",
		QualityScore: scorePtr(qualityScore(content)),
		Metadata: map[string]any{
			"pages":       pages,
			"empty_pages": emptyPages,
		},
	}
	if strings.TrimSpace(content) == "" {
		ex.Content = "[No readable text content found in PDF]"
		ex.QualityScore = scorePtr(0)
	}
	return ex, nil
}

// pageText reads a page row by row, falling back to grouping positioned
// glyphs into lines when the row API yields nothing.
func pageText(page pdf.Page) string {
	if rows, err := page.GetTextByRow(); err == nil && len(rows) > 0 {
		var out strings.Builder
		for _, row := range rows {
			var line strings.Builder
			gap := false
			for _, word := range row.Content {
				if word.S == "" {
					// An empty run separates words.
					gap = true
					continue
				}
				if gap && line.Len() > 0 && !strings.HasSuffix(line.String(), " ") {
					line.WriteString(" ")
				}
				line.WriteString(word.S)
				gap = false
			}
			if s := strings.TrimSpace(line.String()); s != "" {
				out.WriteString(s)
				out.WriteString("\n")
			}
		}
		if strings.TrimSpace(out.String()) != "" {
			return out.String()
		}
	}
	return glyphText(page.Content().Text)
}

type glyphLine struct {
	y      float64
	glyphs []pdf.Text
}

// glyphText groups glyphs whose baselines are within a fraction of the font
// size, orders lines top to bottom and glyphs left to right, and inserts a
// space where the horizontal gap is wider than a fifth of the font size.
func glyphText(glyphs []pdf.Text) string {
	var lines []glyphLine
	for _, g := range glyphs {
		if strings.TrimSpace(g.S) == "" {
			continue
		}
		tolerance := math.Max(g.FontSize*0.3, 1)
		placed := false
		for i := range lines {
			if math.Abs(lines[i].y-g.Y) < tolerance {
				lines[i].glyphs = append(lines[i].glyphs, g)
				placed = true
				break
			}
		}
		if !placed {
			lines = append(lines, glyphLine{y: g.Y, glyphs: []pdf.Text{g}})
		}
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var out strings.Builder
	for _, ln := range lines {
		sort.Slice(ln.glyphs, func(i, j int) bool { return ln.glyphs[i].X < ln.glyphs[j].X })
		var line strings.Builder
		end := math.Inf(-1)
		for _, g := range ln.glyphs {
			if line.Len() > 0 && g.X-end > math.Max(g.FontSize*0.2, 1) {
				line.WriteString(" ")
			}
			line.WriteString(g.S)
			w := g.W
			if w <= 0 {
				w = float64(len([]rune(g.S))) * g.FontSize * 0.55
			}
			end = g.X + w
		}
		if s := strings.TrimSpace(line.String()); s != "" {
			out.WriteString(s)
			out.WriteString("\n")
		}
	}
	return out.String()
}
