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

package ooxml

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const presentation = "ppt/presentation.xml"

// Slide is the text of one slide in presentation order.
type Slide struct {
	Number int
	Title  string
	// Paragraphs holds non-title text in reading order.
	Paragraphs []string
	Tables     [][][]string
	Notes      string
}

// ReadSlides extracts the text of every slide in a PowerPoint package.
func ReadSlides(p *Package) ([]Slide, error) {
	order, err := slideOrder(p)
	if err != nil {
		return nil, err
	}
	slides := make([]Slide, 0, len(order))
	for i, part := range order {
		data, err := p.ReadFile(part)
		if err != nil {
			return nil, err
		}
		content, err := parseSlideXML(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", part, err)
		}
		s := Slide{
			Number:     i + 1,
			Title:      strings.Join(content.title, " "),
			Paragraphs: content.paragraphs,
			Tables:     content.tables,
		}
		if notes := notesPart(p, part); notes != "" {
			if data, err := p.ReadFile(notes); err == nil {
				if nc, err := parseSlideXML(data); err == nil {
					s.Notes = strings.Join(nc.paragraphs, "\n")
				}
			}
		}
		slides = append(slides, s)
	}
	return slides, nil
}

// slideOrder returns slide part names in presentation order, falling back to
// name order when presentation.xml lists none.
func slideOrder(p *Package) ([]string, error) {
	data, err := p.ReadFile(presentation)
	if err != nil {
		return nil, err
	}
	rels, err := p.Relationships(presentation)
	if err != nil {
		return nil, err
	}

	var parts []string
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", presentation, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sldId" {
			continue
		}
		if rel, ok := rels[relAttr(se, "id")]; ok {
			parts = append(parts, ResolveTarget(presentation, rel.Target))
		}
	}
	if len(parts) == 0 {
		parts = p.Files("ppt/slides/slide", ".xml")
	}
	return parts, nil
}

func notesPart(p *Package, slide string) string {
	rels, err := p.Relationships(slide)
	if err != nil {
		return ""
	}
	for _, rel := range rels {
		if strings.HasSuffix(rel.Type, "/notesSlide") {
			return ResolveTarget(slide, rel.Target)
		}
	}
	return ""
}

type slideContent struct {
	title      []string
	paragraphs []string
	tables     [][][]string
}

// parseSlideXML walks shapes (p:sp) and tables (a:tbl). Text in a title
// placeholder becomes the title; slide-number, date and footer placeholders
// are dropped.
func parseSlideXML(data []byte) (*slideContent, error) {
	var (
		out       slideContent
		para      strings.Builder
		inText    bool
		shapeRole string

		inTable bool
		rows    [][]string
		row     []string
		cell    []string
	)
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return &out, nil
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				shapeRole = ""
			case "ph":
				shapeRole = attr(t, "type")
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "br":
				para.WriteString(" ")
			case "tbl":
				inTable, rows = true, nil
			case "tr":
				row = nil
			case "tc":
				cell = nil
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				text := strings.TrimSpace(para.String())
				para.Reset()
				if text == "" {
					continue
				}
				switch {
				case inTable:
					cell = append(cell, text)
				case shapeRole == "title" || shapeRole == "ctrTitle":
					out.title = append(out.title, text)
				case shapeRole == "sldNum" || shapeRole == "dt" || shapeRole == "ftr":
				default:
					out.paragraphs = append(out.paragraphs, text)
				}
			case "tc":
				row = append(row, strings.Join(cell, " "))
			case "tr":
				rows = append(rows, row)
			case "tbl":
				inTable = false
				if len(rows) > 0 {
					out.tables = append(out.tables, rows)
				}
			case "sp":
				shapeRole = ""
			}
		case xml.CharData:
			if inText {
				para.Write(t)
			}
		}
	}
}
