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
	"strconv"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/mdtable"
)

const wordDocument = "word/document.xml"

// WordDocument is the Markdown rendering of a .docx body.
type WordDocument struct {
	Markdown string
	// Title is the first Title-styled paragraph, else the first top-level
	// heading.
	Title string
}

// ReadWord renders the main document part of a Word package as Markdown.
// Headings, list items, tables and hyperlinks are kept; run formatting is not.
func ReadWord(p *Package) (*WordDocument, error) {
	data, err := p.ReadFile(wordDocument)
	if err != nil {
		return nil, err
	}
	rels, err := p.Relationships(wordDocument)
	if err != nil {
		return nil, err
	}
	w := &wordWriter{
		styles: readStyleNames(p),
		rels:   rels,
	}
	if err := w.walk(xml.NewDecoder(bytes.NewReader(data))); err != nil {
		return nil, fmt.Errorf("parse %s: %w", wordDocument, err)
	}
	return &WordDocument{
		Markdown: strings.Join(w.blocks, "\n\n"),
		Title:    w.title,
	}, nil
}

// readStyleNames maps style IDs to lower-cased style names. A missing or
// unreadable styles part yields an empty map.
func readStyleNames(p *Package) map[string]string {
	names := make(map[string]string)
	data, err := p.ReadFile("word/styles.xml")
	if err != nil {
		return names
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var current string
	for {
		tok, err := dec.Token()
		if err != nil {
			return names
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "style":
			current = attr(se, "styleId")
		case "name":
			if current != "" {
				names[current] = strings.ToLower(attr(se, "val"))
			}
		}
	}
}

type wordWriter struct {
	styles map[string]string
	rels   map[string]Relationship

	blocks []string
	title  string

	para    strings.Builder
	style   string
	listLvl int
	inList  bool
	inText  bool

	linkURL   string
	linkStart int

	tableDepth int
	rows       [][]string
	row        []string
	cell       []string
}

func (w *wordWriter) walk(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.start(t)
		case xml.EndElement:
			w.end(t)
		case xml.CharData:
			if w.inText {
				w.para.Write(t)
			}
		}
	}
}

func (w *wordWriter) start(se xml.StartElement) {
	switch se.Name.Local {
	case "p":
		w.para.Reset()
		w.style = ""
		w.inList = false
		w.listLvl = 0
	case "pStyle":
		w.style = attr(se, "val")
	case "numPr":
		w.inList = true
	case "ilvl":
		if n, err := strconv.Atoi(attr(se, "val")); err == nil {
			w.listLvl = n
		}
	case "t":
		w.inText = true
	case "tab":
		w.para.WriteString("\t")
	case "br", "cr":
		w.para.WriteString(" ")
	case "hyperlink":
		w.linkURL = ""
		if rel, ok := w.rels[relAttr(se, "id")]; ok && rel.External() {
			w.linkURL = rel.Target
		}
		w.linkStart = w.para.Len()
	case "tbl":
		w.tableDepth++
		if w.tableDepth == 1 {
			w.rows = nil
		}
	case "tr":
		if w.tableDepth == 1 {
			w.row = nil
		}
	case "tc":
		if w.tableDepth == 1 {
			w.cell = nil
		}
	}
}

func (w *wordWriter) end(ee xml.EndElement) {
	switch ee.Name.Local {
	case "t":
		w.inText = false
	case "hyperlink":
		if w.linkURL != "" {
			s := w.para.String()
			text := s[w.linkStart:]
			w.para.Reset()
			w.para.WriteString(s[:w.linkStart])
			if strings.TrimSpace(text) == "" {
				text = w.linkURL
			}
			fmt.Fprintf(&w.para, "[%s](%s)", text, w.linkURL)
		}
		w.linkURL = ""
	case "p":
		w.finishParagraph()
	case "tc":
		if w.tableDepth == 1 {
			w.row = append(w.row, strings.Join(w.cell, " "))
		}
	case "tr":
		if w.tableDepth == 1 {
			w.rows = append(w.rows, w.row)
		}
	case "tbl":
		if w.tableDepth == 1 && len(w.rows) > 0 {
			w.blocks = append(w.blocks, strings.TrimRight(mdtable.Render(w.rows), "\n"))
		}
		w.tableDepth--
	}
}

func (w *wordWriter) finishParagraph() {
	text := strings.TrimSpace(w.para.String())
	w.para.Reset()
	if text == "" {
		return
	}
	if w.tableDepth > 0 {
		w.cell = append(w.cell, text)
		return
	}

	name := w.styles[w.style]
	if name == "" {
		name = strings.ToLower(w.style)
	}
	switch level := headingLevel(name); {
	case name == "title":
		if w.title == "" {
			w.title = text
		}
		w.blocks = append(w.blocks, "# "+text)
	case level > 0:
		if w.title == "" && level == 1 {
			w.title = text
		}
		w.blocks = append(w.blocks, strings.Repeat("#", level)+" "+text)
	case w.inList:
		item := strings.Repeat("  ", w.listLvl) + "- " + text
		// Consecutive items form one list block.
		if n := len(w.blocks); n > 0 && strings.HasPrefix(strings.TrimLeft(w.blocks[n-1], " "), "- ") {
			w.blocks[n-1] += "\n" + item
			return
		}
		w.blocks = append(w.blocks, item)
	default:
		w.blocks = append(w.blocks, text)
	}
}

// headingLevel parses "heading 1" style names (and "heading1" IDs) into a
// level from 1 to 6; anything else is 0.
func headingLevel(name string) int {
	rest, ok := strings.CutPrefix(name, "heading")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 1 {
		return 0
	}
	return min(n, 6)
}
