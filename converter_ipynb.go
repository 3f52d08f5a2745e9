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
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// IpynbConverter handles Jupyter notebooks.
type IpynbConverter struct{}

// NewIpynbConverter creates a new IpynbConverter.
func NewIpynbConverter() *IpynbConverter {
	return &IpynbConverter{}
}

func (c *IpynbConverter) Accepts(info StreamInfo) bool {
	return info.Extension == ".ipynb" || strings.HasPrefix(strings.ToLower(info.MIMEType), "application/x-ipynb")
}

type notebook struct {
	Metadata struct {
		KernelSpec *struct {
			Language string `json:"language"`
			Name     string `json:"name"`
		} `json:"kernelspec"`
		LanguageInfo *struct {
			Name string `json:"name"`
		} `json:"language_info"`
		Title string `json:"title"`
	} `json:"metadata"`
	Cells []struct {
		CellType string          `json:"cell_type"`
		Source   multilineString `json:"source"`
		Outputs  []struct {
			OutputType string                     `json:"output_type"`
			Text       multilineString            `json:"text"`
			Data       map[string]multilineString `json:"data"`
			EName      string                     `json:"ename"`
			EValue     string                     `json:"evalue"`
		} `json:"outputs"`
	} `json:"cells"`
}

// multilineString is a notebook text field, stored either as one string or
// as a list of lines.
type multilineString string

func (m *multilineString) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*m = multilineString(s)
		return nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		// Non-text payloads (numbers, objects) are ignored.
		*m = ""
		return nil
	}
	*m = multilineString(strings.Join(lines, ""))
	return nil
}

func (c *IpynbConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	var nb notebook
	if err := json.NewDecoder(reader).Decode(&nb); err != nil {
		return nil, fmt.Errorf("parse notebook JSON: %w", err)
	}

	language := "python"
	switch {
	case nb.Metadata.KernelSpec != nil && nb.Metadata.KernelSpec.Language != "":
		language = nb.Metadata.KernelSpec.Language
	case nb.Metadata.LanguageInfo != nil && nb.Metadata.LanguageInfo.Name != "":
		language = nb.Metadata.LanguageInfo.Name
	}

	title := nb.Metadata.Title
	var sections []string
	codeCells := 0
	for _, cell := range nb.Cells {
		source := string(cell.Source)
		switch cell.CellType {
		case "markdown":
			sections = append(sections, source)
			if title == "" {
				title = markdownTitle(source)
			}
		case "code":
			codeCells++
			if strings.TrimSpace(source) != "" {
				sections = append(sections, fmt.Sprintf("```%s\n%s\n```", language, source))
			}
			for _, out := range cell.Outputs {
				text := string(out.Text)
				if text == "" {
					text = string(out.Data["text/plain"])
				}
				if out.OutputType == "error" && text == "" {
					text = out.EName + ": " + out.EValue
				}
				if text = strings.TrimRight(text, "\n"); text != "" {
					sections = append(sections, fmt.Sprintf("```\n%s\n```", text))
				}
			}
		case "raw":
			if strings.TrimSpace(source) != "" {
				sections = append(sections, fmt.Sprintf("```\n%s\n```", source))
			}
		}
	}

	return &Extraction{
		Content:  strings.Join(sections, "\n\n"),
		MIMEType: "application/x-ipynb+json",
		Title:    title,
		Metadata: map[string]any{
			"language":   language,
			"cells":      len(nb.Cells),
			"code_cells": codeCells,
		},
	}, nil
}
