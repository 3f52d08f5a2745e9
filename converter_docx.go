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
	"strings"

	"github.com/nicholasgasior/docbridge/internal/ooxml"
)

const docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// DocxConverter handles Word documents.
type DocxConverter struct{}

// NewDocxConverter creates a new DocxConverter.
func NewDocxConverter() *DocxConverter {
	return &DocxConverter{}
}

func (c *DocxConverter) Accepts(info StreamInfo) bool {
	if info.Extension == ".docx" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(info.MIMEType), docxMIME)
}

func (c *DocxConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	pkg, err := openPackage(reader)
	if err != nil {
		return nil, fmt.Errorf("open DOCX: %w", err)
	}
	doc, err := ooxml.ReadWord(pkg)
	if err != nil {
		return nil, fmt.Errorf("read DOCX: %w", err)
	}
	return &Extraction{
		Content:  doc.Markdown,
		MIMEType: docxMIME,
		Title:    doc.Title,
	}, nil
}

func openPackage(reader io.Reader) (*ooxml.Package, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	return ooxml.Open(bytes.NewReader(data), int64(len(data)))
}
