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
	"io"
)

// StreamInfo carries metadata about the input stream.
type StreamInfo struct {
	MIMEType  string
	Extension string // e.g. ".pdf" (lowercase, with dot)
	Charset   string
	Filename  string
	LocalPath string
	URL       string
}

// Extraction is the result of converting a document to text.
type Extraction struct {
	// Content is Markdown.
	Content  string         `json:"content" yaml:"content"`
	MIMEType string         `json:"mime_type" yaml:"mime_type"`
	Title    string         `json:"title,omitempty" yaml:"title,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	// QualityScore is in [0, 1] for converters that can judge their output
	// (PDF text layers, OCR); nil otherwise.
	QualityScore *float64 `json:"quality_score,omitempty" yaml:"quality_score,omitempty"`
}

// ExtractOptions tunes a single extraction.
type ExtractOptions struct {
	// OCR runs text recognition on images. If the OCR engine is missing the
	// extraction is retried once without it.
	OCR bool
	// ForceOCR is OCR without the fallback: a missing engine is an error.
	ForceOCR bool
}

func (o ExtractOptions) ocrEnabled() bool {
	return o.OCR || o.ForceOCR
}

// DocumentConverter converts one family of document formats.
type DocumentConverter interface {
	// Accepts returns true if this converter can handle the given input.
	// It MUST NOT change the read position of reader.
	Accepts(info StreamInfo) bool

	// Convert performs the actual document-to-text conversion.
	Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, opts ExtractOptions) (*Extraction, error)
}
