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
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/mdtable"
)

// CsvConverter renders CSV and TSV files as Markdown tables.
type CsvConverter struct{}

// NewCsvConverter creates a new CsvConverter.
func NewCsvConverter() *CsvConverter {
	return &CsvConverter{}
}

func (c *CsvConverter) Accepts(info StreamInfo) bool {
	switch info.Extension {
	case ".csv", ".tsv":
		return true
	}
	mime := strings.ToLower(info.MIMEType)
	return strings.HasPrefix(mime, "text/csv") ||
		strings.HasPrefix(mime, "application/csv") ||
		strings.HasPrefix(mime, "text/tab-separated-values")
}

func (c *CsvConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	text := strings.TrimPrefix(decodeText(data, info.Charset), "\ufeff")

	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if info.Extension == ".tsv" || strings.HasPrefix(strings.ToLower(info.MIMEType), "text/tab-separated-values") {
		r.Comma = '\t'
	}
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}

	ex := &Extraction{
		Content:  mdtable.Render(records),
		MIMEType: "text/csv",
	}
	if len(records) > 0 {
		ex.Metadata = map[string]any{
			"rows":    len(records) - 1,
			"columns": len(records[0]),
		}
	}
	return ex, nil
}
