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
	"os"
	"strings"

	"github.com/extrame/xls"

	"github.com/nicholasgasior/docbridge/internal/mdtable"
)

// XlsConverter handles legacy XLS workbooks.
type XlsConverter struct{}

// NewXlsConverter creates a new XlsConverter.
func NewXlsConverter() *XlsConverter {
	return &XlsConverter{}
}

func (c *XlsConverter) Accepts(info StreamInfo) bool {
	if info.Extension == ".xls" {
		return true
	}
	mime := strings.ToLower(info.MIMEType)
	return strings.HasPrefix(mime, "application/vnd.ms-excel")
}

func (c *XlsConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	// extrame/xls opens by path.
	path := info.LocalPath
	if path == "" {
		tmp, err := os.CreateTemp("", "docbridge-*.xls")
		if err != nil {
			return nil, fmt.Errorf("create temp file: %w", err)
		}
		path = tmp.Name()
		defer os.Remove(path)

		_, err = io.Copy(tmp, reader)
		if cerr := tmp.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return nil, fmt.Errorf("write temp file: %w", err)
		}
	}

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open XLS: %w", err)
	}

	var sheets []workbookSheet
	for i := 0; i < wb.NumSheets(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}

		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for col := 0; col < row.LastCol(); col++ {
				cells = append(cells, row.Col(col))
			}
			rows = append(rows, cells)
		}
		sheets = append(sheets, workbookSheet{name: name, rows: rows})
	}

	ex := renderWorkbook(sheets)
	ex.MIMEType = "application/vnd.ms-excel"
	return ex, nil
}

type workbookSheet struct {
	name string
	rows [][]string
}

// renderWorkbook writes one "## name" section with a table per non-empty
// sheet. Metadata records the sheet names.
func renderWorkbook(sheets []workbookSheet) *Extraction {
	var md strings.Builder
	names := make([]string, 0, len(sheets))
	for _, s := range sheets {
		names = append(names, s.name)
		if len(s.rows) == 0 {
			continue
		}
		fmt.Fprintf(&md, "## %s\n\n", s.name)
		md.WriteString(mdtable.Render(s.rows))
		md.WriteString("\n")
	}
	return &Extraction{
		Content:  md.String(),
		Metadata: map[string]any{"sheets": names},
	}
}
