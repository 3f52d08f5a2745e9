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
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
)

const (
	maxZipEntries    = 1000
	maxZipEntryBytes = 50 << 20
	maxZipDepth      = 2
)

type zipDepthKey struct{}

// ZipConverter extracts every supported file inside a ZIP archive.
type ZipConverter struct {
	engine *Engine
}

// NewZipConverter creates a ZipConverter that converts entries with e.
func NewZipConverter(e *Engine) *ZipConverter {
	return &ZipConverter{engine: e}
}

func (c *ZipConverter) Accepts(info StreamInfo) bool {
	if info.Extension == ".zip" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(info.MIMEType), "application/zip")
}

func (c *ZipConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, opts ExtractOptions) (*Extraction, error) {
	depth, _ := ctx.Value(zipDepthKey{}).(int)
	if depth >= maxZipDepth {
		return nil, fmt.Errorf("archives nested deeper than %d levels", maxZipDepth)
	}
	ctx = context.WithValue(ctx, zipDepthKey{}, depth+1)

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read ZIP: %w", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open ZIP: %w", err)
	}
	if len(zr.File) > maxZipEntries {
		return nil, fmt.Errorf("ZIP has %d entries, limit is %d", len(zr.File), maxZipEntries)
	}

	name := info.Filename
	if name == "" {
		name = "archive"
	}
	var md strings.Builder
	fmt.Fprintf(&md, "Content from the zip file `%s`:\n\n", name)

	var converted, skipped []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		body, err := readZipEntry(f)
		if err != nil {
			skipped = append(skipped, f.Name)
			continue
		}
		entry := StreamInfo{
			Extension: strings.ToLower(path.Ext(f.Name)),
			Filename:  path.Base(f.Name),
		}
		ex, err := c.engine.ExtractReader(ctx, bytes.NewReader(body), entry, opts)
		if err != nil || strings.TrimSpace(ex.Content) == "" {
			skipped = append(skipped, f.Name)
			continue
		}
		converted = append(converted, f.Name)
		fmt.Fprintf(&md, "## File: %s\n\n%s\n\n", f.Name, ex.Content)
	}

	return &Extraction{
		Content:  md.String(),
		MIMEType: "application/zip",
		Metadata: map[string]any{
			"converted": converted,
			"skipped":   skipped,
		},
	}, nil
}

func readZipEntry(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxZipEntryBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", f.Name, maxZipEntryBytes)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxZipEntryBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxZipEntryBytes {
		return nil, fmt.Errorf("%s is larger than %d bytes", f.Name, maxZipEntryBytes)
	}
	return data, nil
}
