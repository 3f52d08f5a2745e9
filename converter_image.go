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
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/ocr"
)

// ImageConverter reports image dimensions and, with OCR enabled, the text
// recognized in the image.
type ImageConverter struct {
	engine ocr.Engine
}

// NewImageConverter creates an ImageConverter. A nil engine makes every OCR
// request fail with OCRUnavailable.
func NewImageConverter(engine ocr.Engine) *ImageConverter {
	return &ImageConverter{engine: engine}
}

func (c *ImageConverter) Accepts(info StreamInfo) bool {
	switch info.Extension {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return strings.HasPrefix(strings.ToLower(info.MIMEType), "image/")
}

func (c *ImageConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, opts ExtractOptions) (*Extraction, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}

	meta := map[string]any{}
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		meta["width"] = cfg.Width
		meta["height"] = cfg.Height
		meta["format"] = format
	}
	ex := &Extraction{MIMEType: info.MIMEType, Metadata: meta}
	if !opts.ocrEnabled() {
		return ex, nil
	}

	if c.engine == nil {
		return nil, fault.New(fault.OCRUnavailable, "no OCR engine is configured").
			WithHint("enable OCR in the config or run without --ocr")
	}
	ext := info.Extension
	if ext == "" {
		ext = ".png"
	}
	text, err := c.engine.Recognize(ctx, data, ext)
	if err != nil {
		return nil, err
	}
	ex.Content = text
	ex.QualityScore = scorePtr(qualityScore(text))
	meta["ocr"] = true
	return ex, nil
}
