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

// Package docbridge converts documents to LLM-friendly text and renders
// Markdown back into documents.
package docbridge

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gabriel-vasile/mimetype"

	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/ocr"
	"github.com/nicholasgasior/docbridge/internal/safefetch"
)

const (
	// PrioritySpecific is for format-specific converters (PDF, DOCX, etc.).
	PrioritySpecific = 0.0
	// PriorityGeneric is for fallback converters (PlainText, HTML, ZIP).
	PriorityGeneric = 10.0
)

type registeredConverter struct {
	converter DocumentConverter
	priority  float64
	name      string
}

// Engine is the document extraction engine.
type Engine struct {
	converters   []registeredConverter
	keepDataURIs bool
	fetcher      *safefetch.Fetcher
	recognizer   ocr.Engine
	logger       *log.Logger
}

// New creates an Engine with the built-in converters.
func New(opts ...Option) *Engine {
	e := &Engine{logger: log.New(io.Discard)}
	for _, opt := range opts {
		opt(e)
	}
	if e.fetcher == nil {
		e.fetcher = safefetch.New(safefetch.WithLogger(e.logger))
	}
	e.enableBuiltins()
	return e
}

// RegisterConverter adds a custom converter with the given priority.
// Lower priority values are tried first.
func (e *Engine) RegisterConverter(name string, c DocumentConverter, priority float64) {
	e.converters = append(e.converters, registeredConverter{
		converter: c,
		priority:  priority,
		name:      name,
	})
	sort.SliceStable(e.converters, func(i, j int) bool {
		return e.converters[i].priority < e.converters[j].priority
	})
}

// Converters lists registered converter names in the order they are tried.
func (e *Engine) Converters() []string {
	names := make([]string, len(e.converters))
	for i, rc := range e.converters {
		names[i] = rc.name
	}
	return names
}

// IsURL reports whether source looks like an http(s) URL rather than a path.
func IsURL(source string) bool {
	s := strings.ToLower(source)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Extract auto-detects the source type (file path or URL) and extracts it.
func (e *Engine) Extract(ctx context.Context, source string, opts ExtractOptions) (*Extraction, error) {
	if IsURL(source) {
		return e.ExtractURL(ctx, source, opts)
	}
	return e.ExtractFile(ctx, source, opts)
}

// ExtractFile extracts a local file.
func (e *Engine) ExtractFile(ctx context.Context, path string, opts ExtractOptions) (*Extraction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(path))
	info := StreamInfo{
		Extension: ext,
		Filename:  filepath.Base(path),
		LocalPath: path,
		MIMEType:  detectMIMEType(f, ext),
	}
	return e.ExtractReader(ctx, f, info, opts)
}

// ExtractReader extracts a stream described by info. When OCR was requested
// but the OCR engine is unavailable, the extraction is retried once without
// OCR unless ForceOCR is set.
func (e *Engine) ExtractReader(ctx context.Context, r io.ReadSeeker, info StreamInfo, opts ExtractOptions) (*Extraction, error) {
	if info.MIMEType == "" {
		info.MIMEType = detectMIMEType(r, info.Extension)
	}
	ex, err := e.extract(ctx, r, info, opts)
	if err == nil || !opts.OCR || opts.ForceOCR {
		return ex, err
	}
	if fault.ClassifyExternalError(err) != fault.OCRUnavailable {
		return nil, err
	}

	e.logger.Warn("OCR unavailable, retrying without OCR", "file", info.Filename, "err", err)
	opts.OCR = false
	ex, err = e.extract(ctx, r, info, opts)
	if err != nil {
		return nil, err
	}
	if ex.Metadata == nil {
		ex.Metadata = map[string]any{}
	}
	ex.Metadata["ocr_skipped"] = true
	return ex, nil
}

// ExtractURL downloads rawURL through the request-safety fetcher and extracts
// the body. The extension and filename come from the final URL after
// redirects.
func (e *Engine) ExtractURL(ctx context.Context, rawURL string, opts ExtractOptions) (*Extraction, error) {
	dl, err := e.fetcher.Download(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	info := StreamInfo{URL: dl.URL}
	if mt, params, err := mime.ParseMediaType(dl.ContentType); err == nil {
		info.MIMEType = mt
		info.Charset = params["charset"]
	}
	if u, err := url.Parse(dl.URL); err == nil {
		info.Extension = strings.ToLower(path.Ext(u.Path))
		if info.Extension != "" {
			info.Filename = path.Base(u.Path)
		}
	}

	reader := bytes.NewReader(dl.Body)
	if info.MIMEType == "" || info.MIMEType == "application/octet-stream" {
		info.MIMEType = detectMIMEType(reader, info.Extension)
	}
	ex, err := e.ExtractReader(ctx, reader, info, opts)
	if err != nil {
		return nil, err
	}
	if ex.Metadata == nil {
		ex.Metadata = map[string]any{}
	}
	ex.Metadata["source_url"] = dl.URL
	return ex, nil
}

// extract is the internal dispatch method.
func (e *Engine) extract(ctx context.Context, r io.ReadSeeker, info StreamInfo, opts ExtractOptions) (*Extraction, error) {
	var failedAttempts []FailedConversionAttempt

	for _, rc := range e.converters {
		if !rc.converter.Accepts(info) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("seek: %w", err)
		}

		result, err := rc.converter.Convert(ctx, r, info, opts)
		if err != nil {
			e.logger.Debug("converter failed", "converter", rc.name, "file", info.Filename, "err", err)
			failedAttempts = append(failedAttempts, FailedConversionAttempt{
				Converter: rc.name,
				Err:       err,
			})
			continue
		}

		result.Content = normalizeOutput(result.Content)
		if !e.keepDataURIs {
			result.Content = truncateDataURIs(result.Content)
		}
		if result.MIMEType == "" {
			result.MIMEType = info.MIMEType
		}
		e.logger.Debug("converted", "converter", rc.name, "file", info.Filename, "chars", len(result.Content))
		return result, nil
	}

	if len(failedAttempts) > 0 {
		return nil, &ConversionError{Attempts: failedAttempts}
	}
	return nil, unsupportedFormat(info)
}

// enableBuiltins registers all built-in converters.
func (e *Engine) enableBuiltins() {
	e.RegisterConverter("csv", NewCsvConverter(), PrioritySpecific)
	e.RegisterConverter("rss", NewRSSConverter(), PrioritySpecific)
	e.RegisterConverter("ipynb", NewIpynbConverter(), PrioritySpecific)
	e.RegisterConverter("docx", NewDocxConverter(), PrioritySpecific)
	e.RegisterConverter("xlsx", NewXlsxConverter(), PrioritySpecific)
	e.RegisterConverter("xls", NewXlsConverter(), PrioritySpecific)
	e.RegisterConverter("pptx", NewPptxConverter(), PrioritySpecific)
	e.RegisterConverter("pdf", NewPdfConverter(), PrioritySpecific)
	e.RegisterConverter("image", NewImageConverter(e.recognizer), PrioritySpecific)

	e.RegisterConverter("html", NewHTMLConverter(), PriorityGeneric)
	e.RegisterConverter("zip", NewZipConverter(e), PriorityGeneric)
	e.RegisterConverter("plaintext", NewPlainTextConverter(), PriorityGeneric)
}

// detectMIMEType sniffs the content, falling back to the extension table. The
// reader is rewound afterwards.
func detectMIMEType(r io.ReadSeeker, ext string) string {
	mtype, err := mimetype.DetectReader(r)
	_, _ = r.Seek(0, io.SeekStart)
	if err == nil && mtype.String() != "application/octet-stream" {
		// Office files sniff as zip and some text as text/plain; the
		// extension is more specific there.
		if byExt := mimeFromExtension(ext); byExt != "application/octet-stream" &&
			(mtype.Is("application/zip") || mtype.Is("text/plain")) {
			return byExt
		}
		return mtype.String()
	}
	return mimeFromExtension(ext)
}

// mimeFromExtension returns a MIME type for common extensions.
func mimeFromExtension(ext string) string {
	if m, ok := extensionMIME[ext]; ok {
		return m
	}
	return "application/octet-stream"
}

var extensionMIME = map[string]string{
	".pdf":      "application/pdf",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".xlsx":     "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xls":      "application/vnd.ms-excel",
	".html":     "text/html",
	".htm":      "text/html",
	".csv":      "text/csv",
	".txt":      "text/plain",
	".text":     "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".json":     "application/json",
	".jsonl":    "application/jsonl",
	".xml":      "text/xml",
	".rss":      "application/rss+xml",
	".atom":     "application/atom+xml",
	".zip":      "application/zip",
	".ipynb":    "application/x-ipynb+json",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".bmp":      "image/bmp",
	".webp":     "image/webp",
}

// SupportedExtensions lists the file extensions with a built-in converter.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extensionMIME))
	for ext := range extensionMIME {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
