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

// Package ocr recognizes text in images with the Tesseract command-line tool.
package ocr

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

const installHint = "install Tesseract (https://tesseract-ocr.github.io) or run without --ocr"

// Engine recognizes text in an encoded image.
type Engine interface {
	Recognize(ctx context.Context, image []byte, ext string) (string, error)
}

// Tesseract runs the tesseract binary once per image.
type Tesseract struct {
	Binary   string
	Language string
	Logger   *log.Logger

	// lookPath is swapped in tests.
	lookPath func(string) (string, error)
}

// NewTesseract returns a Tesseract engine. Empty binary and language default
// to "tesseract" and "eng".
func NewTesseract(binary, language string, logger *log.Logger) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Tesseract{Binary: binary, Language: language, Logger: logger, lookPath: exec.LookPath}
}

// Available reports whether the binary can be found.
func (t *Tesseract) Available() error {
	if _, err := t.lookPath(t.Binary); err != nil {
		return fault.Wrap(fault.OCRUnavailable, err, "tesseract is not installed or not on PATH").WithHint(installHint)
	}
	return nil
}

// Recognize writes image to a temporary file named with ext, so Tesseract
// can detect the format, and returns the recognized text.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, ext string) (string, error) {
	if err := t.Available(); err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp("", "docbridge-ocr-*"+ext)
	if err != nil {
		return "", fault.Wrap(fault.Internal, err, "create temp file for OCR")
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(image); err != nil {
		_ = tmp.Close()
		return "", fault.Wrap(fault.Internal, err, "write temp file for OCR")
	}
	if err := tmp.Close(); err != nil {
		return "", fault.Wrap(fault.Internal, err, "close temp file for OCR")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.Binary, tmpPath, "stdout", "-l", t.Language)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		t.Logger.Debug("tesseract failed", "err", err, "stderr", detail)
		if fault.ClassifyExternal("tesseract: "+detail+" "+err.Error()) == fault.OCRUnavailable {
			return "", fault.Wrap(fault.OCRUnavailable, err, "tesseract cannot run: %s", detail).WithHint(installHint)
		}
		return "", fault.Wrap(fault.Internal, err, "tesseract: %s", detail)
	}
	return strings.TrimSpace(string(out)), nil
}
