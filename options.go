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
	"github.com/charmbracelet/log"

	"github.com/nicholasgasior/docbridge/internal/ocr"
	"github.com/nicholasgasior/docbridge/internal/safefetch"
)

// Option configures an Engine.
type Option func(*Engine)

// WithKeepDataURIs keeps base64 data URIs intact instead of truncating them.
func WithKeepDataURIs(keep bool) Option {
	return func(e *Engine) {
		e.keepDataURIs = keep
	}
}

// WithFetcher sets the fetcher used by ExtractURL.
func WithFetcher(f *safefetch.Fetcher) Option {
	return func(e *Engine) {
		e.fetcher = f
	}
}

// WithOCR sets the OCR engine used for images.
func WithOCR(o ocr.Engine) Option {
	return func(e *Engine) {
		e.recognizer = o
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
