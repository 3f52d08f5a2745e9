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
	"errors"
	"fmt"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// unsupportedFormat is returned when no converter accepts the input.
func unsupportedFormat(info StreamInfo) error {
	parts := []string{"unsupported format"}
	if info.Extension != "" {
		parts = append(parts, fmt.Sprintf("extension=%q", info.Extension))
	}
	if info.MIMEType != "" {
		parts = append(parts, fmt.Sprintf("mime=%q", info.MIMEType))
	}
	return fault.New(fault.Unsupported, "%s", strings.Join(parts, " ")).
		WithHint("run `docbridge formats` to list supported inputs")
}

// FailedConversionAttempt records a converter that accepted the input but
// failed to convert it.
type FailedConversionAttempt struct {
	Converter string
	Err       error
}

// ConversionError is returned when every accepting converter failed.
type ConversionError struct {
	Attempts []FailedConversionAttempt
}

func (e *ConversionError) Error() string {
	if len(e.Attempts) == 0 {
		return "conversion failed"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "conversion failed after %d attempt(s):", len(e.Attempts))
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "\n  %s: %v", a.Converter, a.Err)
	}
	return b.String()
}

// Unwrap exposes every attempt's error, so errors.Is and errors.As see the
// structured failures underneath.
func (e *ConversionError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// IsUnsupportedFormat reports whether err means no converter handles the input.
func IsUnsupportedFormat(err error) bool {
	return errors.Is(err, fault.ErrUnsupported)
}
