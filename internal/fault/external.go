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

package fault

import "strings"

// externalRule maps substrings of a wrapped tool's error text to a Kind.
// All substrings in match must be present (case-insensitive).
type externalRule struct {
	match []string
	kind  Kind
}

// externalRules is a best-effort translation of free-form error text from
// Tesseract and Pandoc. Those tools do not expose error codes and may reword
// their messages between releases, so a miss here degrades to Internal.
var externalRules = []externalRule{
	{[]string{"tesseract", "not installed"}, OCRUnavailable},
	{[]string{"tesseract", "not found"}, OCRUnavailable},
	{[]string{"tesseract", "executable file not found"}, OCRUnavailable},
	{[]string{"tessdata", "error opening data file"}, OCRUnavailable},
	{[]string{"pandoc", "executable file not found"}, RendererNotInstalled},
	{[]string{"pandoc", "not found"}, RendererNotInstalled},
	{[]string{"pandoc", "not installed"}, RendererNotInstalled},
}

// ClassifyExternal guesses the Kind of an error message produced by an external
// extractor or renderer.
func ClassifyExternal(message string) Kind {
	msg := strings.ToLower(message)
	for _, r := range externalRules {
		ok := true
		for _, m := range r.match {
			if !strings.Contains(msg, m) {
				ok = false
				break
			}
		}
		if ok {
			return r.kind
		}
	}
	return Internal
}

// ClassifyExternalError is ClassifyExternal applied to err. Structured errors
// keep their own kind.
func ClassifyExternalError(err error) Kind {
	if err == nil {
		return ""
	}
	if k := KindOf(err); k != Internal {
		return k
	}
	return ClassifyExternal(err.Error())
}
