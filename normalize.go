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
	"math"
	"regexp"
	"strings"
	"unicode"
)

var (
	reTrailingWhitespace = regexp.MustCompile(`[ \t]+\n`)
	reMultipleNewlines   = regexp.MustCompile(`\n{3,}`)
	reDataURI            = regexp.MustCompile(`(data:[a-zA-Z0-9/+.-]+;base64,)[A-Za-z0-9+/=]{64,}`)
)

// normalizeOutput makes converter output uniform: valid UTF-8, LF line
// endings, no control characters except tab and newline, no trailing
// blanks, at most one empty line in a row, trimmed.
func normalizeOutput(s string) string {
	s = strings.ToValidUTF8(s, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			return r
		}
		return -1
	}, s)
	s = reTrailingWhitespace.ReplaceAllString(s+"\n", "\n")
	s = reMultipleNewlines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// truncateDataURIs shortens long base64 data URIs to "data:mime;base64,...".
func truncateDataURIs(md string) string {
	return reDataURI.ReplaceAllString(md, "${1}...")
}

// qualityScore rates extracted text from 0 to 1 by the share of runes that
// look like prose (letters, digits, punctuation, spacing). Replacement
// characters and private-use glyphs, typical of broken font maps, count
// against it. Empty text scores 0.
func qualityScore(text string) float64 {
	var total, good float64
	for _, r := range text {
		total++
		switch {
		case r == unicode.ReplacementChar, unicode.Is(unicode.Co, r):
			good--
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			good++
		}
	}
	if total == 0 {
		return 0
	}
	score := math.Max(0, good/total)
	return math.Round(score*1000) / 1000
}

func scorePtr(f float64) *float64 {
	return &f
}
