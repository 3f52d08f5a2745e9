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
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// PlainTextConverter handles plain text, Markdown, JSON and YAML files.
type PlainTextConverter struct{}

// NewPlainTextConverter creates a new PlainTextConverter.
func NewPlainTextConverter() *PlainTextConverter {
	return &PlainTextConverter{}
}

func (c *PlainTextConverter) Accepts(info StreamInfo) bool {
	switch info.Extension {
	case ".txt", ".text", ".log", ".md", ".markdown", ".json", ".jsonl", ".yaml", ".yml":
		return true
	}
	mime := strings.ToLower(info.MIMEType)
	return strings.HasPrefix(mime, "text/") ||
		strings.HasPrefix(mime, "application/json") ||
		strings.HasPrefix(mime, "application/markdown") ||
		strings.HasPrefix(mime, "application/yaml")
}

func (c *PlainTextConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	text := decodeText(data, info.Charset)
	return &Extraction{
		Content: text,
		Title:   markdownTitle(text),
	}, nil
}

// markdownTitle returns the text of the first level-one ATX heading.
func markdownTitle(md string) string {
	for _, line := range strings.Split(md, "\n") {
		if t, ok := strings.CutPrefix(strings.TrimSpace(line), "# "); ok {
			return strings.TrimSpace(t)
		}
	}
	return ""
}

// decodeText converts data to UTF-8. A declared charset is trusted when it
// decodes cleanly; otherwise the encoding is detected.
func decodeText(data []byte, charset string) string {
	if charset != "" {
		if enc := lookupEncoding(charset); enc != nil {
			if decoded, err := enc.NewDecoder().Bytes(data); err == nil {
				return string(decoded)
			}
		}
	}
	return decodeWithDetection(data)
}

// decodeWithDetection detects the encoding of data and decodes it to UTF-8.
// Valid UTF-8 is returned unchanged. Otherwise every chardet candidate is
// decoded and the most plausible result wins.
func decodeWithDetection(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}

	results, err := chardet.NewTextDetector().DetectAll(data)
	if err != nil || len(results) == 0 {
		return strings.ToValidUTF8(string(data), "�")
	}

	best, bestScore := "", -1<<31
	for _, r := range results {
		enc := lookupEncoding(r.Charset)
		if enc == nil {
			continue
		}
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		s := string(decoded)
		if score := plausibility(s, r.Confidence); score > bestScore {
			best, bestScore = s, score
		}
	}
	if best == "" {
		return strings.ToValidUTF8(string(data), "�")
	}
	return best
}

// commonCJK holds frequent Chinese and Japanese ideographs. chardet often
// labels CJK text as a Latin code page, so decodings rich in these score
// higher than ones full of rare ideographs.
const commonCJK = "的一是不了人我在有他这中大来上个国到说们为你对生能地下过子" +
	"那要就出会也好开后还事多么然于心可她自之年时发作里如果所成等都没把最" +
	"而又同它种间其信表安正回力长外内动见想用前天月日学方去手电话被从经当" +
	"意进面头起第各名東京大阪田中山本高野村松井川口石原林森小左右男女白黒" +
	"赤青金木水火土目耳足口気入出分切行見聞話読書食飲買売使合知思言語文字数" +
	"百千万円時計色形声音楽歌画図体仕社員店場所駅道町市区県州世界全部物花"

// plausibility scores how coherent a decoded text looks, starting from the
// detector's confidence.
func plausibility(text string, confidence int) int {
	score := confidence
	for _, r := range text {
		switch {
		case r == utf8.RuneError:
			score -= 10
		case r < 0x20 && r != '\n' && r != '\r' && r != '\t':
			score -= 5
		case r >= 0x3040 && r <= 0x30FF, r >= 0xFF00 && r <= 0xFFEF:
			score += 5
		case unicode.Is(unicode.Han, r):
			if strings.ContainsRune(commonCJK, r) {
				score += 5
			} else {
				score++
			}
		case r < 0x80 && unicode.IsLetter(r):
			score++
		}
	}
	return score
}

// chardetAliases maps chardet charset names that the WHATWG index does not
// know to ones it does.
var chardetAliases = map[string]string{
	"gb-18030":     "gb18030",
	"iso-8859-8-i": "iso-8859-8",
	"utf-32be":     "",
	"utf-32le":     "",
}

// lookupEncoding maps a charset label to an encoding, or nil when unknown.
func lookupEncoding(charset string) encoding.Encoding {
	name := strings.ToLower(strings.TrimSpace(charset))
	if alias, ok := chardetAliases[name]; ok {
		if alias == "" {
			return nil
		}
		name = alias
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil
	}
	return enc
}
