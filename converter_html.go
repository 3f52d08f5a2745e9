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
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

// HTMLConverter handles HTML files.
type HTMLConverter struct{}

// NewHTMLConverter creates a new HTMLConverter.
func NewHTMLConverter() *HTMLConverter {
	return &HTMLConverter{}
}

func (c *HTMLConverter) Accepts(info StreamInfo) bool {
	switch info.Extension {
	case ".html", ".htm", ".xhtml":
		return true
	}
	mime := strings.ToLower(info.MIMEType)
	return strings.HasPrefix(mime, "text/html") || strings.HasPrefix(mime, "application/xhtml")
}

func (c *HTMLConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	text := decodeText(data, info.Charset)

	md, err := htmlToMarkdown(text)
	if err != nil {
		return nil, err
	}
	head := readHTMLHead(text)
	ex := &Extraction{
		Content:  md,
		MIMEType: "text/html",
		Title:    head.title,
	}
	if len(head.meta) > 0 {
		ex.Metadata = head.meta
	}
	return ex, nil
}

var (
	reScript = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`)
	reStyle  = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`)
)

// htmlToMarkdown converts an HTML fragment or page to Markdown with ATX
// headings and GFM tables. Script and style elements are dropped first.
func htmlToMarkdown(src string) (string, error) {
	src = reScript.ReplaceAllString(src, "")
	src = reStyle.ReplaceAllString(src, "")

	conv := converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(
				commonmark.WithHeadingStyle("atx"),
			),
			table.NewTablePlugin(),
		),
	)
	md, err := conv.ConvertString(src)
	if err != nil {
		return "", fmt.Errorf("convert HTML to markdown: %w", err)
	}
	return md, nil
}

type htmlHead struct {
	title string
	meta  map[string]any
}

// readHTMLHead collects the <title> and the description, author and
// keywords <meta> tags, plus the document language.
func readHTMLHead(src string) htmlHead {
	head := htmlHead{meta: map[string]any{}}
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return head
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "html":
				if lang := htmlAttr(n, "lang"); lang != "" {
					head.meta["language"] = lang
				}
			case "title":
				if head.title == "" && n.FirstChild != nil {
					head.title = strings.TrimSpace(n.FirstChild.Data)
				}
			case "meta":
				name := strings.ToLower(htmlAttr(n, "name"))
				switch name {
				case "description", "author", "keywords":
					if v := strings.TrimSpace(htmlAttr(n, "content")); v != "" {
						head.meta[name] = v
					}
				}
			case "body":
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return head
}

func htmlAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
