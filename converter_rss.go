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

	"github.com/mmcdole/gofeed"
)

// RSSConverter renders RSS, Atom and JSON feeds.
type RSSConverter struct{}

// NewRSSConverter creates a new RSSConverter.
func NewRSSConverter() *RSSConverter {
	return &RSSConverter{}
}

func (c *RSSConverter) Accepts(info StreamInfo) bool {
	switch info.Extension {
	case ".rss", ".atom", ".xml":
		return true
	}
	mime := strings.ToLower(info.MIMEType)
	for _, p := range []string{"application/rss", "application/atom", "application/feed+json", "text/xml", "application/xml"} {
		if strings.HasPrefix(mime, p) {
			return true
		}
	}
	return false
}

func (c *RSSConverter) Convert(ctx context.Context, reader io.ReadSeeker, info StreamInfo, _ ExtractOptions) (*Extraction, error) {
	feed, err := gofeed.NewParser().Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	var b strings.Builder
	if feed.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", feed.Title)
	}
	if feed.Description != "" {
		b.WriteString(richText(feed.Description))
		b.WriteString("\n\n")
	}

	for _, item := range feed.Items {
		if item.Title != "" {
			fmt.Fprintf(&b, "## %s\n\n", item.Title)
		}
		switch {
		case item.Published != "":
			fmt.Fprintf(&b, "Published: %s\n\n", item.Published)
		case item.Updated != "":
			fmt.Fprintf(&b, "Updated: %s\n\n", item.Updated)
		}
		if item.Link != "" {
			fmt.Fprintf(&b, "Link: <%s>\n\n", item.Link)
		}
		body := item.Content
		if body == "" {
			body = item.Description
		}
		if body != "" {
			b.WriteString(richText(body))
			b.WriteString("\n\n")
		}
	}

	meta := map[string]any{
		"feed_type": feed.FeedType,
		"items":     len(feed.Items),
	}
	if feed.Link != "" {
		meta["link"] = feed.Link
	}
	return &Extraction{
		Content:  b.String(),
		MIMEType: feedMIME(feed.FeedType),
		Title:    feed.Title,
		Metadata: meta,
	}, nil
}

// richText converts feed text that looks like HTML to Markdown.
func richText(s string) string {
	if !strings.Contains(s, "<") || !strings.Contains(s, ">") {
		return s
	}
	if md, err := htmlToMarkdown(s); err == nil {
		return md
	}
	return s
}

func feedMIME(feedType string) string {
	switch feedType {
	case "atom":
		return "application/atom+xml"
	case "json":
		return "application/feed+json"
	}
	return "application/rss+xml"
}
