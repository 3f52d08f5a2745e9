package docbridge

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

func TestFormatExtraction(t *testing.T) {
	score := 0.75
	ex := &Extraction{
		Content:      "# Report\n\nBody",
		MIMEType:     "application/pdf",
		Title:        "Report",
		Metadata:     map[string]any{"pages": 3},
		QualityScore: &score,
	}

	md, err := FormatExtraction(ex, "md")
	if err != nil || string(md) != "# Report\n\nBody\n" {
		t.Errorf("md = %q, %v", md, err)
	}

	text, err := FormatExtraction(ex, "text")
	if err != nil || string(text) != "Report\n\nBody\n" {
		t.Errorf("text = %q, %v", text, err)
	}

	js, err := FormatExtraction(ex, "json")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"content": "# Report\n\nBody"`, `"mime_type": "application/pdf"`, `"pages": 3`, `"quality_score": 0.75`} {
		if !strings.Contains(string(js), want) {
			t.Errorf("json missing %q:\n%s", want, js)
		}
	}

	y, err := FormatExtraction(ex, "YAML")
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := yaml.Unmarshal(y, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["title"] != "Report" || decoded["quality_score"] != 0.75 {
		t.Errorf("yaml = %v", decoded)
	}
}

func TestFormatExtractionOmitsEmpty(t *testing.T) {
	js, err := FormatExtraction(&Extraction{Content: "x", MIMEType: "text/plain"}, "json")
	if err != nil {
		t.Fatal(err)
	}
	for _, field := range []string{"title", "metadata", "quality_score"} {
		if strings.Contains(string(js), field) {
			t.Errorf("json should omit %s:\n%s", field, js)
		}
	}
}

func TestFormatExtractionErrors(t *testing.T) {
	ex := &Extraction{Content: "x"}
	if _, err := FormatExtraction(ex, "docx"); fault.KindOf(err) != fault.InvalidDirection {
		t.Errorf("docx: got %v", err)
	}
	_, err := FormatExtraction(ex, "odt")
	if fault.KindOf(err) != fault.UnknownFormat {
		t.Errorf("odt: got %v", err)
	}
	if !strings.Contains(fault.HintOf(err), "json") {
		t.Errorf("hint = %q", fault.HintOf(err))
	}
}

func TestStripMarkdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"headings", "# Title\n\n## Sub", "Title\n\nSub"},
		{"emphasis", "Some **bold**, *italic* and ~~gone~~ words", "Some bold, italic and gone words"},
		{"links", "See [the docs](https://x.example/docs) or <https://y.example>", "See the docs or https://y.example"},
		{"images", "![diagram](a.png) below", "diagram below"},
		{"table", "| a | b |\n| --- | --- |\n| 1 | 2 |", "a | b\n1 | 2"},
		{"fences", "```go\nx := 1\n```", "x := 1"},
		{"inline code", "run `make test` now", "run make test now"},
		{"quotes", "> quoted\n> text", "quoted\ntext"},
		{"comments", "<!-- Slide number: 1 -->\n\nHello", "Hello"},
		{"list bullets stay", "* one\n* two", "* one\n* two"},
		{"snake case", "call my_func_name here", "call my_func_name here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdown(tt.in); got != tt.want {
				t.Errorf("StripMarkdown(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
