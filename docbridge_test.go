package docbridge

import (
	"archive/zip"
	"bytes"
	"context"
	"image"
	"image/png"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/japanese"

	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/safefetch"
)

const (
	wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main" ` +
		`xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships"`
	slideNS = `xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main" ` +
		`xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"`
)

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// fixtures builds one small document per supported family.
func fixtures(t *testing.T) map[string][]byte {
	return map[string][]byte{
		"page.html": []byte(`<html lang="en"><head><title>Release Notes</title>
<meta name="description" content="What changed">
<script>alert("x")</script></head>
<body><h1>Version 2</h1><p>Faster <strong>imports</strong>.</p>
<table><tr><th>Area</th><th>Change</th></tr><tr><td>CLI</td><td>new flags</td></tr></table></body></html>`),
		"people.csv": []byte("\ufeffname,age\nAda,36\n\"Lovelace, A\",37\n"),
		"people.tsv": []byte("name\tage\nGrace\t85\n"),
		"notes.md":   []byte("# Meeting\n\n- item one\n"),
		"data.json":  []byte(`{"id": "5b64c88c-b3c3-4510-bcb8-da0b200602d8"}`),
		"feed.rss": []byte(`<?xml version="1.0"?><rss version="2.0"><channel>
<title>Engineering Blog</title><link>https://blog.example/</link><description>Posts</description>
<item><title>Ignite 2024</title><link>https://blog.example/ignite</link>
<pubDate>Tue, 19 Nov 2024 10:00:00 GMT</pubDate><description>&lt;p&gt;Big &lt;b&gt;news&lt;/b&gt;&lt;/p&gt;</description></item>
</channel></rss>`),
		"nb.ipynb": []byte(`{"nbformat": 4, "nbformat_minor": 5,
"metadata": {"kernelspec": {"language": "python", "name": "python3"}},
"cells": [
 {"cell_type": "markdown", "metadata": {}, "source": ["# Test Notebook\n"]},
 {"cell_type": "code", "metadata": {}, "outputs": [], "source": ["print(\"hello\")"]}
]}`),
		"report.docx": zipBytes(t, map[string]string{
			"word/document.xml": `<w:document ` + wordNS + `><w:body>
<w:p><w:r><w:t>Quarterly revenue grew.</w:t></w:r></w:p>
</w:body></w:document>`,
		}),
		"deck.pptx": zipBytes(t, map[string]string{
			"ppt/slides/slide1.xml": `<p:sld ` + slideNS + `><p:cSld><p:spTree>
<p:sp><p:nvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>
<p:txBody><a:p><a:r><a:t>Roadmap</a:t></a:r></a:p></p:txBody></p:sp>
<p:sp><p:nvSpPr><p:nvPr/></p:nvSpPr>
<p:txBody><a:p><a:r><a:t>Ship v2</a:t></a:r></a:p></p:txBody></p:sp>
</p:spTree></p:cSld></p:sld>`,
		}),
		"bundle.zip": zipBytes(t, map[string]string{
			"docs/readme.txt": "inside the archive",
			"docs/table.csv":  "k,v\na,1\n",
		}),
	}
}

func writeFixtures(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for name, data := range fixtures(t) {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestExtractFile(t *testing.T) {
	dir := writeFixtures(t)
	e := New()

	tests := []struct {
		filename       string
		title          string
		mustInclude    []string
		mustNotInclude []string
	}{
		{
			filename:       "page.html",
			title:          "Release Notes",
			mustInclude:    []string{"# Version 2", "Faster **imports**.", "Area", "new flags"},
			mustNotInclude: []string{"alert", "<script"},
		},
		{
			filename:    "people.csv",
			mustInclude: []string{"| name | age |", "| --- | --- |", "| Lovelace, A | 37 |"},
		},
		{
			filename:    "people.tsv",
			mustInclude: []string{"| name | age |", "| Grace | 85 |"},
		},
		{
			filename:    "notes.md",
			title:       "Meeting",
			mustInclude: []string{"# Meeting", "- item one"},
		},
		{
			filename:    "data.json",
			mustInclude: []string{"5b64c88c-b3c3-4510-bcb8-da0b200602d8"},
		},
		{
			filename:       "feed.rss",
			title:          "Engineering Blog",
			mustInclude:    []string{"# Engineering Blog", "## Ignite 2024", "Link: <https://blog.example/ignite>", "**news**"},
			mustNotInclude: []string{"<rss", "<item"},
		},
		{
			filename:       "nb.ipynb",
			mustInclude:    []string{"# Test Notebook", "```python", `print("hello")`},
			mustNotInclude: []string{"nbformat"},
		},
		{
			filename:    "report.docx",
			mustInclude: []string{"Quarterly revenue grew."},
		},
		{
			filename:    "deck.pptx",
			title:       "Roadmap",
			mustInclude: []string{"<!-- Slide number: 1 -->", "# Roadmap", "Ship v2"},
		},
		{
			filename:    "bundle.zip",
			mustInclude: []string{"## File: docs/readme.txt", "inside the archive", "## File: docs/table.csv", "| a | 1 |"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			ex, err := e.ExtractFile(context.Background(), filepath.Join(dir, tt.filename), ExtractOptions{})
			if err != nil {
				t.Fatalf("ExtractFile(%s) error: %v", tt.filename, err)
			}
			if ex.MIMEType == "" {
				t.Errorf("ExtractFile(%s): empty MIME type", tt.filename)
			}
			if tt.title != "" && ex.Title != tt.title {
				t.Errorf("ExtractFile(%s): title = %q, want %q", tt.filename, ex.Title, tt.title)
			}
			for _, s := range tt.mustInclude {
				if !strings.Contains(ex.Content, s) {
					t.Errorf("ExtractFile(%s): expected output to contain %q\nGot:\n%s", tt.filename, s, ex.Content)
				}
			}
			for _, s := range tt.mustNotInclude {
				if strings.Contains(ex.Content, s) {
					t.Errorf("ExtractFile(%s): expected output NOT to contain %q", tt.filename, s)
				}
			}
		})
	}
}

func TestExtractMetadata(t *testing.T) {
	dir := writeFixtures(t)
	e := New()

	ex, err := e.ExtractFile(context.Background(), filepath.Join(dir, "page.html"), ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ex.Metadata["description"] != "What changed" || ex.Metadata["language"] != "en" {
		t.Errorf("html metadata = %v", ex.Metadata)
	}

	ex, err = e.ExtractFile(context.Background(), filepath.Join(dir, "people.csv"), ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if ex.Metadata["rows"] != 2 || ex.Metadata["columns"] != 2 {
		t.Errorf("csv metadata = %v", ex.Metadata)
	}

	ex, err = e.ExtractFile(context.Background(), filepath.Join(dir, "bundle.zip"), ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if got := ex.Metadata["converted"].([]string); len(got) != 2 {
		t.Errorf("zip converted = %v", got)
	}
}

func TestExtractReaderCharset(t *testing.T) {
	src := "名前,年齢\n佐藤太郎,30\n三木英子,25\n"
	encoded, err := japanese.ShiftJIS.NewEncoder().Bytes([]byte(src))
	if err != nil {
		t.Fatal(err)
	}
	e := New()

	for _, charset := range []string{"shift_jis", ""} {
		t.Run("charset="+charset, func(t *testing.T) {
			ex, err := e.ExtractReader(context.Background(), bytes.NewReader(encoded), StreamInfo{
				Extension: ".csv",
				MIMEType:  "text/csv",
				Charset:   charset,
			}, ExtractOptions{})
			if err != nil {
				t.Fatalf("ExtractReader error: %v", err)
			}
			for _, want := range []string{"名前", "佐藤太郎", "三木英子"} {
				if !strings.Contains(ex.Content, want) {
					t.Errorf("expected output to contain %q\nGot:\n%s", want, ex.Content)
				}
			}
		})
	}
}

func TestExtractUnsupported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	if err := os.WriteFile(path, []byte{0x00, 0xff, 0x10, 0x80, 0x01, 0x00}, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := New().ExtractFile(context.Background(), path, ExtractOptions{})
	if !IsUnsupportedFormat(err) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
	if fault.HintOf(err) == "" {
		t.Error("expected a hint")
	}
}

func TestExtractCancelled(t *testing.T) {
	dir := writeFixtures(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := New().ExtractFile(ctx, filepath.Join(dir, "notes.md"), ExtractOptions{}); err == nil {
		t.Fatal("expected an error for a cancelled context")
	}
}

type fakeOCR struct {
	text  string
	err   error
	calls int
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte, _ string) (string, error) {
	f.calls++
	return f.text, f.err
}

func TestImageOCR(t *testing.T) {
	img := pngBytes(t, 3, 2)
	info := StreamInfo{Extension: ".png", Filename: "scan.png"}

	t.Run("without OCR", func(t *testing.T) {
		ocr := &fakeOCR{text: "unused"}
		ex, err := New(WithOCR(ocr)).ExtractReader(context.Background(), bytes.NewReader(img), info, ExtractOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if ex.Content != "" || ocr.calls != 0 {
			t.Errorf("content = %q, calls = %d", ex.Content, ocr.calls)
		}
		if ex.Metadata["width"] != 3 || ex.Metadata["height"] != 2 || ex.Metadata["format"] != "png" {
			t.Errorf("metadata = %v", ex.Metadata)
		}
	})

	t.Run("with OCR", func(t *testing.T) {
		ocr := &fakeOCR{text: "Invoice 42\nTotal due"}
		ex, err := New(WithOCR(ocr)).ExtractReader(context.Background(), bytes.NewReader(img), info, ExtractOptions{OCR: true})
		if err != nil {
			t.Fatal(err)
		}
		if ex.Content != "Invoice 42\nTotal due" {
			t.Errorf("content = %q", ex.Content)
		}
		if ex.QualityScore == nil || *ex.QualityScore <= 0.9 {
			t.Errorf("quality score = %v", ex.QualityScore)
		}
	})
}

func TestOCRFallback(t *testing.T) {
	img := pngBytes(t, 1, 1)
	info := StreamInfo{Extension: ".png"}
	missing := fault.New(fault.OCRUnavailable, "tesseract is not installed")

	t.Run("retries without OCR", func(t *testing.T) {
		ocr := &fakeOCR{err: missing}
		ex, err := New(WithOCR(ocr)).ExtractReader(context.Background(), bytes.NewReader(img), info, ExtractOptions{OCR: true})
		if err != nil {
			t.Fatalf("expected fallback, got %v", err)
		}
		if ex.Metadata["ocr_skipped"] != true {
			t.Errorf("metadata = %v", ex.Metadata)
		}
		if ocr.calls != 1 {
			t.Errorf("OCR calls = %d, want 1", ocr.calls)
		}
	})

	t.Run("force OCR fails", func(t *testing.T) {
		ocr := &fakeOCR{err: missing}
		_, err := New(WithOCR(ocr)).ExtractReader(context.Background(), bytes.NewReader(img), info, ExtractOptions{ForceOCR: true})
		if fault.KindOf(err) != fault.OCRUnavailable {
			t.Fatalf("expected OCRUnavailable, got %v", err)
		}
	})

	t.Run("no engine", func(t *testing.T) {
		_, err := New().ExtractReader(context.Background(), bytes.NewReader(img), info, ExtractOptions{ForceOCR: true})
		if fault.KindOf(err) != fault.OCRUnavailable {
			t.Fatalf("expected OCRUnavailable, got %v", err)
		}
	})

	t.Run("other errors are kept", func(t *testing.T) {
		ocr := &fakeOCR{err: fault.New(fault.Internal, "tesseract crashed")}
		_, err := New(WithOCR(ocr)).ExtractReader(context.Background(), bytes.NewReader(img), info, ExtractOptions{OCR: true})
		if err == nil {
			t.Fatal("expected an error")
		}
		if ocr.calls != 1 {
			t.Errorf("OCR calls = %d, want 1", ocr.calls)
		}
	})
}

type publicResolver struct{}

func (publicResolver) LookupIPAddr(context.Context, string) ([]net.IPAddr, error) {
	return []net.IPAddr{{IP: net.ParseIP("93.184.216.34")}}, nil
}

func TestExtractURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/guide.html", http.StatusFound)
	})
	mux.HandleFunc("/docs/guide.html", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html><head><title>Guide</title></head><body><h2>Install</h2><p>Run it.</p></body></html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	addr := srv.Listener.Addr().String()
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	defer transport.CloseIdleConnections()
	fetcher := safefetch.New(
		safefetch.WithHTTPClient(&http.Client{Transport: transport}),
		safefetch.WithResolver(publicResolver{}),
	)
	e := New(WithFetcher(fetcher))

	ex, err := e.Extract(context.Background(), "http://docs.example/old", ExtractOptions{})
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if ex.Title != "Guide" || !strings.Contains(ex.Content, "## Install") {
		t.Errorf("got title %q content %q", ex.Title, ex.Content)
	}
	if ex.Metadata["source_url"] != "http://docs.example/docs/guide.html" {
		t.Errorf("source_url = %v", ex.Metadata["source_url"])
	}

	_, err = e.Extract(context.Background(), "http://127.0.0.1/admin", ExtractOptions{})
	if fault.KindOf(err) != fault.BlockedHost {
		t.Errorf("expected BlockedHost, got %v", err)
	}
}

func TestConverterOrder(t *testing.T) {
	names := New().Converters()
	last := names[len(names)-1]
	if last != "plaintext" {
		t.Errorf("last converter = %q, want plaintext", last)
	}
	if names[0] != "csv" {
		t.Errorf("first converter = %q, want csv", names[0])
	}
}

func TestNormalization(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "trailing whitespace",
			input: "hello   \nworld   \n",
			want:  "hello\nworld",
		},
		{
			name:  "multiple newlines",
			input: "hello\n\n\n\n\nworld",
			want:  "hello\n\nworld",
		},
		{
			name:  "crlf",
			input: "hello\r\nworld\r\n",
			want:  "hello\nworld",
		},
		{
			name:  "control characters",
			input: "hello\x00world\x01test",
			want:  "helloworldtest",
		},
		{
			name:  "tabs kept",
			input: "a\tb",
			want:  "a\tb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeOutput(tt.input)
			if got != tt.want {
				t.Errorf("normalizeOutput(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTruncateDataURIs(t *testing.T) {
	long := "![x](data:image/png;base64," + strings.Repeat("A", 100) + ")"
	if got := truncateDataURIs(long); got != "![x](data:image/png;base64,...)" {
		t.Errorf("truncateDataURIs = %q", got)
	}
	short := "data:image/png;base64,AAAA"
	if got := truncateDataURIs(short); got != short {
		t.Errorf("short URI changed to %q", got)
	}
}

func TestQualityScore(t *testing.T) {
	if got := qualityScore(""); got != 0 {
		t.Errorf("empty score = %v", got)
	}
	if got := qualityScore("Plain readable text."); got != 1 {
		t.Errorf("prose score = %v", got)
	}
	if got := qualityScore("���ab"); got != 0 {
		t.Errorf("garbled score = %v", got)
	}
}

func TestConverterAccepts(t *testing.T) {
	tests := []struct {
		name      string
		converter DocumentConverter
		info      StreamInfo
		want      bool
	}{
		{"pdf by ext", NewPdfConverter(), StreamInfo{Extension: ".pdf"}, true},
		{"pdf by mime", NewPdfConverter(), StreamInfo{MIMEType: "application/pdf"}, true},
		{"pdf wrong ext", NewPdfConverter(), StreamInfo{Extension: ".txt"}, false},
		{"csv by ext", NewCsvConverter(), StreamInfo{Extension: ".csv"}, true},
		{"csv by mime", NewCsvConverter(), StreamInfo{MIMEType: "text/csv"}, true},
		{"tsv by ext", NewCsvConverter(), StreamInfo{Extension: ".tsv"}, true},
		{"html by ext", NewHTMLConverter(), StreamInfo{Extension: ".html"}, true},
		{"html by mime", NewHTMLConverter(), StreamInfo{MIMEType: "text/html; charset=utf-8"}, true},
		{"plaintext txt", NewPlainTextConverter(), StreamInfo{Extension: ".txt"}, true},
		{"plaintext json", NewPlainTextConverter(), StreamInfo{Extension: ".json"}, true},
		{"plaintext markdown", NewPlainTextConverter(), StreamInfo{Extension: ".markdown"}, true},
		{"plaintext binary", NewPlainTextConverter(), StreamInfo{MIMEType: "application/octet-stream"}, false},
		{"rss by ext", NewRSSConverter(), StreamInfo{Extension: ".rss"}, true},
		{"rss xml", NewRSSConverter(), StreamInfo{Extension: ".xml"}, true},
		{"ipynb by ext", NewIpynbConverter(), StreamInfo{Extension: ".ipynb"}, true},
		{"docx by ext", NewDocxConverter(), StreamInfo{Extension: ".docx"}, true},
		{"pptx by ext", NewPptxConverter(), StreamInfo{Extension: ".pptx"}, true},
		{"xlsx by ext", NewXlsxConverter(), StreamInfo{Extension: ".xlsx"}, true},
		{"xls by ext", NewXlsConverter(), StreamInfo{Extension: ".xls"}, true},
		{"zip by ext", NewZipConverter(nil), StreamInfo{Extension: ".zip"}, true},
		{"image by ext", NewImageConverter(nil), StreamInfo{Extension: ".webp"}, true},
		{"image by mime", NewImageConverter(nil), StreamInfo{MIMEType: "image/tiff"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.converter.Accepts(tt.info)
			if got != tt.want {
				t.Errorf("Accepts() = %v, want %v", got, tt.want)
			}
		})
	}
}
