package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasgasior/docbridge"
	"github.com/nicholasgasior/docbridge/internal/config"
	"github.com/nicholasgasior/docbridge/internal/fault"
)

type fakeRenderer struct {
	format string
	args   []string
	input  string
	err    error
}

func (f *fakeRenderer) Render(_ context.Context, input, output, format string, args []string) error {
	if f.err != nil {
		return f.err
	}
	md, err := os.ReadFile(input)
	if err != nil {
		return err
	}
	f.input, f.format, f.args = string(md), format, args
	return os.WriteFile(output, []byte("<rendered>"+string(md)), 0o644)
}

func newTestServer(t *testing.T, renderer *fakeRenderer, mutate func(*config.Config)) http.Handler {
	t.Helper()
	cfg := config.Default()
	cfg.Templates = map[string]config.Template{
		"report": {Format: "html", PandocArgs: []string{"--toc"}, Description: "Report page"},
	}
	if mutate != nil {
		mutate(cfg)
	}
	var s *Server
	if renderer == nil {
		s = New(docbridge.New(), nil, cfg, nil)
	} else {
		s = New(docbridge.New(), renderer, cfg, nil)
	}
	return s.Handler()
}

func multipartRequest(t *testing.T, target, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorDetail {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error
}

func TestHealthAndRequestID(t *testing.T) {
	h := newTestServer(t, &fakeRenderer{}, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","renderer":"available"}`, rec.Body.String())
	_, err := uuid.Parse(rec.Header().Get(RequestIDHeader))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestHealthWithoutRenderer(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.JSONEq(t, `{"status":"ok","renderer":"disabled"}`, rec.Body.String())
}

func TestFormats(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer(t, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/formats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp formatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.Formats, formatInfo{Name: "docx", Extension: ".docx", Direction: "outbound", Description: "Word document (Pandoc)"})
	assert.Contains(t, resp.Inputs, ".pdf")
	assert.Equal(t, []templateInfo{{Name: "report", Format: "html", Description: "Report page"}}, resp.Templates)
}

func TestConvert(t *testing.T) {
	h := newTestServer(t, nil, nil)
	page := []byte("<h1>Hello</h1><p>World</p>")

	t.Run("markdown", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/v1/convert", "page.html", page))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "text/markdown; charset=utf-8", rec.Header().Get("Content-Type"))
		assert.Equal(t, "# Hello\n\nWorld\n", rec.Body.String())
	})

	t.Run("json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/v1/convert?format=json", "page.html", page))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var ex docbridge.Extraction
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ex))
		assert.Equal(t, "# Hello\n\nWorld", ex.Content)
		assert.Equal(t, "text/html", ex.MIMEType)
	})

	t.Run("path in filename is ignored", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, multipartRequest(t, "/v1/convert?format=text", "../../etc/page.html", page))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Hello\n\nWorld\n", rec.Body.String())
	})
}

func TestConvertErrors(t *testing.T) {
	h := newTestServer(t, nil, func(c *config.Config) { c.Server.MaxUploadBytes = 512 })

	tests := []struct {
		name   string
		req    *http.Request
		status int
		kind   fault.Kind
	}{
		{
			name:   "outbound format",
			req:    multipartRequest(t, "/v1/convert?format=docx", "a.html", []byte("<p>x</p>")),
			status: http.StatusBadRequest,
			kind:   fault.InvalidDirection,
		},
		{
			name:   "unknown format",
			req:    multipartRequest(t, "/v1/convert?format=odt", "a.html", []byte("<p>x</p>")),
			status: http.StatusBadRequest,
			kind:   fault.UnknownFormat,
		},
		{
			name:   "too large",
			req:    multipartRequest(t, "/v1/convert", "big.txt", bytes.Repeat([]byte("a"), 2048)),
			status: http.StatusRequestEntityTooLarge,
			kind:   fault.ResponseTooLarge,
		},
		{
			name:   "unsupported",
			req:    multipartRequest(t, "/v1/convert", "blob.bin", []byte{0x00, 0xff, 0x10, 0x80, 0x01, 0x00}),
			status: http.StatusUnsupportedMediaType,
			kind:   fault.Unsupported,
		},
		{
			name:   "not multipart",
			req:    httptest.NewRequest(http.MethodPost, "/v1/convert", strings.NewReader("plain")),
			status: http.StatusBadRequest,
			kind:   fault.InvalidRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, tt.req)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.kind), decodeError(t, rec).Kind)
		})
	}
}

func TestConvertURLBlocked(t *testing.T) {
	h := newTestServer(t, nil, nil)
	for _, target := range []string{"http://127.0.0.1/admin", "http://localhost/", "file:///etc/passwd"} {
		rec := httptest.NewRecorder()
		body := strings.NewReader(`{"url":"` + target + `"}`)
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/convert/url", body))
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
		d := decodeError(t, rec)
		assert.Contains(t, []string{"blocked_host", "blocked_scheme"}, d.Kind)
		assert.NotEmpty(t, d.Hint)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/convert/url", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_request", decodeError(t, rec).Kind)
}

func TestRender(t *testing.T) {
	fr := &fakeRenderer{}
	h := newTestServer(t, fr, nil)

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"markdown":"# Hi","template":"report","pandoc_args":["--number-sections","--toc-depth=2"]}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/render", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="document.html"`, rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "<rendered># Hi", rec.Body.String())
	assert.Equal(t, "html", fr.format)
	assert.Equal(t, []string{"--standalone", "--toc", "--number-sections", "--toc-depth=2", "--sandbox"}, fr.args)
}

func TestRenderAlwaysSandboxed(t *testing.T) {
	fr := &fakeRenderer{}
	h := newTestServer(t, fr, func(cfg *config.Config) {
		cfg.Templates["loose"] = config.Template{Format: "docx", PandocArgs: []string{"--sandbox=false", "--toc"}}
	})

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"markdown":"![x](file:///etc/passwd)","template":"loose"}`)
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/render", body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []string{"--toc", "--sandbox"}, fr.args)
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name     string
		renderer *fakeRenderer
		body     string
		status   int
		kind     fault.Kind
	}{
		{"disallowed argument", &fakeRenderer{}, `{"markdown":"x","format":"docx","pandoc_args":["--lua-filter=evil.lua"]}`, http.StatusBadRequest, fault.InvalidRequest},
		{"output argument", &fakeRenderer{}, `{"markdown":"x","format":"docx","pandoc_args":["-o","/etc/x"]}`, http.StatusBadRequest, fault.InvalidRequest},
		{"inbound format", &fakeRenderer{}, `{"markdown":"x","format":"md"}`, http.StatusBadRequest, fault.InvalidDirection},
		{"unknown template", &fakeRenderer{}, `{"markdown":"x","template":"memo"}`, http.StatusBadRequest, fault.UnknownTemplate},
		{"bad json", &fakeRenderer{}, `{"markdown":`, http.StatusBadRequest, fault.InvalidRequest},
		{"no renderer", nil, `{"markdown":"x"}`, http.StatusNotImplemented, fault.RendererNotInstalled},
		{"render failure", &fakeRenderer{err: fault.New(fault.RenderFailed, "pandoc exited 64")}, `{"markdown":"x"}`, http.StatusInternalServerError, fault.RenderFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestServer(t, tt.renderer, nil)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/render", strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, string(tt.kind), decodeError(t, rec).Kind)
		})
	}
}

func TestMetrics(t *testing.T) {
	h := newTestServer(t, nil, nil)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	h.ServeHTTP(httptest.NewRecorder(), multipartRequest(t, "/v1/convert", "a.txt", []byte("hello")))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, `docbridge_http_requests_total{code="200",route="GET /healthz"} 1`)
	assert.Contains(t, out, `docbridge_conversions_total{direction="inbound",format="md",outcome="ok"} 1`)
	assert.Contains(t, out, `docbridge_http_request_duration_seconds_bucket{route="POST /v1/convert"`)
}

func TestServeShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := New(docbridge.New(), nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
