package fault

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("fetch: %w", New(BlockedHost, "host %q is private", "10.0.0.1"))

	assert.True(t, errors.Is(err, ErrBlockedHost))
	assert.False(t, errors.Is(err, ErrBlockedScheme))
	assert.Equal(t, BlockedHost, KindOf(err))
	assert.Equal(t, `fetch: host "10.0.0.1" is private`, err.Error())
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := Wrap(RenderFailed, cause, "pandoc rejected %s", "in.md").WithHint("check the input")

	require.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrRenderFailed)
	assert.Equal(t, "check the input", HintOf(fmt.Errorf("outer: %w", err)))
	assert.Equal(t, "pandoc rejected in.md: exit status 1", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("boom")))
	assert.Equal(t, "", HintOf(errors.New("boom")))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		kind Kind
		want Class
	}{
		{InvalidURL, ClassPolicy},
		{BlockedResolvedIP, ClassPolicy},
		{TooManyRedirects, ClassLimit},
		{ResponseTooLarge, ClassLimit},
		{SelfOverwrite, ClassPlan},
		{PathEscape, ClassPlan},
		{RenderFailed, ClassRender},
		{Unsupported, ClassUnsupported},
		{Internal, ClassInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.kind))
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{New(BlockedScheme, "x"), http.StatusBadRequest},
		{New(InvalidDirection, "x"), http.StatusBadRequest},
		{New(OutputExists, "x"), http.StatusConflict},
		{New(ResponseTooLarge, "x"), http.StatusRequestEntityTooLarge},
		{New(Timeout, "x"), http.StatusGatewayTimeout},
		{New(TooManyRedirects, "x"), http.StatusBadGateway},
		{New(RendererNotInstalled, "x"), http.StatusNotImplemented},
		{New(Unsupported, "x"), http.StatusUnsupportedMediaType},
		{errors.New("x"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error()+string(KindOf(tt.err)), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestClassifyExternal(t *testing.T) {
	tests := []struct {
		msg  string
		want Kind
	}{
		{"Tesseract not installed", OCRUnavailable},
		{`exec: "tesseract": executable file not found in $PATH`, OCRUnavailable},
		{"Error opening data file /usr/share/tessdata/eng.traineddata", OCRUnavailable},
		{`exec: "pandoc": executable file not found in $PATH`, RendererNotInstalled},
		{"pandoc: Unknown output format pptxx", Internal},
		{"unexpected EOF", Internal},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyExternal(tt.msg))
		})
	}
}

func TestClassifyExternalErrorPrefersStructuredKind(t *testing.T) {
	err := New(Timeout, "tesseract not installed")
	assert.Equal(t, Timeout, ClassifyExternalError(err))
	assert.Equal(t, OCRUnavailable, ClassifyExternalError(errors.New("tesseract not found")))
	assert.Equal(t, Kind(""), ClassifyExternalError(nil))
}
