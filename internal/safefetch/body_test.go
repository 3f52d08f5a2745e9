package safefetch

import (
	"errors"
	"io"
	"net/http"
	"runtime"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// zeroBody is an endless stream that records how it was used.
type zeroBody struct {
	read   int64
	closed bool
}

func (b *zeroBody) Read(p []byte) (int, error) {
	if b.closed {
		return 0, errors.New("read after close")
	}
	for i := range p {
		p[i] = 0
	}
	b.read += int64(len(p))
	return len(p), nil
}

func (b *zeroBody) Close() error {
	b.closed = true
	return nil
}

func TestReadBoundedRejectsDeclaredLength(t *testing.T) {
	body := &zeroBody{}
	resp := &http.Response{
		ContentLength: 200000000,
		Header:        http.Header{"Content-Length": []string{"200000000"}},
		Body:          body,
	}

	data, err := ReadBounded(resp, MaxResponseBytes)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, fault.ErrResponseTooLarge)
	assert.Zero(t, body.read, "no body bytes should be read")
	assert.True(t, body.closed)
}

func TestReadBoundedHeaderOnly(t *testing.T) {
	// ContentLength unknown to the transport but present in the header.
	body := &zeroBody{}
	resp := &http.Response{
		ContentLength: -1,
		Header:        http.Header{"Content-Length": []string{"2048"}},
		Body:          body,
	}
	_, err := ReadBounded(resp, 1024)
	assert.ErrorIs(t, err, fault.ErrResponseTooLarge)
	assert.Zero(t, body.read)
}

func TestReadBoundedAbortsStream(t *testing.T) {
	body := &zeroBody{}
	resp := &http.Response{ContentLength: -1, Header: http.Header{}, Body: body}
	const limit = 100 << 10

	data, err := ReadBounded(resp, limit)
	assert.Nil(t, data)
	assert.ErrorIs(t, err, fault.ErrResponseTooLarge)
	assert.True(t, body.closed)
	assert.LessOrEqual(t, body.read, int64(limit+readChunk))
}

func TestReadBoundedAbortsStreamAtDefaultCap(t *testing.T) {
	if testing.Short() {
		t.Skip("streams more than 100 MB")
	}
	body := &zeroBody{}
	resp := &http.Response{ContentLength: -1, Header: http.Header{}, Body: body}

	_, err := ReadBounded(resp, MaxResponseBytes)
	assert.ErrorIs(t, err, fault.ErrResponseTooLarge)
	assert.True(t, body.closed)
	assert.Greater(t, body.read, MaxResponseBytes)
}

func TestReadBoundedLiarHeader(t *testing.T) {
	// The server claims a small body but streams more.
	body := &zeroBody{}
	resp := &http.Response{
		ContentLength: 10,
		Header:        http.Header{"Content-Length": []string{"10"}},
		Body:          body,
	}
	_, err := ReadBounded(resp, 64<<10)
	assert.ErrorIs(t, err, fault.ErrResponseTooLarge)
	assert.True(t, body.closed)
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestReadBoundedWithinLimit(t *testing.T) {
	payload := strings.Repeat("docbridge ", 10000)
	body := &closeTracker{Reader: strings.NewReader(payload)}
	resp := &http.Response{
		ContentLength: int64(len(payload)),
		Header:        http.Header{},
		Body:          body,
	}

	data, err := ReadBounded(resp, int64(len(payload)))
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.True(t, body.closed)
}

func TestReadBoundedReadError(t *testing.T) {
	body := &closeTracker{Reader: io.MultiReader(strings.NewReader("abc"), errReader{})}
	resp := &http.Response{ContentLength: -1, Header: http.Header{}, Body: body}

	_, err := ReadBounded(resp, 1024)
	require.Error(t, err)
	assert.Equal(t, fault.Internal, fault.KindOf(err))
	assert.True(t, body.closed)
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("connection reset") }

func TestReadBoundedTrickleKeepsMemoryBounded(t *testing.T) {
	payload := strings.Repeat("x", 20000)
	body := &closeTracker{Reader: iotest.OneByteReader(strings.NewReader(payload))}
	resp := &http.Response{ContentLength: -1, Header: http.Header{}, Body: body}

	var before, after runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&before)
	data, err := ReadBounded(resp, MaxResponseBytes)
	runtime.ReadMemStats(&after)

	require.NoError(t, err)
	assert.Len(t, data, len(payload))
	assert.True(t, body.closed)
	allocated := after.TotalAlloc - before.TotalAlloc
	assert.Less(t, allocated, uint64(1<<20), "allocated %d bytes for a %d byte body", allocated, len(payload))
}
