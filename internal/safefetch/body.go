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

package safefetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

const readChunk = 32 << 10

// ReadBounded reads resp.Body, failing with ResponseTooLarge when the declared
// Content-Length or the streamed byte count exceeds limit. On overflow the body
// is closed at once rather than drained. The body is closed on every path.
func ReadBounded(resp *http.Response, limit int64) ([]byte, error) {
	body := resp.Body
	defer body.Close()

	if n, ok := declaredLength(resp); ok && n > limit {
		return nil, fault.New(fault.ResponseTooLarge, "declared size %d bytes exceeds the %d byte limit", n, limit)
	}

	var (
		out   bytes.Buffer
		total int64
	)
	if n, ok := declaredLength(resp); ok {
		out.Grow(int(n))
	}
	buf := make([]byte, readChunk)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			total += int64(n)
			if total > limit {
				body.Close()
				return nil, fault.New(fault.ResponseTooLarge, "response exceeded the %d byte limit", limit)
			}
			out.Write(buf[:n])
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
				return nil, fault.Wrap(fault.Timeout, err, "reading response body timed out")
			}
			return nil, fmt.Errorf("read response body: %w", err)
		}
	}

	return out.Bytes(), nil
}

// declaredLength returns the Content-Length announced by the server.
func declaredLength(resp *http.Response) (int64, bool) {
	if resp.ContentLength > 0 {
		return resp.ContentLength, true
	}
	v := strings.TrimSpace(resp.Header.Get("Content-Length"))
	if v == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
