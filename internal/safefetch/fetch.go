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

// Package safefetch issues outbound GET requests under the netguard policy.
// Redirects are followed by an explicit loop so every hop is validated and
// re-resolved, each hop has its own deadline, and bodies are read under a
// byte cap.
package safefetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"

	"github.com/nicholasgasior/docbridge/internal/fault"
	"github.com/nicholasgasior/docbridge/internal/netguard"
)

const (
	// MaxRedirects is the number of redirect hops followed before giving up.
	MaxRedirects = 5
	// HopTimeout bounds each individual request, including its body.
	HopTimeout = 30 * time.Second
	// MaxResponseBytes caps the size of any fetched body.
	MaxResponseBytes int64 = 100 * 1024 * 1024

	defaultUserAgent = "docbridge/1.0"
)

// Fetcher performs policy-checked GET requests.
type Fetcher struct {
	client     *http.Client
	guard      *netguard.Guard
	resolver   netguard.Resolver
	hopTimeout time.Duration
	userAgent  string
	logger     *log.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client. Its redirect policy is overridden
// so the fetch loop stays in charge of redirects.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		cp := *c
		f.client = &cp
	}
}

// WithResolver sets the resolver used by the DNS-rebind check.
func WithResolver(r netguard.Resolver) Option {
	return func(f *Fetcher) {
		f.resolver = r
	}
}

// WithHopTimeout overrides HopTimeout.
func WithHopTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.hopTimeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.logger = l
		}
	}
}

// New returns a Fetcher. Without WithHTTPClient it uses a transport whose
// dialer refuses blocked addresses at connect time as well.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		hopTimeout: HopTimeout,
		userAgent:  defaultUserAgent,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &http.Client{Transport: newGuardedTransport()}
	}
	f.client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	f.guard = netguard.NewGuard(f.resolver, f.logger)
	return f
}

// newGuardedTransport refuses to connect to blocked addresses even if the
// name resolved differently when CheckResolved ran.
func newGuardedTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		conn, err := dialer.DialContext(ctx, network, addr)
		if err != nil {
			return nil, err
		}
		host, _, splitErr := net.SplitHostPort(conn.RemoteAddr().String())
		if splitErr == nil && netguard.IsPrivateAddress(host) {
			conn.Close()
			return nil, fault.New(fault.BlockedResolvedIP, "connection to blocked address %s refused", host)
		}
		return conn, nil
	}
	return t
}

// Fetch GETs rawURL, following up to MaxRedirects redirects. Each hop is
// validated, re-resolved and given a fresh HopTimeout. The first non-3xx
// response is returned as-is, whatever its status; closing its body releases
// the hop deadline.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*http.Response, error) {
	current := rawURL
	for hop := 0; hop <= MaxRedirects; hop++ {
		u, err := netguard.Validate(current)
		if err != nil {
			return nil, err
		}
		if err := f.guard.CheckResolved(ctx, u.Hostname()); err != nil {
			return nil, err
		}

		f.logger.Debug("fetch hop", "hop", hop, "url", u.Redacted())
		resp, cancel, err := f.do(ctx, u)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode < 300 || resp.StatusCode > 399 {
			resp.Body = &hopBody{ReadCloser: resp.Body, cancel: cancel}
			return resp, nil
		}

		location := resp.Header.Get("Location")
		discard(resp.Body)
		cancel()
		if location == "" {
			return nil, fault.New(fault.MissingLocationHeader, "%s answered %d without a Location header", u.Redacted(), resp.StatusCode)
		}
		next, err := u.Parse(location)
		if err != nil {
			return nil, fault.Wrap(fault.InvalidURL, err, "invalid redirect target %q", location)
		}
		current = next.String()
	}
	return nil, fault.New(fault.TooManyRedirects, "stopped after %d redirects", MaxRedirects).
		WithHint("the server redirected too many times")
}

// do issues a single request under its own deadline. On success the caller
// owns cancel.
func (f *Fetcher) do(ctx context.Context, u *url.URL) (*http.Response, context.CancelFunc, error) {
	hopCtx, cancel := context.WithTimeout(ctx, f.hopTimeout)
	req, err := http.NewRequestWithContext(hopCtx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, nil, fault.Wrap(fault.InvalidURL, err, "build request for %s", u.Redacted())
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "*/*")

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(hopCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, nil, fault.Wrap(fault.Timeout, err, "request to %s exceeded %s", u.Redacted(), f.hopTimeout)
		}
		var fe *fault.Error
		if errors.As(err, &fe) {
			return nil, nil, fe
		}
		return nil, nil, fmt.Errorf("fetch %s: %w", u.Redacted(), err)
	}
	return resp, cancel, nil
}

// Download fetches rawURL and reads its body under MaxResponseBytes. Non-2xx
// final responses are reported as UpstreamStatus.
func (f *Fetcher) Download(ctx context.Context, rawURL string) (*Download, error) {
	resp, err := f.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		discard(resp.Body)
		return nil, fault.New(fault.UpstreamStatus, "%s answered HTTP %d", rawURL, resp.StatusCode)
	}
	body, err := ReadBounded(resp, MaxResponseBytes)
	if err != nil {
		return nil, err
	}
	d := &Download{
		URL:         rawURL,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		d.URL = resp.Request.URL.String()
	}
	return d, nil
}

// Download is a fully read response.
type Download struct {
	// URL is the final URL after redirects.
	URL         string
	Body        []byte
	ContentType string
	StatusCode  int
}

// hopBody releases the hop deadline when the body is closed.
type hopBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *hopBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// discard drains a little of body so the connection can be reused, then closes it.
func discard(body io.ReadCloser) {
	_, _ = io.CopyN(io.Discard, body, 4<<10)
	body.Close()
}
