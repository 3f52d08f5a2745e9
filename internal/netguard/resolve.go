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

package netguard

import (
	"context"
	"io"
	"net"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// Resolver looks up the addresses of a host. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard re-checks hostnames after DNS resolution, closing the gap where a name
// passes Validate but points at a private address when the connection is made.
type Guard struct {
	resolver Resolver
	logger   *log.Logger
}

// NewGuard returns a Guard using r, or net.DefaultResolver when r is nil.
func NewGuard(r Resolver, logger *log.Logger) *Guard {
	if r == nil {
		r = net.DefaultResolver
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Guard{resolver: r, logger: logger}
}

// CheckResolved resolves host and fails with BlockedResolvedIP when any
// resolved address is blocked. IP literals are not resolved; Validate already
// covers them. Lookup errors are ignored here and left for the request itself
// to report.
func (g *Guard) CheckResolved(ctx context.Context, host string) error {
	h := strings.Trim(strings.ToLower(strings.TrimSpace(host)), "[]")
	if h == "" || isIPLiteral(h) {
		return nil
	}
	addrs, err := g.resolver.LookupIPAddr(ctx, h)
	if err != nil {
		g.logger.Debug("dns lookup failed, deferring to request", "host", h, "err", err)
		return nil
	}
	for _, a := range addrs {
		ip := a.IP.String()
		if IsPrivateAddress(ip) {
			return fault.New(fault.BlockedResolvedIP, "host %q resolves to blocked address %s", h, ip).
				WithHint("the hostname points at a private or local network address")
		}
	}
	return nil
}
