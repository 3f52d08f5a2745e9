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
	"net/url"
	"strings"

	"github.com/nicholasgasior/docbridge/internal/fault"
)

// Validate parses raw and enforces the fetch policy: http or https only, and
// no reserved or private destination. It has no side effects and is meant to
// run before every request, including each redirect hop.
func Validate(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fault.Wrap(fault.InvalidURL, err, "invalid URL %q", raw)
	}
	if !u.IsAbs() {
		return nil, fault.New(fault.InvalidURL, "invalid URL %q: not an absolute URL", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fault.New(fault.BlockedScheme, "scheme %q is not allowed", u.Scheme).
			WithHint("only http and https URLs can be fetched")
	}
	host := u.Hostname()
	if host == "" {
		return nil, fault.New(fault.InvalidURL, "invalid URL %q: missing host", raw)
	}
	if IsBlockedHost(host) || IsBlockedHost(u.Host) {
		return nil, fault.New(fault.BlockedHost, "host %q is reserved or private", host).
			WithHint("local and private network addresses cannot be fetched")
	}
	return u, nil
}
