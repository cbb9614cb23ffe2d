// SPDX-License-Identifier: GPL-3.0-or-later

// Package ingest implements spec section 4.1: reading newline-delimited
// ip:port records from a named pipe and validating them before they
// reach the staging queue.
package ingest

import (
	"net/netip"
	"regexp"
)

// recordPattern is spec section 4.1's validity regex: "^[0-9]{1,3}
// (\.[0-9]{1,3}){3}:[0-9]{1,5}$". Lines not matching are silently
// dropped, per spec, rather than logged as errors: a malformed line on
// the ingest pipe is an expected, not an exceptional, occurrence.
var recordPattern = regexp.MustCompile(`^[0-9]{1,3}(\.[0-9]{1,3}){3}:[0-9]{1,5}$`)

// ParseEndpoint validates line against spec section 4.1's record syntax
// and, if valid, parses it into a [netip.AddrPort]. Ports outside
// [1, 65535] and non-IPv4 addresses are rejected even if the regex
// matches loosely (e.g. "999.999.999.999:0"), per spec section 3's
// definition of a valid Endpoint.
func ParseEndpoint(line string) (netip.AddrPort, bool) {
	if !recordPattern.MatchString(line) {
		return netip.AddrPort{}, false
	}
	ap, err := netip.ParseAddrPort(line)
	if err != nil {
		return netip.AddrPort{}, false
	}
	if !ap.Addr().Is4() {
		return netip.AddrPort{}, false
	}
	if ap.Port() == 0 {
		return netip.AddrPort{}, false
	}
	return ap, true
}
