// SPDX-License-Identifier: GPL-3.0-or-later

// Package engine implements the core of spec section 2: a single-threaded,
// readiness-driven engine that juggles up to a bounded number of in-flight
// probes, accepts connect-backs, ingests candidates from a named pipe, and
// correlates connect-backs to their originating probes by IP or nonce.
package engine

import (
	"net/netip"
	"time"
)

// Default tuning values, per spec sections 4 and 5.
const (
	// DefaultMaxInFlight is the hard cap on simultaneously registered
	// network probes (spec section 5: "A hard cap of 128 simultaneously
	// registered network probes").
	DefaultMaxInFlight = 128

	// DefaultReapDeadline is the coarse eviction deadline for probes in
	// any state other than INITIATED (spec section 4.3).
	DefaultReapDeadline = 45 * time.Second

	// DefaultWaitCeiling bounds a single readiness-wait iteration (spec
	// section 4.6: "block for up to 1 s waiting on any registered
	// handle").
	DefaultWaitCeiling = 1 * time.Second

	// DefaultSynRetries is the bounded SYN retry count requested on
	// outbound sockets (spec section 4.2, step 1).
	DefaultSynRetries = 7

	// defaultSynTimeout is the per-retry SYN timeout used to derive the
	// belt-and-suspenders syn deadline of Open Question (b): synDeadline
	// = SYN_TIMEOUT × SYN_CNT. Linux's default initial RTO for SYN
	// retransmits is ~1s with exponential backoff; 3s per attempt is a
	// conservative upper bound matching typical kernel behavior.
	defaultSynTimeout = 3 * time.Second

	// BannerReadLimit bounds a single banner/token read, per spec
	// sections 4.3 and 9 Open Question (c).
	BannerReadLimit = 128

	// NonceSize is the length of a generated nonce, per spec section 3.
	NonceSize = 64
)

// Config holds the engine's tunable dependencies, following the
// teacher's Config pattern (bassosimone/nop's config.go): callers get
// sensible defaults from [NewConfig] and override only what they need,
// and every time-dependent field is injected as a func so tests can
// control it deterministically instead of sleeping on a wall clock.
type Config struct {
	// CallbackBindAddr is where the connect-back listener binds (spec
	// section 6: "Binds a user-supplied TCP endpoint (default
	// 0.0.0.0:1234)").
	CallbackBindAddr netip.AddrPort

	// CallbackAdvertiseAddr is the host:port written into the CONNECT
	// request body sent to each candidate. Independent of
	// CallbackBindAddr per Open Question (a); [NewConfig] defaults it to
	// CallbackBindAddr.
	CallbackAdvertiseAddr netip.AddrPort

	// MaxInFlight is the in-flight probe cap (spec section 5).
	MaxInFlight int

	// ReapDeadline is the coarse reap deadline (spec section 4.3).
	ReapDeadline time.Duration

	// WaitCeiling bounds one readiness-wait iteration (spec section 4.6).
	WaitCeiling time.Duration

	// SynRetries is the requested SYN retry count (spec section 4.2).
	SynRetries int

	// SynDeadline is the belt-and-suspenders ceiling for INITIATED
	// probes per Open Question (b): SYN_TIMEOUT × SYN_CNT.
	SynDeadline time.Duration

	// TimeNow returns the current time. Overridden in tests.
	TimeNow func() time.Time
}

// NewConfig returns a [*Config] with the defaults spec sections 4-6
// name, bound to 0.0.0.0:1234 per spec section 6.
func NewConfig() *Config {
	bind := netip.MustParseAddrPort("0.0.0.0:1234")
	return &Config{
		CallbackBindAddr:      bind,
		CallbackAdvertiseAddr: bind,
		MaxInFlight:           DefaultMaxInFlight,
		ReapDeadline:          DefaultReapDeadline,
		WaitCeiling:           DefaultWaitCeiling,
		SynRetries:            DefaultSynRetries,
		SynDeadline:           defaultSynTimeout * time.Duration(DefaultSynRetries),
		TimeNow:               time.Now,
	}
}
