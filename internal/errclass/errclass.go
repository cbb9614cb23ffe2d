//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: github.com/bassosimone/errclass (as vendored in the
// bassosimone/nop tree under errclass/unix.go and errclass/windows.go).
//

// Package errclass classifies network errors into short categorical
// strings suitable for structured logging, and into the coarser error
// kinds spec section 7 (Error Handling Design) assigns a policy to.
package errclass

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
)

// Classification strings. These are attached to events as the "errClass"
// field so that log consumers can grep/aggregate on them.
const (
	EADDRNOTAVAIL   = "EADDRNOTAVAIL"
	EADDRINUSE      = "EADDRINUSE"
	ECONNABORTED    = "ECONNABORTED"
	ECONNREFUSED    = "ECONNREFUSED"
	ECONNRESET      = "ECONNRESET"
	EHOSTUNREACH    = "EHOSTUNREACH"
	EINVAL          = "EINVAL"
	EINTR           = "EINTR"
	ENETDOWN        = "ENETDOWN"
	ENETUNREACH     = "ENETUNREACH"
	ENOBUFS         = "ENOBUFS"
	ENOTCONN        = "ENOTCONN"
	EPROTONOSUPPORT = "EPROTONOSUPPORT"
	ETIMEDOUT       = "ETIMEDOUT"
	ECLOSED         = "ECLOSED"
	EEOF            = "EEOF"
	EGENERIC        = "EGENERIC"
)

// New classifies err into one of the short strings above.
//
// A nil error classifies to the empty string: successful operations are
// never tagged.
func New(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, io.EOF):
		return EEOF
	case errors.Is(err, net.ErrClosed):
		return ECLOSED
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ETIMEDOUT
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ETIMEDOUT
	}
	if class, ok := classifyErrno(err); ok {
		return class
	}
	return EGENERIC
}

// Kind buckets a classification string into one of the policy kinds
// spec section 7 names. Callers use this to decide whether a probe
// unregisters quietly (disconnect, deadline) or the subsystem is fatal.
type Kind string

const (
	// KindDisconnect is a transport disconnect: remote closed, RST, or
	// a socket-level error surfaced by the readiness primitive.
	KindDisconnect Kind = "disconnect"

	// KindDeadline is a reaper eviction (coarse deadline exceeded).
	KindDeadline Kind = "deadline"

	// KindFatal is an unrecoverable subsystem-level error (listener,
	// ingest pipe, or init failure).
	KindFatal Kind = "fatal"
)

// KindOf maps a classification string produced by [New] to a [Kind].
// Unrecognized classes default to [KindDisconnect], the least destructive
// outcome (unregister the probe, do not crash the process).
func KindOf(class string) Kind {
	switch class {
	case ETIMEDOUT:
		return KindDeadline
	case EADDRINUSE, EADDRNOTAVAIL, EPROTONOSUPPORT:
		return KindFatal
	default:
		return KindDisconnect
	}
}
