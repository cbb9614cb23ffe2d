// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net/netip"
	"time"
)

// State is a probe's position in the state machine of spec section 4.3.
type State int

const (
	StateInitiated State = iota
	StateEstablished
	StateSentConnect
	StateRecvCode
	StateSameBack
	StateDiffBack
	StateSentToken
	StateRecvToken
	StateDiscovered
)

// String renders the state using the names spec section 3 gives them,
// which is also what appears in the rendered log's state-code field.
func (s State) String() string {
	switch s {
	case StateInitiated:
		return "INITIATED"
	case StateEstablished:
		return "ESTABLISHED"
	case StateSentConnect:
		return "SENT_CONNECT"
	case StateRecvCode:
		return "RECV_CODE"
	case StateSameBack:
		return "SAME_BACK"
	case StateDiffBack:
		return "DIFF_BACK"
	case StateSentToken:
		return "SENT_TOKEN"
	case StateRecvToken:
		return "RECV_TOKEN"
	case StateDiscovered:
		return "DISCOVERED"
	default:
		return "UNKNOWN"
	}
}

// Probe is a record per outbound attempt or accepted connect-back,
// owning exclusively its socket handle, per spec section 3.
//
// Probe is mutated only by the readiness loop on the owning (single)
// thread; there is no internal locking.
type Probe struct {
	// Fd is the probe's socket file descriptor, and its key in the
	// engine's handle table.
	Fd int

	// SpanID uniquely identifies this probe across its lifetime; see
	// newSpanID.
	SpanID string

	// Endpoint is the target Endpoint for an outbound (ingress) probe,
	// or the observed remote address for an accepted connect-back.
	Endpoint netip.AddrPort

	// State is this probe's current state-machine position.
	State State

	// HTTPCode is the parsed CONNECT response status, 0 until parsed.
	HTTPCode int

	// Nonce is the 64-byte token emitted by an ingress probe, or read
	// from a DIFF_BACK egress probe's first line. Empty until emitted
	// or read.
	Nonce string

	// LastActivity is updated on every event delivered to this probe
	// and is what the reaper compares against ReapDeadline.
	LastActivity time.Time

	// Interest is the current epoll interest mask.
	Interest uint32

	// Ingress is true for probes created by the factory (outbound
	// dials); false for probes created by the connect-back listener
	// (SAME_BACK, DIFF_BACK).
	Ingress bool

	// Peer links a DISCOVERED pair's two probes to each other, and
	// links a SAME_BACK probe's inbound record to the outbound probe it
	// confirmed. Nil otherwise.
	Peer *Probe

	// recvBuf accumulates bytes read so far while waiting for a
	// complete first line (banner or nonce), bounded by
	// BannerReadLimit.
	recvBuf []byte

	// synDeadline is the absolute time an INITIATED probe is treated as
	// having failed to connect, per Open Question (b). Zero means no
	// deadline tracked (non-INITIATED probes leave this unset).
	synDeadline time.Time
}
