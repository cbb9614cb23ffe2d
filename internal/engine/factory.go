//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/events"
)

// runFactory drains the staging queue into fresh outbound probes,
// subject to spec section 4.2's admission rule: "Do not start a probe
// for an endpoint already tracked by the IP index, and never exceed
// MaxInFlight concurrently registered probes."
func (e *Engine) runFactory() {
	for e.handles.networkProbeCount() < e.cfg.MaxInFlight {
		ep, ok := e.staging.Pop()
		if !ok {
			return
		}
		if _, tracked := e.findByIP(ep.Addr()); tracked {
			continue
		}
		e.startProbe(ep)
	}
}

// startProbe opens a non-blocking outbound socket toward ep and begins
// the TCP handshake, per spec section 4.2 step 1. Failure to even open
// a socket is reported as an error event; it does not occupy a
// handle slot.
func (e *Engine) startProbe(ep netip.AddrPort) {
	fd, err := newOutboundSocket(e.cfg.SynRetries)
	if err != nil {
		e.emit(events.Event{
			Tag:      events.TagError,
			Symbol:   events.SymFailure,
			Endpoint: ep.String(),
			State:    StateInitiated.String(),
			Message:  "socket: " + classify(err),
		})
		return
	}

	if err := beginConnect(fd, ep); err != nil {
		closeSocket(fd)
		e.emit(events.Event{
			Tag:      events.TagError,
			Symbol:   events.SymFailure,
			Endpoint: ep.String(),
			State:    StateInitiated.String(),
			Message:  "connect: " + classify(err),
		})
		return
	}

	p := &Probe{
		Fd:           fd,
		SpanID:       newSpanID(),
		Endpoint:     ep,
		State:        StateInitiated,
		Ingress:      true,
		LastActivity: e.now(),
		synDeadline:  e.now().Add(e.cfg.SynDeadline),
	}

	if err := e.registerProbe(p, unix.EPOLLOUT); err != nil {
		closeSocket(fd)
		e.emit(events.Event{
			Tag:      events.TagError,
			Symbol:   events.SymFailure,
			Endpoint: ep.String(),
			SpanID:   p.SpanID,
			State:    StateInitiated.String(),
			Message:  "register: " + classify(err),
		})
		return
	}

	e.emit(events.Event{
		Tag:      events.TagAttempt,
		Symbol:   events.SymIngress,
		HandleID: fd,
		SpanID:   p.SpanID,
		State:    p.State.String(),
		Endpoint: ep.String(),
	})
}

