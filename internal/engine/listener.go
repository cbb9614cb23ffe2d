//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/errclass"
	"github.com/iogf/slitscan/internal/events"
)

// acceptConnectBack drains the connect-back listener, per spec section
// 4.4: "On readable: accept one connection; make it non-blocking;
// classify against the IP index."
//
// acceptOne is called in a loop since epoll's level-triggered default
// may coalesce several pending accepts into a single readiness
// notification. A fatal classification of an accept error is returned
// to the caller, per spec section 4.4: "Listener-level error/hangup
// conditions on the listening socket itself are fatal."
func (e *Engine) acceptConnectBack() error {
	for {
		fd, remote, err := acceptOne(e.listenFd)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return nil
			}
			class := classify(err)
			e.emit(events.Event{
				Tag:     events.TagError,
				Symbol:  events.SymFailure,
				State:   "listener",
				Message: "accept: " + class,
			})
			if errclass.KindOf(class) == errclass.KindFatal {
				return fmt.Errorf("engine: listener accept: %w", err)
			}
			return nil
		}
		e.classifyConnectBack(fd, remote)
	}
}

// classifyConnectBack implements spec section 4.4's SAME_BACK/DIFF_BACK
// split: "If the accepted peer's IP matches an ingress probe's target
// (IP index hit) and that probe is ESTABLISHED or later, this is a
// SAME_BACK confirmation ... Otherwise this is a DIFF_BACK candidate,
// tracked independently pending a nonce on its first line."
func (e *Engine) classifyConnectBack(fd int, remote netip.AddrPort) {
	if err := applySocketHygiene(fd); err != nil {
		closeSocket(fd)
		e.emit(events.Event{
			Tag:     events.TagError,
			Symbol:  events.SymFailure,
			State:   "listener",
			Message: "hygiene: " + classify(err),
		})
		return
	}

	p := &Probe{
		Fd:           fd,
		SpanID:       newSpanID(),
		Endpoint:     remote,
		LastActivity: e.now(),
	}

	if owner, ok := e.findByIP(remote.Addr()); ok && owner.State >= StateEstablished {
		p.State = StateSameBack
		p.Peer = owner
		owner.Peer = p

		if err := e.registerProbe(p, 0); err != nil {
			e.emit(events.Event{
				Tag:     events.TagError,
				Symbol:  events.SymFailure,
				SpanID:  p.SpanID,
				State:   StateSameBack.String(),
				Message: "register: " + classify(err),
			})
			closeSocket(fd)
			return
		}
		// The connect-back itself IS the confirmation here (the peer IP
		// matches the outbound probe's own target): a plain open proxy,
		// not a tunnel with distinct ingress/egress legs. finalizeDiscovery
		// emits the single "><" line for this case.
		e.finalizeDiscovery(owner, p, true)
		return
	}

	p.State = StateDiffBack
	if err := e.registerProbe(p, unix.EPOLLIN); err != nil {
		e.emit(events.Event{
			Tag:     events.TagError,
			Symbol:  events.SymFailure,
			SpanID:  p.SpanID,
			State:   StateDiffBack.String(),
			Message: "register: " + classify(err),
		})
		closeSocket(fd)
		return
	}
	e.emit(events.Event{
		Tag:      events.TagConnectBack,
		Symbol:   events.SymEgress,
		HandleID: fd,
		SpanID:   p.SpanID,
		State:    StateDiffBack.String(),
		Endpoint: remote.String(),
	})
}

// finalizeDiscovery marks both sides of a confirmed pair DISCOVERED and
// emits the tunnel-discovered event(s), per spec sections 4.5 and 4.7.
//
// sameBack is true for a SAME_BACK confirmation (the connect-back's
// peer IP matches the outbound probe's own target): a plain open proxy,
// logged as a single "><" line. sameBack is false for a DIFF_BACK/nonce
// correlation: a genuine tunnel, logged as two distinct lines — "()" for
// the ingress (outbound) probe and ")(" for the egress (accepted)
// probe — so downstream tools grepping on the phase symbol see both
// legs.
func (e *Engine) finalizeDiscovery(outbound, inbound *Probe, sameBack bool) {
	outbound.State = StateDiscovered
	inbound.State = StateDiscovered

	if sameBack {
		e.emit(events.Event{
			Tag:      events.TagTunnelDiscovered,
			Symbol:   events.SymPlainSuccess,
			HandleID: outbound.Fd,
			SpanID:   outbound.SpanID,
			State:    StateDiscovered.String(),
			Endpoint: outbound.Endpoint.String(),
		})
	} else {
		e.emit(events.Event{
			Tag:      events.TagTunnelDiscovered,
			Symbol:   events.SymIngress,
			HandleID: outbound.Fd,
			SpanID:   outbound.SpanID,
			State:    StateDiscovered.String(),
			Endpoint: outbound.Endpoint.String(),
		})
		e.emit(events.Event{
			Tag:      events.TagTunnelDiscovered,
			Symbol:   events.SymEgress,
			HandleID: inbound.Fd,
			SpanID:   inbound.SpanID,
			State:    StateDiscovered.String(),
			Endpoint: inbound.Endpoint.String(),
		})
	}

	e.unregister(outbound)
	e.unregister(inbound)
}
