//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"github.com/iogf/slitscan/internal/events"
)

// runReaper evicts stale probes, per spec section 4.3's timeout rules
// and Open Question (b)'s belt-and-suspenders deadline: "An INITIATED
// probe past its synDeadline is reaped as a timeout even if the
// TCP_SYNCNT socket option was silently ignored by the kernel. Any
// other probe idle past ReapDeadline is reaped as a timeout."
//
// Reaping never touches a probe already linked to a peer through a
// completed DISCOVERED pair; finalizeDiscovery unregisters both sides
// itself, so by the time the reaper runs such probes are no longer in
// the handle table.
func (e *Engine) runReaper() {
	now := e.now()
	var stale []*Probe
	for _, r := range e.handles {
		if r.kind != ownerProbe {
			continue
		}
		p := r.probe
		if p.State == StateInitiated {
			if !p.synDeadline.IsZero() && now.After(p.synDeadline) {
				stale = append(stale, p)
			}
			continue
		}
		if now.Sub(p.LastActivity) > e.cfg.ReapDeadline {
			stale = append(stale, p)
		}
	}
	for _, p := range stale {
		e.emit(events.Event{
			Tag:      events.TagTimeout,
			Symbol:   events.SymFailure,
			HandleID: p.Fd,
			SpanID:   p.SpanID,
			State:    p.State.String(),
			Endpoint: p.Endpoint.String(),
			Message:  "reaped",
		})
		if peer := p.Peer; peer != nil {
			peer.Peer = nil
		}
		e.unregister(p)
	}
}
