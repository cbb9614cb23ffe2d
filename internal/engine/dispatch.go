//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"errors"
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/events"
)

// errHangup reports a zero-byte read on a probe socket: the peer closed
// its side of the connection.
var errHangup = errors.New("engine: peer hung up")

// dispatchProbe routes one epoll readiness notification to the state
// transition it implies, per spec section 4.3's state table.
func (e *Engine) dispatchProbe(p *Probe, evBits uint32) {
	if evBits&(unix.EPOLLERR|unix.EPOLLHUP) != 0 {
		e.failProbe(p, connectError(p.Fd))
		return
	}

	switch p.State {
	case StateInitiated:
		if evBits&unix.EPOLLOUT != 0 {
			e.onConnectComplete(p)
		}
	case StateSentConnect:
		if evBits&unix.EPOLLIN != 0 {
			e.onBannerReadable(p)
		}
	case StateDiffBack:
		if evBits&unix.EPOLLIN != 0 {
			e.onDiffBackReadable(p)
		}
	default:
		// SENT_TOKEN, RECV_TOKEN, SAME_BACK and DISCOVERED probes do not
		// expect further readiness on their own descriptor; any activity
		// here is drained and ignored.
		if evBits&unix.EPOLLIN != 0 {
			var buf [256]byte
			unix.Read(p.Fd, buf[:])
		}
	}
}

// onConnectComplete handles the INITIATED → ESTABLISHED → SENT_CONNECT
// transition of spec section 4.3: the non-blocking connect has
// resolved, so check SO_ERROR, then immediately send the CONNECT
// request.
func (e *Engine) onConnectComplete(p *Probe) {
	p.LastActivity = e.now()
	if err := connectError(p.Fd); err != nil {
		e.failProbe(p, err)
		return
	}
	p.State = StateEstablished

	req := buildConnectRequest(e.cfg.CallbackAdvertiseAddr.String())
	if _, err := unix.Write(p.Fd, req); err != nil {
		e.failProbe(p, err)
		return
	}
	p.State = StateSentConnect
	if err := e.setInterest(p, unix.EPOLLIN); err != nil {
		e.failProbe(p, err)
		return
	}
	e.emit(events.Event{
		Tag:      events.TagAttempt,
		Symbol:   events.SymIngress,
		HandleID: p.Fd,
		SpanID:   p.SpanID,
		State:    p.State.String(),
		Endpoint: p.Endpoint.String(),
	})
}

// onBannerReadable accumulates the CONNECT response's first line and,
// once complete, parses it and advances to RECV_CODE, then immediately
// mints and sends the correlation nonce (SENT_TOKEN), per spec section
// 4.3.
func (e *Engine) onBannerReadable(p *Probe) {
	var buf [256]byte
	n, err := unix.Read(p.Fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		e.failProbe(p, err)
		return
	}
	if n == 0 {
		e.failProbe(p, errHangup)
		return
	}
	p.LastActivity = e.now()
	p.recvBuf = appendBounded(p.recvBuf, buf[:n])

	line, ok := firstLine(p.recvBuf)
	if !ok {
		return
	}
	code, ok := parseStatusLine(line)
	if !ok {
		e.emit(events.Event{
			Tag:      events.TagError,
			Symbol:   events.SymFailure,
			HandleID: p.Fd,
			SpanID:   p.SpanID,
			State:    p.State.String(),
			Endpoint: p.Endpoint.String(),
			Message:  "malformed banner",
		})
		e.unregister(p)
		return
	}
	p.HTTPCode = code
	p.State = StateRecvCode

	if code != 200 {
		e.emit(events.Event{
			Tag:      events.TagError,
			Symbol:   events.SymFailure,
			HandleID: p.Fd,
			SpanID:   p.SpanID,
			State:    p.State.String(),
			Endpoint: p.Endpoint.String(),
			Message:  "http_code=" + strconv.Itoa(code),
		})
		e.unregister(p)
		return
	}

	nonce, err := newUniqueNonce(e.nonceExists)
	if err != nil {
		e.failProbe(p, err)
		return
	}
	p.Nonce = nonce
	if _, err := unix.Write(p.Fd, []byte(nonce)); err != nil {
		e.failProbe(p, err)
		return
	}
	e.registerNonce(p)
	p.State = StateSentToken
	e.emit(events.Event{
		Tag:      events.TagAttempt,
		Symbol:   events.SymIngress,
		HandleID: p.Fd,
		SpanID:   p.SpanID,
		State:    p.State.String(),
		Endpoint: p.Endpoint.String(),
		Message:  "http_code=" + strconv.Itoa(code),
	})
}

// onDiffBackReadable reads a DIFF_BACK candidate's first line and
// checks it against the nonce index, per spec section 4.4: "a DIFF_BACK
// candidate whose first line matches a registered nonce is promoted,
// alongside the probe that emitted that nonce, to DISCOVERED."
func (e *Engine) onDiffBackReadable(p *Probe) {
	var buf [256]byte
	n, err := unix.Read(p.Fd, buf[:])
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return
		}
		e.failProbe(p, err)
		return
	}
	if n == 0 {
		e.failProbe(p, errHangup)
		return
	}
	p.LastActivity = e.now()
	p.recvBuf = appendBounded(p.recvBuf, buf[:n])

	line, ok := firstLine(p.recvBuf)
	if !ok {
		return
	}

	owner, ok := e.findByNonce(line)
	if !ok {
		e.emit(events.Event{
			Tag:      events.TagError,
			Symbol:   events.SymFailure,
			HandleID: p.Fd,
			SpanID:   p.SpanID,
			State:    p.State.String(),
			Endpoint: p.Endpoint.String(),
			Message:  "unrecognized nonce",
		})
		e.unregister(p)
		return
	}

	owner.State = StateRecvToken
	p.Nonce = line
	p.Peer = owner
	owner.Peer = p
	e.finalizeDiscovery(owner, p, false)
}

// failProbe reports a probe's terminal error and removes it, per spec
// section 4.3's error handling: any classified error at any state is an
// unconditional tear-down.
func (e *Engine) failProbe(p *Probe, err error) {
	e.emit(events.Event{
		Tag:      events.TagError,
		Symbol:   events.SymFailure,
		HandleID: p.Fd,
		SpanID:   p.SpanID,
		State:    p.State.String(),
		Endpoint: p.Endpoint.String(),
		Message:  classify(err),
	})
	e.unregister(p)
}
