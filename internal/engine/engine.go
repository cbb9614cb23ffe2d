//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"fmt"
	"net/netip"
	"time"

	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/errclass"
	"github.com/iogf/slitscan/internal/events"
	"github.com/iogf/slitscan/internal/ingest"
	"github.com/iogf/slitscan/internal/queue"
	"github.com/iogf/slitscan/internal/slogx"
)

// Engine is the core of spec section 2: the single-threaded,
// readiness-driven correlation engine.
//
// Engine owns three tables that must stay in lockstep (spec section 3,
// "Lifecycle invariants"): the registered-handle table, the correlation
// index by IP, and the correlation index by nonce. register/unregister
// are the only primitives that mutate them, per spec section 9's design
// note: "Own them inside the engine aggregate; expose insert/remove
// only via the (un)register primitives, never directly."
type Engine struct {
	cfg    *Config
	sink   events.Sink
	logger slogx.Logger

	epfd int

	listenFd int
	pipe     *ingest.Pipe

	handles    handles
	ipIndex    map[netip.Addr]*Probe
	nonceIndex map[string]*Probe

	staging *queue.Staging
}

// New creates an [*Engine] bound to cfg, emitting events to sink and
// logging to logger. It creates the connect-back listener and opens the
// ingest pipe, per spec section 6, but does not yet start the readiness
// loop: call [Engine.Run] for that.
func New(cfg *Config, pipePath string, sink events.Sink, logger slogx.Logger) (*Engine, error) {
	if logger == nil {
		logger = slogx.Discard()
	}
	e := &Engine{
		cfg:        cfg,
		sink:       sink,
		logger:     logger,
		handles:    newHandles(),
		ipIndex:    make(map[netip.Addr]*Probe),
		nonceIndex: make(map[string]*Probe),
		staging:    queue.New(),
	}

	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("engine: epoll_create1: %w", err)
	}
	e.epfd = epfd

	listenFd, err := newListenerSocket(cfg.CallbackBindAddr)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("engine: listener: %w", err)
	}
	e.listenFd = listenFd
	if err := e.epollAdd(listenFd, unix.EPOLLIN); err != nil {
		unix.Close(listenFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("engine: register listener: %w", err)
	}
	e.handles[listenFd] = registration{kind: ownerListener}

	p, err := ingest.Open(pipePath)
	if err != nil {
		unix.Close(listenFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("engine: ingest pipe: %w", err)
	}
	e.pipe = p
	if err := e.epollAdd(p.Fd(), unix.EPOLLIN); err != nil {
		p.Close()
		unix.Close(listenFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("engine: register ingest pipe: %w", err)
	}
	e.handles[p.Fd()] = registration{kind: ownerIngest}

	return e, nil
}

// Close tears down the listener, the ingest pipe, every registered
// probe, and the epoll instance. Safe to call once after Run returns.
func (e *Engine) Close() {
	for fd, r := range e.handles {
		if r.kind == ownerProbe {
			closeSocket(fd)
		}
	}
	e.handles = newHandles()
	e.ipIndex = make(map[netip.Addr]*Probe)
	e.nonceIndex = make(map[string]*Probe)
	if e.pipe != nil {
		e.pipe.Close()
	}
	if e.listenFd >= 0 {
		closeSocket(e.listenFd)
	}
	if e.epfd >= 0 {
		unix.Close(e.epfd)
	}
}

func (e *Engine) epollAdd(fd int, events uint32) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (e *Engine) epollMod(fd int, events uint32) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{Fd: int32(fd), Events: events})
}

func (e *Engine) epollDel(fd int) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// registerProbe adds p to the handle table and, for ingress probes, to
// the IP index, per spec section 3's lifecycle invariants: "A probe
// enters the handle table and the IP index at registration."
func (e *Engine) registerProbe(p *Probe, interest uint32) error {
	if err := e.epollAdd(p.Fd, interest); err != nil {
		return err
	}
	p.Interest = interest
	e.handles[p.Fd] = registration{kind: ownerProbe, probe: p}
	if p.Ingress {
		e.ipIndex[p.Endpoint.Addr()] = p
	}
	return nil
}

// setInterest updates p's epoll interest mask in place.
func (e *Engine) setInterest(p *Probe, interest uint32) error {
	if err := e.epollMod(p.Fd, interest); err != nil {
		return err
	}
	p.Interest = interest
	return nil
}

// registerNonce adds p to the nonce index, per spec section 3: "it
// enters the nonce index only after emitting a nonce."
func (e *Engine) registerNonce(p *Probe) {
	e.nonceIndex[p.Nonce] = p
}

// nonceExists reports whether nonce is already registered, used by
// newUniqueNonce's collision check.
func (e *Engine) nonceExists(nonce string) bool {
	_, ok := e.nonceIndex[nonce]
	return ok
}

// findByIP returns the registered ingress probe targeting ip, if any,
// per spec section 4.4's SAME_BACK classification.
func (e *Engine) findByIP(ip netip.Addr) (*Probe, bool) {
	p, ok := e.ipIndex[ip]
	return p, ok
}

// findByNonce returns the ingress probe that emitted nonce, if any, per
// spec section 4.3's DIFF_BACK → RECV_TOKEN lookup.
func (e *Engine) findByNonce(nonce string) (*Probe, bool) {
	p, ok := e.nonceIndex[nonce]
	return p, ok
}

// unregister removes p from all three tables atomically (from the
// single-threaded loop's perspective) and closes its socket. Calling
// unregister twice on the same probe is a no-op the second time, per
// spec section 8's idempotence property: p.Fd is reset to -1 after the
// first call, and every path into unregister is guarded on the handle
// table still holding p.
func (e *Engine) unregister(p *Probe) {
	if _, ok := e.handles[p.Fd]; !ok {
		return
	}
	delete(e.handles, p.Fd)
	if p.Ingress {
		if cur, ok := e.ipIndex[p.Endpoint.Addr()]; ok && cur == p {
			delete(e.ipIndex, p.Endpoint.Addr())
		}
	}
	if p.Nonce != "" {
		if cur, ok := e.nonceIndex[p.Nonce]; ok && cur == p {
			delete(e.nonceIndex, p.Nonce)
		}
	}
	e.epollDel(p.Fd)
	closeSocket(p.Fd)
	p.Fd = -1
}

// now returns the engine's notion of the current time, honoring
// [Config.TimeNow] so tests can control elapsed-time behavior.
func (e *Engine) now() time.Time {
	return e.cfg.TimeNow()
}

// emit forwards an event to the configured sink.
func (e *Engine) emit(ev events.Event) {
	e.sink.Emit(ev)
}

// classify is a shorthand for tagging an error with the engine's
// classifier, per the ambient error-handling stack in SPEC_FULL.md.
func classify(err error) string {
	return errclass.New(err)
}
