//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/events"
	"github.com/iogf/slitscan/internal/queue"
)

// newTestEngine returns a minimal [*Engine] with a real epoll instance
// but no listener or ingest pipe, suitable for exercising the
// register/unregister/reap/factory primitives directly.
func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	require.NoError(t, err)
	t.Cleanup(func() { unix.Close(epfd) })

	cfg := NewConfig()
	cfg.TimeNow = time.Now

	return &Engine{
		cfg:        cfg,
		sink:       events.DiscardSink{},
		epfd:       epfd,
		listenFd:   -1,
		handles:    newHandles(),
		ipIndex:    make(map[netip.Addr]*Probe),
		nonceIndex: make(map[string]*Probe),
		staging:    queue.New(),
	}
}

// socketpairFDs returns two connected, closeable descriptors suitable
// for standing in for a probe's socket in tests that do not need real
// network I/O.
func socketpairFDs(t *testing.T) (int, int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Close(fds[0])
		unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestRegisterProbeIndexesByIP(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)
	ep := netip.MustParseAddrPort("203.0.113.5:8080")
	p := &Probe{Fd: fd, Endpoint: ep, Ingress: true, State: StateInitiated}

	require.NoError(t, e.registerProbe(p, unix.EPOLLIN))

	got, ok := e.findByIP(ep.Addr())
	require.True(t, ok)
	require.Same(t, p, got)
	require.Equal(t, 1, e.handles.networkProbeCount())
}

func TestRegisterNonceAndFind(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)
	p := &Probe{Fd: fd, Nonce: "abc123"}
	e.registerNonce(p)

	got, ok := e.findByNonce("abc123")
	require.True(t, ok)
	require.Same(t, p, got)
	require.True(t, e.nonceExists("abc123"))
	require.False(t, e.nonceExists("missing"))
}

func TestUnregisterRemovesFromAllTables(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)
	ep := netip.MustParseAddrPort("203.0.113.5:8080")
	p := &Probe{Fd: fd, Endpoint: ep, Ingress: true, Nonce: "abc123"}

	require.NoError(t, e.registerProbe(p, unix.EPOLLIN))
	e.registerNonce(p)

	e.unregister(p)

	_, ok := e.findByIP(ep.Addr())
	require.False(t, ok)
	_, ok = e.findByNonce("abc123")
	require.False(t, ok)
	require.Equal(t, 0, e.handles.networkProbeCount())
	require.Equal(t, -1, p.Fd)
}

func TestUnregisterIdempotent(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)
	p := &Probe{Fd: fd}
	require.NoError(t, e.registerProbe(p, unix.EPOLLIN))

	e.unregister(p)
	require.NotPanics(t, func() { e.unregister(p) })
}
