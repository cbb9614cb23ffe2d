//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// tcpLoopbackFDs returns two connected, real AF_INET descriptors (a
// dialed client socket and its accepted counterpart), needed because
// applySocketHygiene sets IP-level socket options that AF_UNIX
// descriptors reject.
func tcpLoopbackFDs(t *testing.T) (clientFd, serverFd int) {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		require.NoError(t, err)
		accepted <- c
	}()

	client, err := net.Dial("tcp4", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	server := <-accepted
	t.Cleanup(func() { server.Close() })

	cf, err := client.(*net.TCPConn).File()
	require.NoError(t, err)
	t.Cleanup(func() { cf.Close() })

	sf, err := server.(*net.TCPConn).File()
	require.NoError(t, err)
	t.Cleanup(func() { sf.Close() })

	return int(cf.Fd()), int(sf.Fd())
}

func TestClassifyConnectBackSameBack(t *testing.T) {
	e := newTestEngine(t)
	outFd, inFd := tcpLoopbackFDs(t)

	ep := netip.MustParseAddrPort("203.0.113.7:443")
	owner := &Probe{Fd: outFd, Endpoint: ep, Ingress: true, State: StateEstablished}
	require.NoError(t, e.registerProbe(owner, unix.EPOLLOUT))

	e.classifyConnectBack(inFd, ep)

	require.Equal(t, StateDiscovered, owner.State)
	require.Equal(t, 0, e.handles.networkProbeCount())
}

func TestClassifyConnectBackDiffBack(t *testing.T) {
	e := newTestEngine(t)
	_, inFd := tcpLoopbackFDs(t)

	unrelated := netip.MustParseAddrPort("203.0.113.8:443")

	e.classifyConnectBack(inFd, unrelated)

	require.Equal(t, 1, e.handles.networkProbeCount())
	r, ok := e.handles[inFd]
	require.True(t, ok)
	require.Equal(t, StateDiffBack, r.probe.State)
	require.False(t, r.probe.Ingress)
}
