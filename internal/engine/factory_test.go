//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRunFactoryRespectsMaxInFlight(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.MaxInFlight = 1

	fd, _ := socketpairFDs(t)
	existing := &Probe{Fd: fd, Endpoint: netip.MustParseAddrPort("198.51.100.1:80"), Ingress: true}
	require.NoError(t, e.registerProbe(existing, unix.EPOLLOUT))

	ep := netip.MustParseAddrPort("198.51.100.2:80")
	e.staging.Push(ep)

	e.runFactory()

	require.Equal(t, 1, e.staging.Len(), "factory must not admit past MaxInFlight")
	require.Equal(t, 1, e.handles.networkProbeCount())
}

func TestRunFactorySkipsEndpointAlreadyTracked(t *testing.T) {
	e := newTestEngine(t)
	e.cfg.MaxInFlight = 8

	fd, _ := socketpairFDs(t)
	ep := netip.MustParseAddrPort("198.51.100.3:443")
	tracked := &Probe{Fd: fd, Endpoint: ep, Ingress: true}
	require.NoError(t, e.registerProbe(tracked, unix.EPOLLOUT))

	e.staging.Push(ep)

	e.runFactory()

	require.Equal(t, 0, e.staging.Len(), "a tracked endpoint must be drained and discarded, not left queued")
	require.Equal(t, 1, e.handles.networkProbeCount(), "no second probe should be created for an already-tracked IP")
}
