//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestRunReaperEvictsExpiredSynDeadline(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)

	now := time.Now()
	e.cfg.TimeNow = func() time.Time { return now }

	p := &Probe{
		Fd:          fd,
		Endpoint:    netip.MustParseAddrPort("203.0.113.5:80"),
		State:       StateInitiated,
		synDeadline: now.Add(-1 * time.Second),
	}
	require.NoError(t, e.registerProbe(p, unix.EPOLLOUT))

	e.runReaper()

	require.Equal(t, 0, e.handles.networkProbeCount())
}

func TestRunReaperKeepsFreshInitiatedProbe(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)

	now := time.Now()
	e.cfg.TimeNow = func() time.Time { return now }

	p := &Probe{
		Fd:          fd,
		Endpoint:    netip.MustParseAddrPort("203.0.113.5:80"),
		State:       StateInitiated,
		synDeadline: now.Add(1 * time.Hour),
	}
	require.NoError(t, e.registerProbe(p, unix.EPOLLOUT))

	e.runReaper()

	require.Equal(t, 1, e.handles.networkProbeCount())
}

func TestRunReaperEvictsStaleNonInitiatedProbe(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)

	now := time.Now()
	e.cfg.TimeNow = func() time.Time { return now }
	e.cfg.ReapDeadline = 10 * time.Second

	p := &Probe{
		Fd:           fd,
		Endpoint:     netip.MustParseAddrPort("203.0.113.5:80"),
		State:        StateSentToken,
		LastActivity: now.Add(-1 * time.Minute),
	}
	require.NoError(t, e.registerProbe(p, unix.EPOLLIN))

	e.runReaper()

	require.Equal(t, 0, e.handles.networkProbeCount())
}

func TestRunReaperUnlinksPeerOnEviction(t *testing.T) {
	e := newTestEngine(t)
	fd, _ := socketpairFDs(t)

	now := time.Now()
	e.cfg.TimeNow = func() time.Time { return now }
	e.cfg.ReapDeadline = 10 * time.Second

	peer := &Probe{State: StateSentToken}
	p := &Probe{
		Fd:           fd,
		Endpoint:     netip.MustParseAddrPort("203.0.113.5:80"),
		State:        StateSentToken,
		LastActivity: now.Add(-1 * time.Minute),
		Peer:         peer,
	}
	peer.Peer = p
	require.NoError(t, e.registerProbe(p, unix.EPOLLIN))

	e.runReaper()

	require.Nil(t, peer.Peer)
}
