//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"net/netip"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/ingest"
)

func writeToFifo(t *testing.T, path string, data []byte) {
	t.Helper()
	fd, err := unix.Open(path, unix.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = unix.Write(fd, data)
	require.NoError(t, err)
	require.NoError(t, unix.Close(fd))
}

func TestDrainIngestParsesAndStagesValidLines(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "candidates.fifo")

	p, err := ingest.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	e.pipe = p

	writeToFifo(t, path, []byte("203.0.113.9:8080\nnot-an-endpoint\n198.51.100.4:22\n"))

	require.NoError(t, e.drainIngest())

	require.Equal(t, 2, e.staging.Len())
	require.True(t, e.staging.Contains(netip.MustParseAddrPort("203.0.113.9:8080")))
	require.True(t, e.staging.Contains(netip.MustParseAddrPort("198.51.100.4:22")))
}

func TestDrainIngestReopensOnHangup(t *testing.T) {
	e := newTestEngine(t)
	path := filepath.Join(t.TempDir(), "candidates.fifo")

	p, err := ingest.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	e.pipe = p

	writeToFifo(t, path, []byte("203.0.113.9:8080\n"))
	require.NoError(t, e.drainIngest())
	require.Equal(t, 1, e.staging.Len())

	oldFd := e.pipe.Fd()

	require.NoError(t, e.drainIngest())

	require.Equal(t, oldFd, e.pipe.Fd(), "a hangup must reopen the pipe in place, keeping its descriptor number")
	require.NoError(t, e.epollMod(e.pipe.Fd(), unix.EPOLLIN), "the reopened pipe must be registered with epoll again")
	r, hasNew := e.handles[e.pipe.Fd()]
	require.True(t, hasNew)
	require.Equal(t, ownerIngest, r.kind)
}
