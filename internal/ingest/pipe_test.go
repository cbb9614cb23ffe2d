//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipeReadLinesPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.fifo")

	p, err := Open(path)
	require.NoError(t, err)
	defer p.Close()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		w, err := os.OpenFile(path, os.O_WRONLY, 0)
		require.NoError(t, err)
		defer w.Close()
		_, _ = w.Write([]byte("10.0.0.5:8080\n10.0.0.9:443\nnot-co"))
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("mplete\n"))
	}()

	var all []string
	deadline := time.Now().Add(2 * time.Second)
	for len(all) < 3 && time.Now().Before(deadline) {
		lines, err := p.ReadLines()
		require.NoError(t, err)
		all = append(all, lines...)
		if len(lines) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
	}

	require.Len(t, all, 3)
	require.Equal(t, "10.0.0.5:8080", all[0])
	require.Equal(t, "10.0.0.9:443", all[1])
	require.Equal(t, "not-complete", all[2])

	<-writerDone
}
