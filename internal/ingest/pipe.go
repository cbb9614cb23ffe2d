//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// readBufSize bounds a single non-blocking read from the pipe. Partial
// lines across reads are buffered in Pipe.pending, per spec section 6:
// "Readers must tolerate partial lines across reads."
const readBufSize = 4096

// Pipe wraps a named pipe (FIFO) opened in non-blocking readable mode,
// per spec section 4.1.
//
// Pipe owns exactly one file descriptor at a time; Reopen replaces the
// open file behind it while keeping the descriptor number. The old
// file's registration with the readiness primitive is dropped by the
// kernel, so the caller must register Fd() again after a successful
// Reopen.
type Pipe struct {
	path    string
	fd      int
	pending []byte
}

// Open creates the FIFO at path if it does not exist, then opens it in
// non-blocking read-only mode.
func Open(path string) (*Pipe, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := unix.Mkfifo(path, 0o600); err != nil {
			return nil, fmt.Errorf("ingest: mkfifo %s: %w", path, err)
		}
	}
	p := &Pipe{path: path}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pipe) open() error {
	fd, err := unix.Open(p.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", p.path, err)
	}
	p.fd = fd
	return nil
}

// Fd returns the current file descriptor, suitable for registration
// with the readiness primitive.
func (p *Pipe) Fd() int {
	return p.fd
}

// Close releases the underlying file descriptor.
func (p *Pipe) Close() error {
	if p.fd == 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = 0
	return err
}

// ReadLines performs one non-blocking read and returns any complete
// newline-delimited lines it yields. A transient empty read (EAGAIN) is
// normal and returns (nil, nil): spec section 4.1 says "transient empty
// reads are normal."
//
// A zero-byte read with no error indicates every writer has closed the
// pipe (hangup); ReadLines returns [ErrHangup] so the caller can reopen
// the pipe in place per spec section 4.1.
func (p *Pipe) ReadLines() ([]string, error) {
	buf := make([]byte, readBufSize)
	n, err := unix.Read(p.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("ingest: read: %w", err)
	}
	if n == 0 {
		return nil, ErrHangup
	}
	p.pending = append(p.pending, buf[:n]...)
	return p.drainLines(), nil
}

// drainLines extracts complete lines from p.pending, leaving any
// trailing partial line buffered for the next read.
func (p *Pipe) drainLines() []string {
	var lines []string
	for {
		idx := indexByte(p.pending, '\n')
		if idx < 0 {
			break
		}
		lines = append(lines, string(p.pending[:idx]))
		p.pending = p.pending[idx+1:]
	}
	return lines
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// Reopen closes and reopens the pipe in place, per spec section 4.1's
// hangup handling. The freshly opened file is duplicated onto the old
// descriptor number, so Fd() is unchanged; the caller must still
// re-register it with the readiness primitive.
func (p *Pipe) Reopen() error {
	p.pending = nil
	fd, err := unix.Open(p.path, unix.O_RDONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return fmt.Errorf("ingest: open %s: %w", p.path, err)
	}
	if p.fd == 0 {
		p.fd = fd
		return nil
	}
	err = unix.Dup2(fd, p.fd)
	unix.Close(fd)
	if err != nil {
		return fmt.Errorf("ingest: dup2: %w", err)
	}
	return nil
}

// ErrHangup indicates all writers closed the pipe (a zero-byte read).
var ErrHangup = fmt.Errorf("ingest: pipe hangup")
