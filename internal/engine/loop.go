//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/iogf/slitscan/internal/errclass"
	"github.com/iogf/slitscan/internal/events"
	"github.com/iogf/slitscan/internal/ingest"
)

// maxEpollEvents bounds a single epoll_wait batch. Spec section 4.6
// does not mandate a particular batch size; this mirrors the
// conservative fixed-size batch the reference readiness loop in the
// example pack uses.
const maxEpollEvents = 256

// Run drives the engine's readiness loop until ctx is canceled. Each
// tick reaps, drains the ingest pipe, admits new work from the staging
// queue, waits for readiness, then dispatches.
//
// Run returns nil on a clean ctx cancellation and a non-nil error on
// any unrecoverable failure of the epoll instance itself, or of the
// listener/ingest subsystems once their errors classify as fatal.
func (e *Engine) Run(ctx context.Context) error {
	waitMillis := int(e.cfg.WaitCeiling.Milliseconds())
	if waitMillis <= 0 {
		waitMillis = 1
	}

	var raw [maxEpollEvents]unix.EpollEvent
	for {
		if ctx.Err() != nil {
			return nil
		}

		e.runReaper()
		if err := e.drainIngest(); err != nil {
			return err
		}
		e.runFactory()

		n, err := unix.EpollWait(e.epfd, raw[:], waitMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return err
		}

		for i := 0; i < n; i++ {
			ev := raw[i]
			fd := int(ev.Fd)
			r, ok := e.handles[fd]
			if !ok {
				continue
			}
			switch r.kind {
			case ownerListener:
				if err := e.acceptConnectBack(); err != nil {
					return err
				}
			case ownerIngest:
				if err := e.drainIngest(); err != nil {
					return err
				}
			case ownerProbe:
				e.dispatchProbe(r.probe, ev.Events)
			}
		}
	}
}

// drainIngest reads any complete lines available on the ingest pipe,
// parses each as an endpoint, and stages the valid ones, per spec
// section 4.1: "Each complete line is parsed as an endpoint candidate
// and, if well formed, pushed onto the staging queue."
//
// A hangup (the writer closed its end) is recovered by reopening the
// FIFO in place, per spec section 6: producers may come and go without
// restarting the detector. An unrecoverable ingest failure is fatal, per
// spec section 7: "Ingest anomaly ... fatal if unrecoverable."
func (e *Engine) drainIngest() error {
	lines, err := e.pipe.ReadLines()
	if err != nil {
		if errors.Is(err, ingest.ErrHangup) {
			oldFd := e.pipe.Fd()
			if rerr := e.pipe.Reopen(); rerr != nil {
				class := classify(rerr)
				e.emit(events.Event{
					Tag:     events.TagError,
					Symbol:  events.SymFailure,
					State:   "ingest",
					Message: "reopen: " + class,
				})
				return fmt.Errorf("engine: ingest reopen: %w", rerr)
			}
			delete(e.handles, oldFd)
			newFd := e.pipe.Fd()
			if aerr := e.epollAdd(newFd, unix.EPOLLIN); aerr != nil {
				e.emit(events.Event{
					Tag:     events.TagError,
					Symbol:  events.SymFailure,
					State:   "ingest",
					Message: "reregister: " + classify(aerr),
				})
				return fmt.Errorf("engine: ingest reregister: %w", aerr)
			}
			e.handles[newFd] = registration{kind: ownerIngest}
			return nil
		}
		class := classify(err)
		e.emit(events.Event{
			Tag:     events.TagError,
			Symbol:  events.SymFailure,
			State:   "ingest",
			Message: "read: " + class,
		})
		if errclass.KindOf(class) == errclass.KindFatal {
			return fmt.Errorf("engine: ingest read: %w", err)
		}
		return nil
	}
	for _, line := range lines {
		ep, ok := ingest.ParseEndpoint(line)
		if !ok {
			continue
		}
		e.staging.Push(ep)
	}
	return nil
}
