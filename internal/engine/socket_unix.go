//go:build unix

// SPDX-License-Identifier: GPL-3.0-or-later

package engine

import (
	"fmt"
	"net/netip"

	"golang.org/x/sys/unix"
)

// applySocketHygiene applies the option set spec section 5 mandates for
// every outbound and accepted socket: "non-blocking; linger (on=1,
// linger=0) so close() is a hard reset that avoids TIME_WAIT
// accumulation; keep-alive off; low-delay IP ToS."
func applySocketHygiene(fd int) error {
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("setnonblock: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0); err != nil {
		return fmt.Errorf("setsockopt SO_KEEPALIVE: %w", err)
	}
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, &unix.Linger{Onoff: 1, Linger: 0}); err != nil {
		return fmt.Errorf("setsockopt SO_LINGER: %w", err)
	}
	// IPTOS_LOWDELAY (0x10): spec section 5, "low-delay IP ToS".
	const iptosLowDelay = 0x10
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IP, unix.IP_TOS, iptosLowDelay); err != nil {
		return fmt.Errorf("setsockopt IP_TOS: %w", err)
	}
	return nil
}

// newOutboundSocket creates a non-blocking TCP/IPv4 socket, applies
// socket hygiene, and requests a bounded SYN retry count, per spec
// section 4.2 step 1.
func newOutboundSocket(synRetries int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := applySocketHygiene(fd); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if synRetries > 0 {
		// Best-effort: not all kernels expose TCP_SYNCNT. Open Question
		// (b) tracks a synDeadline as a belt-and-suspenders fallback in
		// case this is silently ignored.
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_SYNCNT, synRetries)
	}
	return fd, nil
}

// beginConnect starts a non-blocking connect. EINPROGRESS is the
// expected outcome: the caller registers for writable/error/hangup and
// waits for the connect to complete.
func beginConnect(fd int, ep netip.AddrPort) error {
	sa := sockaddrFromAddrPort(ep)
	err := unix.Connect(fd, sa)
	if err == nil || err == unix.EINPROGRESS {
		return nil
	}
	return err
}

// connectError returns the socket's pending error (SO_ERROR), the
// standard way to learn the outcome of a non-blocking connect once the
// descriptor becomes writable.
func connectError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

// newListenerSocket creates, binds, and listens on a non-blocking
// TCP/IPv4 socket, per spec section 4.4 and section 6 ("Binds a
// user-supplied TCP endpoint").
func newListenerSocket(bind netip.AddrPort) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setnonblock: %w", err)
	}
	if err := unix.Bind(fd, sockaddrFromAddrPort(bind)); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", bind, err)
	}
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}
	return fd, nil
}

// acceptOne accepts a single connection from the listener, returning it
// already non-blocking, per spec section 4.4: "On readable: accept one
// connection; make it non-blocking."
func acceptOne(listenFd int) (int, netip.AddrPort, error) {
	fd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, netip.AddrPort{}, err
	}
	ap, ok := addrPortFromSockaddr(sa)
	if !ok {
		unix.Close(fd)
		return -1, netip.AddrPort{}, fmt.Errorf("accept: unsupported sockaddr type %T", sa)
	}
	return fd, ap, nil
}

func sockaddrFromAddrPort(ap netip.AddrPort) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: int(ap.Port())}
	sa.Addr = ap.Addr().As4()
	return sa
}

func addrPortFromSockaddr(sa unix.Sockaddr) (netip.AddrPort, bool) {
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return netip.AddrPort{}, false
	}
	addr := netip.AddrFrom4(in4.Addr)
	return netip.AddrPortFrom(addr, uint16(in4.Port)), true
}

// closeSocket closes fd, tolerating an already-closed descriptor so
// that unregister (spec section 3: "A probe's socket is closed on
// unregister and never reused") stays idempotent.
func closeSocket(fd int) error {
	if fd < 0 {
		return nil
	}
	err := unix.Close(fd)
	if err == unix.EBADF {
		return nil
	}
	return err
}
