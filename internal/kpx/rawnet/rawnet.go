// Package rawnet provides raw, non-blocking socket primitives.
//
// The core drives every I/O operation through the readiness facility in
// internal/kpx/poll, which requires a pollable integer file descriptor. The
// standard library's net.Conn does not expose one without an unsupported
// escape hatch, so this package talks to golang.org/x/sys/unix directly.
package rawnet

import (
	"net"

	"golang.org/x/sys/unix"
)

// CloseFD closes a file descriptor.
func CloseFD(fd int) error {
	return unix.Close(fd)
}

// ReadFD reads from a file descriptor.
func ReadFD(fd int, buf []byte) (int, error) {
	return unix.Read(fd, buf)
}

// WriteFD writes to a file descriptor.
func WriteFD(fd int, buf []byte) (int, error) {
	return unix.Write(fd, buf)
}

// Connect opens a non-blocking TCP socket and connects it to addr.
// The connect is issued non-blocking; callers should poll the returned fd
// for writability to detect completion, matching how the readiness loop
// drives every other I/O operation.
func Connect(addr *net.TCPAddr) (int, error) {
	var domain int
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil {
		domain = unix.AF_INET
		var a unix.SockaddrInet4
		a.Port = addr.Port
		copy(a.Addr[:], ip4)
		sa = &a
	} else {
		domain = unix.AF_INET6
		var a unix.SockaddrInet6
		a.Port = addr.Port
		copy(a.Addr[:], addr.IP.To16())
		sa = &a
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Connect(fd, sa); err != nil && err != unix.EINPROGRESS {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Listen opens a non-blocking TCP listening socket bound to addr.
func Listen(addr *net.TCPAddr) (int, error) {
	var domain int
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); ip4 != nil || addr.IP == nil {
		domain = unix.AF_INET
		var a unix.SockaddrInet4
		a.Port = addr.Port
		if ip4 != nil {
			copy(a.Addr[:], ip4)
		}
		sa = &a
	} else {
		domain = unix.AF_INET6
		var a unix.SockaddrInet6
		a.Port = addr.Port
		copy(a.Addr[:], addr.IP.To16())
		sa = &a
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Bind(fd, sa); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 128); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// Accept accepts one connection from a non-blocking listening socket,
// returning a non-blocking client fd. Returns unix.EAGAIN when no
// connection is pending.
func Accept(listenFD int) (int, error) {
	fd, _, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, err
	}
	return fd, nil
}

// IsTransient reports whether err represents a would-block condition that
// the caller should retry on the next readiness event rather than treat as
// a hard failure.
func IsTransient(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINPROGRESS
}

// LocalAddr returns the address a listening or connected socket is bound
// to, for logging purposes.
func LocalAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, err
	}
	return sockaddrToTCPAddr(sa), nil
}

// PeerAddr returns the remote address of a connected socket, for logging
// purposes.
func PeerAddr(fd int) (net.Addr, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return nil, err
	}
	return sockaddrToTCPAddr(sa), nil
}

func sockaddrToTCPAddr(sa unix.Sockaddr) net.Addr {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: net.IP(a.Addr[:]), Port: a.Port}
	default:
		return nil
	}
}
