package pipeline

import (
	"net"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/rawnet"
)

// TCPStep is the canonical remote-forwarding step.
// Forward writes the buffer verbatim to the outbound socket and
// returns it unchanged; Backward reads up to bufferSize bytes from the
// outbound socket and returns exactly what was read. Its descriptor is the
// outbound socket.
type TCPStep struct {
	addr       *net.TCPAddr
	bufferSize int
	fd         int
}

var _ Step = (*TCPStep)(nil)

// NewTCPStep opens a non-blocking outbound connection to addr.
func NewTCPStep(addr *net.TCPAddr, bufferSize int) (*TCPStep, error) {
	fd, err := rawnet.Connect(addr)
	if err != nil {
		return nil, &kpxerr.IOError{Cause: err, Message: "tcp step: connect failed", Transient: rawnet.IsTransient(err)}
	}
	return &TCPStep{addr: addr, bufferSize: bufferSize, fd: fd}, nil
}

func (s *TCPStep) Kind() string { return "tcp" }

// Descriptor returns the outbound socket fd.
func (s *TCPStep) Descriptor() int { return s.fd }

// Clone opens a fresh outbound connection rather than duplicating the fd,
// so two sibling pipelines never race on the same handle and fail
// independently.
func (s *TCPStep) Clone() (Step, error) {
	return NewTCPStep(s.addr, s.bufferSize)
}

// Forward writes data to the outbound connection verbatim and returns it
// unchanged, so a following step (if any) sees the same bytes.
func (s *TCPStep) Forward(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}
	n, err := rawnet.WriteFD(s.fd, data)
	if err != nil {
		return nil, &kpxerr.IOError{Cause: err, Message: "tcp step: write failed", Transient: rawnet.IsTransient(err)}
	}
	return data[:n], nil
}

// Backward reads up to bufferSize bytes from the outbound connection and
// returns exactly the bytes read.
func (s *TCPStep) Backward(_ []byte) ([]byte, error) {
	bufSize := s.bufferSize
	if bufSize <= 0 {
		bufSize = 8192
	}
	buf := make([]byte, bufSize)
	n, err := rawnet.ReadFD(s.fd, buf)
	if err != nil {
		if rawnet.IsTransient(err) {
			return nil, &kpxerr.IOError{Cause: err, Message: "tcp step: read would block", Transient: true}
		}
		return nil, &kpxerr.IOError{Cause: err, Message: "tcp step: read failed"}
	}
	return buf[:n], nil
}

// Close releases the outbound socket.
func (s *TCPStep) Close() error {
	return rawnet.CloseFD(s.fd)
}
