package entry

import (
	"io"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/rawnet"
)

// rawEndpoint adapts a raw non-blocking socket fd to engine.Endpoint, used
// by TCPEntry for accepted client connections.
type rawEndpoint struct {
	fd int
}

func (r *rawEndpoint) Descriptor() int { return r.fd }

func (r *rawEndpoint) Read(buf []byte) (int, error) {
	n, err := rawnet.ReadFD(r.fd, buf)
	if err != nil {
		return 0, &kpxerr.IOError{Cause: err, Message: "tcp entry: read failed", Transient: rawnet.IsTransient(err)}
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (r *rawEndpoint) Write(buf []byte) (int, error) {
	n, err := rawnet.WriteFD(r.fd, buf)
	if err != nil {
		return 0, &kpxerr.IOError{Cause: err, Message: "tcp entry: write failed", Transient: rawnet.IsTransient(err)}
	}
	return n, nil
}

func (r *rawEndpoint) Close() error {
	return rawnet.CloseFD(r.fd)
}
