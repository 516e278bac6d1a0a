package entry

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/kamranrad1993/kproxy/internal/kpx/addr"
	"github.com/kamranrad1993/kproxy/internal/kpx/engine"
	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// HTTPEntry is the framed request/response entry variant: the ingress
// endpoint is a multiplexed HTTP/2 request stream, "read from ingress"
// means reading the request body, "write to ingress" means sending a
// response/body chunk, via golang.org/x/net/http2's server-side framing.
//
// http2.Server.ServeConn drives each accepted connection (and every
// request stream on it) from its own goroutines, a different concurrency
// model than TCPEntry's single-threaded readiness loop; that is inherent
// to the framing library. Per request this still builds an engine.Context
// with the same forward/backward buffer discipline as every other entry,
// so the pipeline and step layers are unaware they are being driven by a
// goroutine-per-stream model instead of a poll loop.
type HTTPEntry struct {
	listener net.Listener
	template *pipeline.Pipeline
	server   *http2.Server
	bufSize  int
	level    klog.Level
	logger   *logiface.Logger[*islog.Event]

	mu     sync.Mutex
	closed bool
}

var _ Entry = (*HTTPEntry)(nil)

// NewHTTPEntry resolves host:port and binds a standard-library TCP
// listener. A raw rawnet-style fd is not used here (unlike TCPEntry):
// http2.Server.ServeConn requires a net.Conn and owns its own blocking
// per-connection I/O, so there is no readiness-facility descriptor for
// this entry to register.
func NewHTTPEntry(ctx context.Context, host string, port int, pipelineTemplate *pipeline.Pipeline, bufferSize int, level klog.Level, logger *logiface.Logger[*islog.Event]) (*HTTPEntry, error) {
	resolved, err := addr.Resolve(ctx, host, port)
	if err != nil {
		return nil, err
	}
	ln, err := net.ListenTCP("tcp", resolved)
	if err != nil {
		return nil, &kpxerr.IOError{Cause: err, Message: "http entry: listen failed"}
	}
	return &HTTPEntry{
		listener: ln,
		template: pipelineTemplate,
		server:   &http2.Server{},
		bufSize:  bufferSize,
		level:    level,
		logger:   logger,
	}, nil
}

// Listen accepts raw TCP connections and hands each to http2.Server, which
// serves every request stream on it as it arrives. An accept failure
// terminates the entry; Listen returns that error to the caller.
func (h *HTTPEntry) Listen() error {
	for {
		conn, err := h.listener.Accept()
		if err != nil {
			h.mu.Lock()
			closed := h.closed
			h.mu.Unlock()
			if closed {
				return nil
			}
			return &kpxerr.FatalError{Cause: err, Message: "http entry: accept failed"}
		}
		go h.serveConn(conn)
	}
}

func (h *HTTPEntry) serveConn(conn net.Conn) {
	h.server.ServeConn(conn, &http2.ServeConnOpts{
		Handler: http.HandlerFunc(h.handle),
	})
}

// handle bridges one HTTP/2 request/response stream into an engine.Context
// and drives it exactly like the TCP entry's ingress/pipeline readable
// handlers, except synchronously: each chunk read from the request body is
// driven forward, then the pipeline is drained backward and flushed to the
// response, until the request body is exhausted. Trailers and request-body
// cancellation are not handled specially: a canceled request surfaces as a
// body read error and the stream is reset.
func (h *HTTPEntry) handle(w http.ResponseWriter, r *http.Request) {
	clone, err := h.template.Clone()
	if err != nil {
		if h.logger != nil {
			h.logger.Crit().Str("error", err.Error()).Log("http entry: clone pipeline failed")
		}
		http.Error(w, "pipeline unavailable", http.StatusBadGateway)
		return
	}

	endpoint := &httpEndpoint{r: r, w: w}
	ctx := engine.NewContext(endpoint, clone)
	defer ctx.Close()

	if h.level.AnnounceEnabled() && h.logger != nil {
		h.logger.Warning().Str("remote", r.RemoteAddr).Log("http entry: accepted request")
	}

	bufSize := h.bufSize
	if bufSize <= 0 {
		bufSize = 8192
	}
	buf := make([]byte, bufSize)

	for {
		n, rerr := ctx.Ingress.Read(buf)
		if n > 0 {
			ctx.Forward = append(ctx.Forward, buf[:n]...)
			if _, err := ctx.Pipeline.DriveForward(ctx.Forward); err != nil {
				h.logConnErr("drive forward failed", err)
				return
			}
			ctx.Forward = ctx.Forward[:0]

			out, err := h.driveBackward(ctx)
			if err != nil {
				h.logConnErr("drive backward failed", err)
				return
			}
			ctx.Backward = append(ctx.Backward, out...)
			if len(ctx.Backward) > 0 {
				if _, err := ctx.Ingress.Write(ctx.Backward); err != nil {
					h.logConnErr("write response failed", err)
					return
				}
				ctx.Backward = ctx.Backward[:0]
			}
		}
		if rerr != nil {
			if rerr != io.EOF {
				h.logConnErr("request stream failed", &kpxerr.FramingError{Cause: rerr, Message: "http entry: request stream failed"})
			}
			return
		}
	}
}

// driveBackward retries a transient (would-block) DriveBackward for a
// bounded window, matching the non-blocking-socket-plus-retry pattern
// StdioEntry uses for its own stdin polling; unlike the poll-driven
// entries there is no readiness facility to suspend this goroutine on, so
// it must poll directly.
func (h *HTTPEntry) driveBackward(ctx *engine.Context) ([]byte, error) {
	deadline := time.Now().Add(200 * time.Millisecond)
	for {
		out, err := ctx.Pipeline.DriveBackward()
		if err == nil {
			return out, nil
		}
		if ioErr, ok := err.(*kpxerr.IOError); ok && ioErr.Transient {
			if time.Now().After(deadline) {
				return nil, nil
			}
			time.Sleep(time.Millisecond)
			continue
		}
		return nil, err
	}
}

func (h *HTTPEntry) logConnErr(msg string, err error) {
	if h.logger != nil {
		h.logger.Crit().Str("error", err.Error()).Log("http entry: " + msg)
	}
}

// Close stops accepting new connections. Connections already handed to
// http2.Server continue to completion.
func (h *HTTPEntry) Close() error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	return h.listener.Close()
}

// httpEndpoint adapts one HTTP/2 request/response stream to
// engine.Endpoint: Read pulls from the request body, Write sends (and
// flushes) a response chunk. Its Descriptor is the sentinel: this endpoint
// is never registered with a readiness facility (see HTTPEntry doc
// comment).
type httpEndpoint struct {
	r *http.Request
	w http.ResponseWriter
}

func (e *httpEndpoint) Descriptor() int { return pipeline.SentinelFD }

func (e *httpEndpoint) Read(buf []byte) (int, error) {
	return e.r.Body.Read(buf)
}

func (e *httpEndpoint) Write(buf []byte) (int, error) {
	n, err := e.w.Write(buf)
	if err == nil {
		if f, ok := e.w.(http.Flusher); ok {
			f.Flush()
		}
	}
	return n, err
}

func (e *httpEndpoint) Close() error { return nil }

var _ engine.Endpoint = (*httpEndpoint)(nil)
