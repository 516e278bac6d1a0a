package entry

import (
	"context"
	"errors"
	"net"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/kamranrad1993/kproxy/internal/kpx/addr"
	"github.com/kamranrad1993/kproxy/internal/kpx/engine"
	"github.com/kamranrad1993/kproxy/internal/kpx/idpool"
	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
	"github.com/kamranrad1993/kproxy/internal/kpx/poll"
	"github.com/kamranrad1993/kproxy/internal/kpx/rawnet"
)

// TCPEntry is the raw stream entry variant: a TCP listener whose accept
// loop clones the pipeline template per connection.
type TCPEntry struct {
	listenFD int
	template *pipeline.Pipeline
	loop     *engine.Loop
	pool     *idpool.Pool
	level    klog.Level
	logger   *logiface.Logger[*islog.Event]
}

var _ Entry = (*TCPEntry)(nil)

// NewTCPEntry resolves host:port, binds a non-blocking listener, and
// prepares the readiness loop. pipelineTemplate is cloned once per accepted
// connection.
func NewTCPEntry(ctx context.Context, host string, port int, pipelineTemplate *pipeline.Pipeline, bufferSize int, level klog.Level, logger *logiface.Logger[*islog.Event]) (*TCPEntry, error) {
	resolved, err := addr.Resolve(ctx, host, port)
	if err != nil {
		return nil, err
	}
	listenFD, err := rawnet.Listen(resolved)
	if err != nil {
		return nil, &kpxerr.IOError{Cause: err, Message: "tcp entry: listen failed"}
	}

	loop, err := engine.New(engine.Config{BufferSize: bufferSize, PollTimeoutMs: 1000, Logger: logger})
	if err != nil {
		_ = rawnet.CloseFD(listenFD)
		return nil, err
	}
	loop.OnError(func(tok engine.Token, err error) {
		if logger != nil {
			logger.Crit().Int("conn_id", tok.ConnID()).Str("error", err.Error()).Log("tcp entry: connection error")
		}
	})

	pool := idpool.New(0)
	// Reserve id 0 for ServerToken (see engine.ServerToken's doc comment).
	pool.Allocate()
	loop.OnTeardown(func(id int) {
		if id != 0 {
			pool.Release(id)
		}
	})

	e := &TCPEntry{
		listenFD: listenFD,
		template: pipelineTemplate,
		loop:     loop,
		pool:     pool,
		level:    level,
		logger:   logger,
	}
	if err := loop.RegisterServer(listenFD, e.acceptOne); err != nil {
		_ = rawnet.CloseFD(listenFD)
		return nil, err
	}
	return e, nil
}

// Listen enters the event loop. It returns nil once Close has released the
// poller; any other server-side poll error is returned to the caller, which
// cmd/kproxy maps to a non-zero exit.
func (e *TCPEntry) Listen() error {
	for {
		if err := e.loop.PollOnce(); err != nil {
			if errors.Is(err, poll.ErrPollerClosed) {
				return nil
			}
			return &kpxerr.FatalError{Cause: err, Message: "tcp entry: poll failed"}
		}
	}
}

func (e *TCPEntry) acceptOne() {
	for {
		fd, err := rawnet.Accept(e.listenFD)
		if err != nil {
			if rawnet.IsTransient(err) {
				return
			}
			if e.logger != nil {
				e.logger.Crit().Str("error", err.Error()).Log("tcp entry: accept failed")
			}
			return
		}

		clone, err := e.template.Clone()
		if err != nil {
			if e.logger != nil {
				e.logger.Crit().Str("error", err.Error()).Log("tcp entry: clone pipeline failed")
			}
			_ = rawnet.CloseFD(fd)
			continue
		}

		ctx := engine.NewContext(&rawEndpoint{fd: fd}, clone)
		id := e.pool.Allocate()
		if err := e.loop.RegisterContext(id, ctx); err != nil {
			if e.logger != nil {
				e.logger.Crit().Str("error", err.Error()).Log("tcp entry: register connection failed")
			}
			_ = ctx.Close()
			e.pool.Release(id)
			continue
		}

		if e.level.AnnounceEnabled() && e.logger != nil {
			if pa, err := rawnet.PeerAddr(fd); err == nil {
				e.logger.Warning().Str("remote", addrString(pa)).Int("conn_id", id).Log("tcp entry: accepted connection")
			}
		}
	}
}

func addrString(a net.Addr) string {
	if a == nil {
		return ""
	}
	return a.String()
}

// Addr reports the address the listening socket is bound to, letting
// callers (and tests) discover the port when NewTCPEntry was given port 0.
func (e *TCPEntry) Addr() (net.Addr, error) {
	return rawnet.LocalAddr(e.listenFD)
}

// Close stops the loop and closes the listening socket.
func (e *TCPEntry) Close() error {
	_ = e.loop.Close()
	return rawnet.CloseFD(e.listenFD)
}
