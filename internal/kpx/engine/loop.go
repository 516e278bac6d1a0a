package engine

import (
	"errors"
	"io"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
	"github.com/kamranrad1993/kproxy/internal/kpx/poll"
)

// Config configures a Loop.
type Config struct {
	// BufferSize bounds each read from ingress or the pipeline tail.
	BufferSize int
	// PollTimeoutMs is passed to poll.Poller.PollIO each iteration; negative
	// blocks indefinitely.
	PollTimeoutMs int
	Logger        *logiface.Logger[*islog.Event]
}

// Loop is the single-threaded readiness-driven dispatcher behind the TCP
// entry. The stdio and HTTP entries do not use it: stdio has no accept
// loop and drives its single context synchronously, and the HTTP/2
// framing library drives its own per-stream I/O (see entry/stdio.go,
// entry/http.go). The Loop exclusively owns the set of live contexts via
// its token map.
type Loop struct {
	cfg        Config
	poller     poll.Poller
	ctxs       map[Token]*Context
	onError    func(Token, error)
	onTeardown func(id int)
}

// New constructs a Loop with its own platform-native poller.
func New(cfg Config) (*Loop, error) {
	p, err := poll.New()
	if err != nil {
		return nil, kpxerr.Wrap("engine: create poller", err)
	}
	return &Loop{cfg: cfg, poller: p, ctxs: make(map[Token]*Context)}, nil
}

// OnError installs a callback invoked for every non-transient
// per-connection error, so the owning entry can log it.
func (l *Loop) OnError(fn func(Token, error)) { l.onError = fn }

// OnTeardown installs a callback invoked with a connection's id after its
// context has been unregistered, so the owning entry can release the id
// back to its pool.
func (l *Loop) OnTeardown(fn func(id int)) { l.onTeardown = fn }

// RegisterServer registers the listening fd with read interest; cb runs on
// each readiness event. The poller keys the registration by fd, not by a
// Token.
func (l *Loop) RegisterServer(fd int, cb func()) error {
	return l.poller.RegisterFD(fd, poll.EventRead, func(poll.IOEvents) { cb() })
}

// RegisterContext inserts ctx into the token map under both its ingress
// and pipeline-tail tokens (two map entries aliasing one *Context) and
// registers both descriptors with the
// readiness facility for read+write interest; dispatch retries the
// matching flush on a write-ready event, so a write-blocked descriptor
// that never again becomes read-ready still gets its pending buffer
// delivered.
func (l *Loop) RegisterContext(id int, ctx *Context) error {
	ingressTok := IngressToken(id)
	pipelineTok := PipelineToken(id)
	l.ctxs[ingressTok] = ctx
	l.ctxs[pipelineTok] = ctx

	if fd := ctx.Ingress.Descriptor(); fd != pipeline.SentinelFD {
		if err := l.poller.RegisterFD(fd, poll.EventRead|poll.EventWrite, func(ev poll.IOEvents) {
			l.dispatch(ingressTok, ev)
		}); err != nil {
			delete(l.ctxs, ingressTok)
			delete(l.ctxs, pipelineTok)
			return kpxerr.Wrap("engine: register ingress fd", err)
		}
	}
	if fd := ctx.Pipeline.Descriptor(); fd != pipeline.SentinelFD {
		if err := l.poller.RegisterFD(fd, poll.EventRead|poll.EventWrite, func(ev poll.IOEvents) {
			l.dispatch(pipelineTok, ev)
		}); err != nil {
			if ifd := ctx.Ingress.Descriptor(); ifd != pipeline.SentinelFD {
				_ = l.poller.UnregisterFD(ifd)
			}
			delete(l.ctxs, ingressTok)
			delete(l.ctxs, pipelineTok)
			return kpxerr.Wrap("engine: register pipeline fd", err)
		}
	}
	return nil
}

// UnregisterContext deregisters both tokens for id and drops the context
// from the map; cancellation is connection-scoped, so this is the whole of
// a connection's teardown as far as the loop is concerned.
func (l *Loop) UnregisterContext(id int, ctx *Context) {
	ingressTok := IngressToken(id)
	pipelineTok := PipelineToken(id)
	if fd := ctx.Ingress.Descriptor(); fd != pipeline.SentinelFD {
		_ = l.poller.UnregisterFD(fd)
	}
	if fd := ctx.Pipeline.Descriptor(); fd != pipeline.SentinelFD {
		_ = l.poller.UnregisterFD(fd)
	}
	delete(l.ctxs, ingressTok)
	delete(l.ctxs, pipelineTok)
	if l.onTeardown != nil {
		l.onTeardown(id)
	}
}

// PollOnce runs one PollIO pass, dispatching ready events inline.
func (l *Loop) PollOnce() error {
	_, err := l.poller.PollIO(l.cfg.PollTimeoutMs)
	return err
}

// Close releases the poller.
func (l *Loop) Close() error {
	return l.poller.Close()
}

// dispatch routes one readiness event for tok to ingress-read or
// pipeline-read handling via the token's discriminator bit.
//
// A write-ready event retries the matching flush (flushBackward for the
// ingress token, flushForward for the pipeline token) instead of being
// ignored: a partial hand-off's remainder must eventually be delivered,
// and a write-blocked descriptor is not guaranteed to ever report
// read-ready again (e.g. a stalled client under backpressure with no
// further upstream data pending).
func (l *Loop) dispatch(tok Token, ev poll.IOEvents) {
	ctx, ok := l.ctxs[tok]
	if !ok || ctx.Closed() {
		return
	}

	var err error
	if tok.IsIngress() {
		if ev&poll.EventRead != 0 {
			err = l.handleIngressReadable(ctx)
		}
		if ev&poll.EventWrite != 0 {
			if werr := l.flushBackward(ctx); werr != nil && err == nil {
				err = werr
			}
		}
	} else {
		if ev&poll.EventRead != 0 {
			err = l.handlePipelineReadable(ctx)
		}
		if ev&poll.EventWrite != 0 {
			if werr := l.flushForward(ctx); werr != nil && err == nil {
				err = werr
			}
		}
	}
	if ev&poll.EventHangup != 0 || ev&poll.EventError != 0 {
		_ = ctx.Close()
		l.UnregisterContext(tok.ConnID(), ctx)
		return
	}

	l.handleError(tok, ctx, err)
}

func (l *Loop) handleError(tok Token, ctx *Context, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, io.EOF) {
		// Ingress endpoint closed: the context is dropped.
		_ = ctx.Close()
		l.UnregisterContext(tok.ConnID(), ctx)
		return
	}
	if isTransient(err) {
		// Would-block: continue to the next readiness event.
		return
	}
	if l.onError != nil {
		l.onError(tok, err)
	}
	if _, fatal := err.(*kpxerr.FatalError); fatal {
		_ = ctx.Close()
		l.UnregisterContext(tok.ConnID(), ctx)
	}
}

func isTransient(err error) bool {
	ioErr, ok := err.(*kpxerr.IOError)
	return ok && ioErr.Transient
}

// handleIngressReadable reads up to BufferSize bytes into the forward
// buffer, then attempts to push it through the pipeline via flushForward,
// clearing the forward buffer on success.
func (l *Loop) handleIngressReadable(ctx *Context) error {
	bufSize := l.cfg.BufferSize
	if bufSize <= 0 {
		bufSize = 8192
	}
	buf := make([]byte, bufSize)
	n, err := ctx.Ingress.Read(buf)
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	ctx.Forward = append(ctx.Forward, buf[:n]...)
	return l.flushForward(ctx)
}

// flushForward attempts to push ctx.Forward through the pipeline, clearing
// it on success. Called after an ingress read and retried on a
// pipeline-write-ready event, so a forward hand-off left over from a
// transient (would-block) pipeline write is not stranded until the next
// ingress read.
func (l *Loop) flushForward(ctx *Context) error {
	if len(ctx.Forward) == 0 {
		return nil
	}
	if _, err := ctx.Pipeline.DriveForward(ctx.Forward); err != nil {
		return err
	}
	ctx.Forward = ctx.Forward[:0]
	return nil
}

// handlePipelineReadable drains the pipeline backward into the backward
// buffer, then attempts to flush it to the ingress endpoint via
// flushBackward.
func (l *Loop) handlePipelineReadable(ctx *Context) error {
	out, err := ctx.Pipeline.DriveBackward()
	if err != nil {
		return err
	}
	ctx.Backward = append(ctx.Backward, out...)
	return l.flushBackward(ctx)
}

// flushBackward attempts to write ctx.Backward to the ingress endpoint,
// retaining only the unsent remainder on a partial write. Called after a
// pipeline drain and retried on an ingress-write-ready event, so a
// write-blocked ingress socket still gets its leftover backward bytes
// delivered once it becomes writable again, even if it never again
// reports read-ready.
func (l *Loop) flushBackward(ctx *Context) error {
	if len(ctx.Backward) == 0 {
		return nil
	}
	n, err := ctx.Ingress.Write(ctx.Backward)
	if err != nil {
		return err
	}
	ctx.Backward = ctx.Backward[n:]
	return nil
}
