// Package engine implements the connection context and the shared
// single-threaded readiness loop that every entry variant drives.
package engine

import (
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// Endpoint is the ingress I/O surface a Context reads from and writes to.
// Its concrete shape depends on the entry variant: stdio, a raw TCP
// socket, or an HTTP/2 request/response stream.
type Endpoint interface {
	// Descriptor returns the OS handle to register with the readiness
	// facility, or pipeline.SentinelFD if the endpoint is not natively
	// pollable (used by the HTTP entry, which is driven by the framing
	// library's own callbacks instead).
	Descriptor() int
	Read(buf []byte) (int, error)
	Write(buf []byte) (int, error)
	Close() error
}

// Context is the per-connection state: the ingress endpoint, a cloned
// pipeline, and two disjoint half-buffers.
type Context struct {
	Ingress  Endpoint
	Pipeline *pipeline.Pipeline

	// Forward holds bytes read from ingress and queued to be pushed into
	// the pipeline.
	Forward []byte
	// Backward holds bytes drained from the pipeline and queued to be
	// written back to ingress.
	Backward []byte

	// closed marks a context whose ingress endpoint is no longer usable;
	// the loop drops such contexts rather than scheduling further events.
	closed bool
}

// NewContext constructs a context around an already-accepted endpoint and
// an already-cloned pipeline.
func NewContext(ingress Endpoint, p *pipeline.Pipeline) *Context {
	return &Context{Ingress: ingress, Pipeline: p}
}

// Closed reports whether this context's ingress endpoint has been marked
// unusable.
func (c *Context) Closed() bool { return c.closed }

// Close closes the ingress endpoint, releases the cloned pipeline's step
// descriptors, and marks the context unusable. Callers that registered the
// descriptors with a readiness facility must unregister them as part of
// the same teardown (see Loop.UnregisterContext).
func (c *Context) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.Ingress.Close()
	if perr := c.Pipeline.Close(); perr != nil && err == nil {
		err = perr
	}
	return err
}
