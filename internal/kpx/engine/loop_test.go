package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
	"github.com/kamranrad1993/kproxy/internal/kpx/poll"
)

// stubEndpoint is a non-pollable (sentinel fd) test Endpoint so these tests
// exercise Loop.dispatch without touching a real poller.
type stubEndpoint struct {
	readData  []byte
	readErr   error
	writeErr  error
	written   []byte
	closed    bool
}

func (s *stubEndpoint) Descriptor() int { return pipeline.SentinelFD }
func (s *stubEndpoint) Read(buf []byte) (int, error) {
	if s.readErr != nil {
		return 0, s.readErr
	}
	n := copy(buf, s.readData)
	return n, nil
}
func (s *stubEndpoint) Write(buf []byte) (int, error) {
	if s.writeErr != nil {
		return 0, s.writeErr
	}
	s.written = append(s.written, buf...)
	return len(buf), nil
}
func (s *stubEndpoint) Close() error { s.closed = true; return nil }

// stubStep is a Step with a sentinel descriptor, for building pipelines in
// Loop tests without real fds.
type stubStep struct {
	backwardOut []byte
	forwardErr  error
	backwardErr error
}

func (s *stubStep) Kind() string             { return "stub" }
func (s *stubStep) Descriptor() int          { return pipeline.SentinelFD }
func (s *stubStep) Clone() (pipeline.Step, error) { return s, nil }
func (s *stubStep) Forward(data []byte) ([]byte, error) {
	if s.forwardErr != nil {
		return nil, s.forwardErr
	}
	return data, nil
}
func (s *stubStep) Backward([]byte) ([]byte, error) {
	if s.backwardErr != nil {
		return nil, s.backwardErr
	}
	return s.backwardOut, nil
}

func newTestLoop() *Loop {
	return &Loop{cfg: Config{BufferSize: 4096}, ctxs: make(map[Token]*Context)}
}

func TestHandleIngressReadableDrivesForwardAndClearsBuffer(t *testing.T) {
	l := newTestLoop()
	ep := &stubEndpoint{readData: []byte("abcd")}
	p := pipeline.New()
	p.Append(&stubStep{})
	ctx := NewContext(ep, p)

	err := l.handleIngressReadable(ctx)
	require.NoError(t, err)
	// after a successful forward drive the forward buffer is empty.
	assert.Empty(t, ctx.Forward)
}

func TestHandlePipelineReadableWritesAndDrainsBackwardBuffer(t *testing.T) {
	l := newTestLoop()
	ep := &stubEndpoint{}
	p := pipeline.New()
	p.Append(&stubStep{backwardOut: []byte("reply")})
	ctx := NewContext(ep, p)

	err := l.handlePipelineReadable(ctx)
	require.NoError(t, err)
	assert.Equal(t, "reply", string(ep.written))
	assert.Empty(t, ctx.Backward)
}

// TestWouldBlockIsNonFatal verifies that injecting a transient error from
// a step keeps the context alive and the loop progressing.
func TestWouldBlockIsNonFatal(t *testing.T) {
	l := newTestLoop()
	ep := &stubEndpoint{}
	p := pipeline.New()
	p.Append(&stubStep{backwardErr: &kpxerr.IOError{Transient: true}})
	ctx := NewContext(ep, p)

	id := 7
	l.ctxs[IngressToken(id)] = ctx
	l.ctxs[PipelineToken(id)] = ctx

	l.dispatch(PipelineToken(id), poll.EventRead)

	_, stillRegistered := l.ctxs[PipelineToken(id)]
	assert.True(t, stillRegistered, "transient error must not deregister the context")
	assert.False(t, ctx.Closed())
}

func TestFatalErrorDropsContext(t *testing.T) {
	l := newTestLoop()
	ep := &stubEndpoint{}
	p := pipeline.New()
	p.Append(&stubStep{backwardErr: &kpxerr.FatalError{Message: "boom"}})
	ctx := NewContext(ep, p)

	id := 9
	l.ctxs[IngressToken(id)] = ctx
	l.ctxs[PipelineToken(id)] = ctx

	l.dispatch(PipelineToken(id), poll.EventRead)

	_, stillRegistered := l.ctxs[PipelineToken(id)]
	assert.False(t, stillRegistered)
	assert.True(t, ctx.Closed())
}

func TestTeardownReportsConnectionID(t *testing.T) {
	l := newTestLoop()
	var released []int
	l.OnTeardown(func(id int) { released = append(released, id) })

	ep := &stubEndpoint{}
	p := pipeline.New()
	p.Append(&stubStep{backwardErr: &kpxerr.FatalError{Message: "boom"}})
	ctx := NewContext(ep, p)

	id := 5
	l.ctxs[IngressToken(id)] = ctx
	l.ctxs[PipelineToken(id)] = ctx

	l.dispatch(PipelineToken(id), poll.EventRead)

	assert.Equal(t, []int{id}, released)
}

func TestHangupUnregistersContext(t *testing.T) {
	l := newTestLoop()
	ep := &stubEndpoint{}
	p := pipeline.New()
	p.Append(&stubStep{})
	ctx := NewContext(ep, p)

	id := 3
	l.ctxs[IngressToken(id)] = ctx
	l.ctxs[PipelineToken(id)] = ctx

	l.dispatch(IngressToken(id), poll.EventHangup)

	_, ingressStillRegistered := l.ctxs[IngressToken(id)]
	_, pipelineStillRegistered := l.ctxs[PipelineToken(id)]
	assert.False(t, ingressStillRegistered)
	assert.False(t, pipelineStillRegistered)
	assert.True(t, ctx.Closed())
}
