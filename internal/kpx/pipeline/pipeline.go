package pipeline

import (
	"io"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
)

// Pipeline is an ordered sequence of steps plus the two directional drive
// operations.
type Pipeline struct {
	steps []Step
}

// New returns an empty pipeline, populated by Append in CLI order.
func New() *Pipeline {
	return &Pipeline{}
}

// Append adds a step at the tail. Only legal before the pipeline is cloned
// for a connection.
func (p *Pipeline) Append(s Step) {
	p.steps = append(p.steps, s)
}

// Len reports the number of steps.
func (p *Pipeline) Len() int {
	return len(p.steps)
}

// Clone produces an independent pipeline by cloning each step in order.
func (p *Pipeline) Clone() (*Pipeline, error) {
	clone := &Pipeline{steps: make([]Step, len(p.steps))}
	for i, s := range p.steps {
		cs, err := s.Clone()
		if err != nil {
			return nil, kpxerr.Wrap("pipeline: clone step "+s.Kind(), err)
		}
		clone.steps[i] = cs
	}
	return clone, nil
}

// Descriptor equals the descriptor of the last step; this is
// what the entry polls to detect that responses are available. An empty
// pipeline has no descriptor to expose and returns SentinelFD.
func (p *Pipeline) Descriptor() int {
	if len(p.steps) == 0 {
		return SentinelFD
	}
	return p.steps[len(p.steps)-1].Descriptor()
}

// DriveForward threads data through each step's Forward in insertion order.
// Any step failure aborts the drive and propagates the error.
func (p *Pipeline) DriveForward(data []byte) ([]byte, error) {
	buf := data
	for _, s := range p.steps {
		next, err := s.Forward(buf)
		if err != nil {
			return nil, err
		}
		buf = next
	}
	return buf, nil
}

// DriveBackward threads an empty seed buffer through each step's Backward
// in reverse insertion order; the last produced buffer is the result.
// Every polling entry calls this generically; StdioEntry alone bypasses it
// for its own echo cycle (see entry/stdio.go).
func (p *Pipeline) DriveBackward() ([]byte, error) {
	return p.driveBackward(nil)
}

// DriveBackwardSeeded threads seed through each step's Backward in reverse
// insertion order instead of starting from empty. It exists solely for
// StdioEntry's echo cycle, which reuses the forward-processed bytes rather
// than discarding them; it is not part of the generic drive contract the
// polling entries rely on.
func (p *Pipeline) DriveBackwardSeeded(seed []byte) ([]byte, error) {
	return p.driveBackward(seed)
}

// Close releases any descriptors owned by steps, in insertion order. The
// first error is returned; later steps are still closed.
func (p *Pipeline) Close() error {
	var first error
	for _, s := range p.steps {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

func (p *Pipeline) driveBackward(seed []byte) ([]byte, error) {
	buf := seed
	for i := len(p.steps) - 1; i >= 0; i-- {
		next, err := p.steps[i].Backward(buf)
		if err != nil {
			return nil, err
		}
		buf = next
	}
	return buf, nil
}
