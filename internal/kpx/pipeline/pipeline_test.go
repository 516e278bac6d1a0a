package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStep is a minimal Step used to exercise Pipeline without real I/O.
type fakeStep struct {
	kind     string
	fd       int
	upper    bool // copied by Clone; Forward and Backward do not read it
	produced []byte
}

func (f *fakeStep) Kind() string      { return f.kind }
func (f *fakeStep) Descriptor() int   { return f.fd }
func (f *fakeStep) Clone() (Step, error) {
	return &fakeStep{kind: f.kind, fd: f.fd, upper: f.upper, produced: append([]byte{}, f.produced...)}, nil
}
func (f *fakeStep) Forward(data []byte) ([]byte, error) {
	return append([]byte{}, data...), nil
}
func (f *fakeStep) Backward(data []byte) ([]byte, error) {
	return append(append([]byte{}, data...), f.produced...), nil
}

func TestPipelineDescriptorEqualsLastStep(t *testing.T) {
	p := New()
	p.Append(&fakeStep{kind: "a", fd: 3})
	p.Append(&fakeStep{kind: "b", fd: 7})
	assert.Equal(t, 7, p.Descriptor())
}

func TestEmptyPipelineDescriptorIsSentinel(t *testing.T) {
	p := New()
	assert.Equal(t, SentinelFD, p.Descriptor())
}

func TestCloneIndependence(t *testing.T) {
	p := New()
	p.Append(&fakeStep{kind: "a", fd: 3, produced: []byte("x")})

	clone, err := p.Clone()
	require.NoError(t, err)
	require.Equal(t, p.Len(), clone.Len())

	// mutating one clone's step state must not affect the other.
	orig := p.steps[0].(*fakeStep)
	cloned := clone.steps[0].(*fakeStep)
	orig.produced = append(orig.produced, 'y')
	assert.NotEqual(t, orig.produced, cloned.produced)
}

func TestDriveForwardThreadsInOrder(t *testing.T) {
	p := New()
	p.Append(&fakeStep{kind: "a", fd: 1})
	p.Append(&fakeStep{kind: "b", fd: 2})
	out, err := p.DriveForward([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))
}

func TestDriveForwardAbortsOnFailure(t *testing.T) {
	p := New()
	p.Append(&failingStep{})
	p.Append(&fakeStep{kind: "b", fd: 2})
	_, err := p.DriveForward([]byte("x"))
	assert.Error(t, err)
}

func TestDriveBackwardStartsFromEmptyAndReverses(t *testing.T) {
	p := New()
	p.Append(&fakeStep{kind: "a", fd: 1, produced: []byte("A")})
	p.Append(&fakeStep{kind: "b", fd: 2, produced: []byte("B")})
	out, err := p.DriveBackward()
	require.NoError(t, err)
	// reverse order: step b runs first (producing "B"), then step a appends "A".
	assert.Equal(t, "BA", string(out))
}

type failingStep struct{}

func (f *failingStep) Kind() string               { return "failing" }
func (f *failingStep) Descriptor() int             { return SentinelFD }
func (f *failingStep) Clone() (Step, error)         { return &failingStep{}, nil }
func (f *failingStep) Forward([]byte) ([]byte, error)  { return nil, assert.AnError }
func (f *failingStep) Backward([]byte) ([]byte, error) { return nil, assert.AnError }
