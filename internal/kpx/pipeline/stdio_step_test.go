package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
)

func TestStdioStepForwardReturnsDataUnchanged(t *testing.T) {
	s := NewStdioStep(StdoutModeNone, klog.LevelSilent, 4096)
	out, err := s.Forward([]byte("hello\n"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))
}

func TestStdioStepDescriptorIsSentinel(t *testing.T) {
	s := NewStdioStep(StdoutModeNone, klog.LevelSilent, 4096)
	assert.Equal(t, SentinelFD, s.Descriptor())
}

func TestStdioStepCloneIsIndependentConfig(t *testing.T) {
	s := NewStdioStep(StdoutModeBoth, klog.LevelInfo, 1024)
	clone, err := s.Clone()
	require.NoError(t, err)
	cs := clone.(*StdioStep)
	assert.Equal(t, s.mode, cs.mode)
	assert.Equal(t, s.bufferSize, cs.bufferSize)
}

func TestStdoutModeBitmask(t *testing.T) {
	assert.Equal(t, StdoutModeForward|StdoutModeBackward, StdoutModeBoth)
	assert.Equal(t, StdoutMode(0), StdoutModeNone)
}
