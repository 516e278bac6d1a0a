package pipeline

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startEchoListener starts a standard-library loopback TCP echo server for
// use as a test fixture only; the proxy's own I/O path stays on raw fds.
func startEchoListener(t *testing.T) *net.TCPAddr {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 4096)
				for {
					n, err := c.Read(buf)
					if n > 0 {
						_, _ = c.Write(buf[:n])
					}
					if err != nil {
						return
					}
				}
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr)
}

func TestTCPStepForwardBackwardEcho(t *testing.T) {
	addr := startEchoListener(t)
	step, err := NewTCPStep(addr, 4096)
	require.NoError(t, err)
	defer step.Close()

	// allow the non-blocking connect to complete.
	time.Sleep(20 * time.Millisecond)

	out, err := step.Forward([]byte("PING"))
	require.NoError(t, err)
	assert.Equal(t, "PING", string(out))

	time.Sleep(20 * time.Millisecond)
	reply, err := step.Backward(nil)
	require.NoError(t, err)
	assert.Equal(t, "PING", string(reply))
}

func TestTCPStepDescriptorEqualsOutboundSocket(t *testing.T) {
	addr := startEchoListener(t)
	step, err := NewTCPStep(addr, 4096)
	require.NoError(t, err)
	defer step.Close()
	assert.Equal(t, step.fd, step.Descriptor())
}

// TestTCPStepCloneDoesNotShareDescriptor verifies that two sibling
// pipelines (clones of the same template) expose different OS handles for
// every step that holds one.
func TestTCPStepCloneDoesNotShareDescriptor(t *testing.T) {
	addr := startEchoListener(t)
	step, err := NewTCPStep(addr, 4096)
	require.NoError(t, err)
	defer step.Close()

	cloneA, err := step.Clone()
	require.NoError(t, err)
	defer cloneA.(*TCPStep).Close()

	cloneB, err := step.Clone()
	require.NoError(t, err)
	defer cloneB.(*TCPStep).Close()

	fds := map[int]bool{step.Descriptor(): true}
	assert.False(t, fds[cloneA.Descriptor()], "clone A must not share the template's fd")
	fds[cloneA.Descriptor()] = true
	assert.False(t, fds[cloneB.Descriptor()], "clone B must not share the template's or clone A's fd")
}
