package entry

import (
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// withRedirectedStdio temporarily replaces fd 0 and fd 1 with the read/write
// ends of two os.Pipe()s for the duration of fn, restoring the original
// descriptors afterward. StdioEntry and StdioStep talk to fd 0/1 directly,
// so exercising the echo path end-to-end means redirecting the process's
// actual stdio, not mocking an interface.
func withRedirectedStdio(t *testing.T, fn func(stdinWrite, stdoutRead *os.File)) {
	t.Helper()

	stdinRead, stdinWrite, err := os.Pipe()
	require.NoError(t, err)
	stdoutRead, stdoutWrite, err := os.Pipe()
	require.NoError(t, err)

	savedStdin, err := unix.Dup(0)
	require.NoError(t, err)
	savedStdout, err := unix.Dup(1)
	require.NoError(t, err)

	require.NoError(t, unix.Dup2(int(stdinRead.Fd()), 0))
	require.NoError(t, unix.Dup2(int(stdoutWrite.Fd()), 1))

	defer func() {
		_ = unix.Dup2(savedStdin, 0)
		_ = unix.Dup2(savedStdout, 1)
		_ = unix.Close(savedStdin)
		_ = unix.Close(savedStdout)
		_ = stdinRead.Close()
		_ = stdinWrite.Close()
		_ = stdoutRead.Close()
		_ = stdoutWrite.Close()
	}()

	fn(stdinWrite, stdoutRead)
}

// TestStdioEntryEchoesStdinToStdout checks the basic echo path: stdin bytes
// "hello\n" produce stdout "hello\n", and the entry exits on stdin EOF.
func TestStdioEntryEchoesStdinToStdout(t *testing.T) {
	withRedirectedStdio(t, func(stdinWrite, stdoutRead *os.File) {
		p := pipeline.New()
		p.Append(pipeline.NewStdioStep(pipeline.StdoutModeForward, klog.LevelSilent, 4096))

		e, err := NewStdioEntry(p, 4096, nil)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() { done <- e.Listen() }()

		_, err = stdinWrite.Write([]byte("hello\n"))
		require.NoError(t, err)
		require.NoError(t, stdinWrite.Close())

		select {
		case listenErr := <-done:
			require.NoError(t, listenErr)
		case <-time.After(2 * time.Second):
			t.Fatal("stdio entry did not exit on stdin EOF")
		}

		require.NoError(t, stdoutRead.SetReadDeadline(time.Now().Add(time.Second)))
		buf := make([]byte, 64)
		n, _ := stdoutRead.Read(buf)
		assert.Equal(t, "hello\n", string(buf[:n]))
	})
}
