package pipeline

import (
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
)

// stdioMu serializes every touch of the process's standard input/output.
// Several local steps (and StdioEntry) may share these descriptors within
// one process.
var stdioMu sync.Mutex

// StdoutMode selects which direction's bytes are echoed to standard
// output; the forward and backward bits combine.
type StdoutMode uint8

const (
	StdoutModeNone     StdoutMode = 0
	StdoutModeForward  StdoutMode = 1 << 0
	StdoutModeBackward StdoutMode = 1 << 1
	StdoutModeBoth     StdoutMode = StdoutModeForward | StdoutModeBackward
)

// StdioStep is the canonical local step: it holds no remote
// endpoint, optionally tees forward and/or backward bytes to stdout, and
// its backward operation attempts one non-blocking bounded read from
// stdin per call. Its descriptor is a non-readable sentinel, so a pipeline
// using it must not poll it as the last step (an invariant scoped to
// entries that poll the pipeline tail; StdioEntry itself never does, see
// entry/stdio.go).
type StdioStep struct {
	mode       StdoutMode
	level      klog.Level
	bufferSize int
	stdinNB    bool // whether stdin has been set non-blocking yet
}

var _ Step = (*StdioStep)(nil)

// NewStdioStep constructs a StdioStep. bufferSize bounds the per-call
// backward read from stdin.
func NewStdioStep(mode StdoutMode, level klog.Level, bufferSize int) *StdioStep {
	return &StdioStep{mode: mode, level: level, bufferSize: bufferSize}
}

func (s *StdioStep) Kind() string { return "stdio" }

// Descriptor returns SentinelFD: stdio is never itself polled by the
// pipeline-tail readiness registration.
func (s *StdioStep) Descriptor() int { return SentinelFD }

// Clone returns a step with the same configuration; stdout/stdin are
// process-wide so there is nothing to duplicate.
func (s *StdioStep) Clone() (Step, error) {
	return &StdioStep{mode: s.mode, level: s.level, bufferSize: s.bufferSize}, nil
}

// Forward optionally dumps debug info at level 3, tees to stdout when the
// forward bit is set, and returns data unchanged.
func (s *StdioStep) Forward(data []byte) ([]byte, error) {
	if s.level.DumpEnabled() {
		s.dump("forward", data)
	}
	if s.mode&StdoutModeForward != 0 {
		if err := s.writeStdout(data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// Backward optionally dumps debug info, tees to stdout when the backward
// bit is set, attempts one non-blocking bounded read from stdin (swallowing
// EAGAIN as transient, not a pipeline error), and returns any bytes read
// merged after the bytes handed in.
func (s *StdioStep) Backward(data []byte) ([]byte, error) {
	if s.level.DumpEnabled() {
		s.dump("backward", data)
	}
	if s.mode&StdoutModeBackward != 0 {
		if err := s.writeStdout(data); err != nil {
			return nil, err
		}
	}

	read, err := s.readStdinNonBlocking()
	if err != nil {
		return nil, err
	}
	if len(read) == 0 {
		return data, nil
	}
	return append(append([]byte{}, data...), read...), nil
}

func (s *StdioStep) writeStdout(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	stdioMu.Lock()
	defer stdioMu.Unlock()
	if _, err := unix.Write(1, data); err != nil {
		return &kpxerr.IOError{Cause: err, Message: "stdio: write stdout failed"}
	}
	return nil
}

func (s *StdioStep) readStdinNonBlocking() ([]byte, error) {
	stdioMu.Lock()
	defer stdioMu.Unlock()

	if !s.stdinNB {
		if err := unix.SetNonblock(0, true); err != nil {
			return nil, &kpxerr.IOError{Cause: err, Message: "stdio: set stdin non-blocking failed"}
		}
		s.stdinNB = true
	}

	bufSize := s.bufferSize
	if bufSize <= 0 {
		bufSize = 8192
	}
	buf := make([]byte, bufSize)
	n, err := unix.Read(0, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, &kpxerr.IOError{Cause: err, Message: "stdio: read stdin failed"}
	}
	return buf[:n], nil
}

func (s *StdioStep) dump(direction string, data []byte) {
	stdioMu.Lock()
	defer stdioMu.Unlock()
	fmt.Fprintf(stdoutDumpWriter, "[stdio %s %d bytes] %q\n", direction, len(data), data)
}

// stdoutDumpWriter receives level-3 byte dumps. It defaults to a no-op
// sink; cmd/kproxy installs a writer backed by the structured logger's
// stream at startup, so dumps go to stderr rather than colliding with the
// step's own stdout traffic. Tests override it to capture output.
var stdoutDumpWriter io.Writer = discardWriter{}

// SetDumpWriter installs the writer used for level-3 "[stdio <direction>
// N bytes] ..." dumps.
func SetDumpWriter(w io.Writer) {
	if w == nil {
		w = discardWriter{}
	}
	stdoutDumpWriter = w
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
