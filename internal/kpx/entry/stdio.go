package entry

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// StdioEntry is the line/stream entry variant: a single connection for the
// process lifetime, with no accept loop. Its ingress endpoint is the
// process's standard input/output, read with a non-blocking attempt each
// tick.
type StdioEntry struct {
	pipeline   *pipeline.Pipeline
	bufferSize int
	logger     *logiface.Logger[*islog.Event]
	stopped    bool
}

var _ Entry = (*StdioEntry)(nil)

// NewStdioEntry constructs a StdioEntry. The pipeline must already be built
// (not a template to clone, since stdio has exactly one connection).
func NewStdioEntry(p *pipeline.Pipeline, bufferSize int, logger *logiface.Logger[*islog.Event]) (*StdioEntry, error) {
	if err := unix.SetNonblock(0, true); err != nil {
		return nil, kpxerr.Wrap("stdio entry: set stdin non-blocking", err)
	}
	return &StdioEntry{pipeline: p, bufferSize: bufferSize, logger: logger}, nil
}

// Listen reads available stdin bytes in a loop, drives them forward
// through the pipeline, and reuses the forward-processed bytes (rather
// than an empty seed) to drive backward, completing the echo cycle.
// Returns nil on stdin EOF.
func (s *StdioEntry) Listen() error {
	bufSize := s.bufferSize
	if bufSize <= 0 {
		bufSize = 8192
	}
	buf := make([]byte, bufSize)

	for !s.stopped {
		n, err := unix.Read(0, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				time.Sleep(time.Millisecond)
				continue
			}
			return &kpxerr.FatalError{Cause: err, Message: "stdio entry: read stdin failed"}
		}
		if n == 0 {
			// EOF.
			return nil
		}

		if err := s.handleOnce(buf[:n]); err != nil {
			if s.logger != nil {
				s.logger.Crit().Str("error", err.Error()).Log("stdio pipeline error")
			}
		}
	}
	return nil
}

func (s *StdioEntry) handleOnce(data []byte) error {
	forwarded, err := s.pipeline.DriveForward(data)
	if err != nil {
		return kpxerr.Wrap("stdio entry: drive forward failed", err)
	}
	if _, err := s.pipeline.DriveBackwardSeeded(forwarded); err != nil {
		return kpxerr.Wrap("stdio entry: drive backward failed", err)
	}
	return nil
}

// Close marks the entry stopped; the next read-timeout tick exits Listen.
func (s *StdioEntry) Close() error {
	s.stopped = true
	return nil
}
