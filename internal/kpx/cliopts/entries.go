package cliopts

import (
	"context"

	"github.com/joeycumines/logiface"
	islog "github.com/joeycumines/logiface-slog"
	"github.com/spf13/pflag"

	"github.com/kamranrad1993/kproxy/internal/kpx/entry"
	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// stdioEntryFactory registers the line/stream entry variant: a single
// connection for the process lifetime, no accept loop, no entry-specific
// flags.
type stdioEntryFactory struct{}

func (stdioEntryFactory) Name() string                 { return "stdio" }
func (stdioEntryFactory) DescribeFlags(*pflag.FlagSet) {}

func (stdioEntryFactory) Construct(_ context.Context, _ *pflag.FlagSet, template *pipeline.Pipeline, bufferSize int, _ klog.Level, logger *logiface.Logger[*islog.Event]) (entry.Entry, error) {
	return entry.NewStdioEntry(template, bufferSize, logger)
}

// tcpEntryFactory registers the raw stream entry variant:
// --tcp-ea/--tcp-ep name the listen address.
type tcpEntryFactory struct{}

func (tcpEntryFactory) Name() string { return "tcp" }

func (tcpEntryFactory) DescribeFlags(fs *pflag.FlagSet) {
	fs.String("tcp-ea", "127.0.0.1", "tcp entry: listen address")
	fs.Int("tcp-ep", 0, "tcp entry: listen port (0 picks an ephemeral port)")
}

func (tcpEntryFactory) Construct(ctx context.Context, fs *pflag.FlagSet, template *pipeline.Pipeline, bufferSize int, level klog.Level, logger *logiface.Logger[*islog.Event]) (entry.Entry, error) {
	host, err := fs.GetString("tcp-ea")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "tcp entry: --tcp-ea: " + err.Error()}
	}
	port, err := fs.GetInt("tcp-ep")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "tcp entry: --tcp-ep: " + err.Error()}
	}
	return entry.NewTCPEntry(ctx, host, port, template, bufferSize, level, logger)
}

// httpEntryFactory registers the framed request/response entry variant:
// --http-ea/--http-ep name the listen address.
type httpEntryFactory struct{}

func (httpEntryFactory) Name() string { return "http" }

func (httpEntryFactory) DescribeFlags(fs *pflag.FlagSet) {
	fs.String("http-ea", "127.0.0.1", "http entry: listen address")
	fs.Int("http-ep", 0, "http entry: listen port (0 picks an ephemeral port)")
}

func (httpEntryFactory) Construct(ctx context.Context, fs *pflag.FlagSet, template *pipeline.Pipeline, bufferSize int, level klog.Level, logger *logiface.Logger[*islog.Event]) (entry.Entry, error) {
	host, err := fs.GetString("http-ea")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "http entry: --http-ea: " + err.Error()}
	}
	port, err := fs.GetInt("http-ep")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "http entry: --http-ep: " + err.Error()}
	}
	return entry.NewHTTPEntry(ctx, host, port, template, bufferSize, level, logger)
}
