package cliopts

import (
	"context"

	"github.com/spf13/pflag"

	"github.com/kamranrad1993/kproxy/internal/kpx/addr"
	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// stdioStepFactory registers the local stdio-tee step: --forward-stdout
// and --backward-stdout select its StdoutMode.
type stdioStepFactory struct{}

func (stdioStepFactory) Name() string { return "stdio" }

func (stdioStepFactory) DescribeFlags(fs *pflag.FlagSet) {
	fs.Bool("forward-stdout", false, "stdio step: tee forward-direction bytes to stdout")
	fs.Bool("backward-stdout", false, "stdio step: tee backward-direction bytes to stdout")
}

func (stdioStepFactory) Construct(fs *pflag.FlagSet, bufferSize int, level klog.Level) (pipeline.Step, error) {
	fwd, err := fs.GetBool("forward-stdout")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "stdio step: --forward-stdout: " + err.Error()}
	}
	bwd, err := fs.GetBool("backward-stdout")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "stdio step: --backward-stdout: " + err.Error()}
	}
	mode := pipeline.StdoutModeNone
	if fwd {
		mode |= pipeline.StdoutModeForward
	}
	if bwd {
		mode |= pipeline.StdoutModeBackward
	}
	return pipeline.NewStdioStep(mode, level, bufferSize), nil
}

// tcpStepFactory registers the remote-forwarding TCP step:
// --tcp-sa/--tcp-sp name the upstream address.
type tcpStepFactory struct{}

func (tcpStepFactory) Name() string { return "tcp" }

func (tcpStepFactory) DescribeFlags(fs *pflag.FlagSet) {
	fs.String("tcp-sa", "127.0.0.1", "tcp step: upstream address (literal IP or hostname)")
	fs.Int("tcp-sp", 0, "tcp step: upstream port (required)")
}

func (tcpStepFactory) Construct(fs *pflag.FlagSet, bufferSize int, level klog.Level) (pipeline.Step, error) {
	host, err := fs.GetString("tcp-sa")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "tcp step: --tcp-sa: " + err.Error()}
	}
	port, err := fs.GetInt("tcp-sp")
	if err != nil {
		return nil, &kpxerr.ConfigError{Cause: err, Message: "tcp step: --tcp-sp: " + err.Error()}
	}
	if port == 0 {
		return nil, &kpxerr.ConfigError{Message: "tcp step: --tcp-sp is required"}
	}
	resolved, err := addr.Resolve(context.Background(), host, port)
	if err != nil {
		return nil, err
	}
	return pipeline.NewTCPStep(resolved, bufferSize)
}
