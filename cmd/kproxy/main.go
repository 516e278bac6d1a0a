// Command kproxy is the proxy's CLI harness:
// it enumerates options from each registered entry and step
// (internal/kpx/cliopts), parses argv, constructs a pipeline template and an
// entry, and runs the entry's event loop until it exits or is interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kamranrad1993/kproxy/internal/kpx/cliopts"
	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kproxy:", err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps the error taxonomy onto the process exit code. Loop
// failures surface from Listen as FatalError; everything else reaching
// main is a startup error (configuration, address resolution, bind or
// flag-parse failure) and exits 1.
func exitCodeFor(err error) int {
	var fatal *kpxerr.FatalError
	if errors.As(err, &fatal) {
		return 2
	}
	return 1
}

func newRootCommand() *cobra.Command {
	var (
		debug      int
		entryName  string
		stepNames  []string
		bufferSize int
	)

	cmd := &cobra.Command{
		Use:     "kproxy",
		Short:   "A configurable, byte-oriented proxy composed from pluggable entry and step stages",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, debug, entryName, stepNames, bufferSize)
		},
	}

	cmd.Flags().IntVarP(&debug, "debug", "d", 0, "debug verbosity: 0=silent, 1=critical, 2=warn, 3=info")
	cmd.Flags().StringVarP(&entryName, "entry", "e", "", "entry kind: one of stdio, tcp, http (required)")
	cmd.Flags().StringArrayVarP(&stepNames, "step", "s", nil, "one pipeline step kind, in pipeline order (repeatable, required)")
	cmd.Flags().IntVarP(&bufferSize, "buffer-size", "b", 8192, "maximum per-read byte count")

	for _, s := range cliopts.Steps() {
		s.DescribeFlags(cmd.Flags())
	}
	for _, e := range cliopts.Entries() {
		e.DescribeFlags(cmd.Flags())
	}

	return cmd
}

func run(cmd *cobra.Command, debug int, entryName string, stepNames []string, bufferSize int) error {
	level, ok := klog.ParseLevel(debug)
	if !ok {
		return &kpxerr.ConfigError{Message: fmt.Sprintf("--debug must be 0-3, got %d", debug)}
	}
	if entryName == "" {
		return &kpxerr.ConfigError{Message: "--entry is required"}
	}
	if len(stepNames) == 0 {
		return &kpxerr.ConfigError{Message: "at least one --step is required"}
	}

	logger := klog.New(level)
	if level.DumpEnabled() {
		pipeline.SetDumpWriter(os.Stderr)
	}

	template := pipeline.New()
	for _, name := range stepNames {
		factory, err := cliopts.LookupStep(name)
		if err != nil {
			return err
		}
		step, err := factory.Construct(cmd.Flags(), bufferSize, level)
		if err != nil {
			return err
		}
		template.Append(step)
	}

	entryFactory, err := cliopts.LookupEntry(entryName)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := entryFactory.Construct(ctx, cmd.Flags(), template, bufferSize, level, logger)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = e.Close()
	}()

	return e.Listen()
}
