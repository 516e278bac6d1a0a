// Package cliopts holds the closed registries of entry and step kinds:
// each kind describes its own CLI flags and constructs instances from the
// parsed flag set. An unrecognized name is a ConfigError, not a panic.
//
// Factories live here rather than being registered from within the
// pipeline/entry packages' own init() functions, because a
// StepFactory/EntryFactory needs concrete step/entry constructors at
// registration time; having pipeline/entry import cliopts back to
// self-register would cycle with cliopts importing them for the Step/Entry
// types. This package is the one place that depends on both.
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

// StepFactory describes and constructs one step kind.
type StepFactory interface {
	// Name is the string passed to --step/-s to select this kind.
	Name() string
	// DescribeFlags registers this step kind's own flags against fs.
	DescribeFlags(fs *pflag.FlagSet)
	// Construct builds one step instance from parsed flags.
	Construct(fs *pflag.FlagSet, bufferSize int, level klog.Level) (pipeline.Step, error)
}

// EntryFactory describes and constructs one entry kind.
type EntryFactory interface {
	// Name is the string passed to --entry/-e to select this kind.
	Name() string
	// DescribeFlags registers this entry kind's own flags against fs.
	DescribeFlags(fs *pflag.FlagSet)
	// Construct builds the entry, binding it to the given pipeline template.
	Construct(ctx context.Context, fs *pflag.FlagSet, template *pipeline.Pipeline, bufferSize int, level klog.Level, logger *logiface.Logger[*islog.Event]) (entry.Entry, error)
}

// steps and entries are the closed registration sets; nothing adds to them
// after package init.
var (
	steps = []StepFactory{
		stdioStepFactory{},
		tcpStepFactory{},
	}
	entries = []EntryFactory{
		stdioEntryFactory{},
		tcpEntryFactory{},
		httpEntryFactory{},
	}
)

// Steps returns every registered step factory, for describing flags.
func Steps() []StepFactory { return steps }

// Entries returns every registered entry factory, for describing flags.
func Entries() []EntryFactory { return entries }

// LookupStep returns the step factory registered under name, or a
// ConfigError for an unknown name.
func LookupStep(name string) (StepFactory, error) {
	for _, s := range steps {
		if s.Name() == name {
			return s, nil
		}
	}
	return nil, &kpxerr.ConfigError{Message: "unknown step: " + name}
}

// LookupEntry returns the entry factory registered under name, or a
// ConfigError for an unknown name.
func LookupEntry(name string) (EntryFactory, error) {
	for _, e := range entries {
		if e.Name() == name {
			return e, nil
		}
	}
	return nil, &kpxerr.ConfigError{Message: "unknown entry: " + name}
}
