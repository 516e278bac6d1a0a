// Package pipeline implements the step and pipeline abstractions: an
// ordered sequence of pluggable byte transformers driven forward (toward
// the far end) and backward (toward ingress).
package pipeline

// Step is a single pipeline stage. Implementations are StdioStep (a local
// transform) and TCPStep (a remote-forwarding transform); the set is
// closed, matching the CLI's fixed enumeration of step names, rather than
// open to dynamic plugin registration.
type Step interface {
	// Forward transforms data flowing from ingress toward the far end and
	// returns the bytes to hand to the next step.
	Forward(data []byte) ([]byte, error)
	// Backward transforms data flowing from the far end toward ingress and
	// returns the bytes to hand to the previous step.
	Backward(data []byte) ([]byte, error)
	// Descriptor returns the OS handle to poll for readiness on behalf of
	// this step. Steps without one return a sentinel fd that never asserts
	// readiness.
	Descriptor() int
	// Clone produces an independent step equivalent in configuration. A
	// step owning a network descriptor opens a fresh connection rather than
	// duplicating the original's fd, so sibling pipelines never share a
	// handle.
	Clone() (Step, error)
	// Kind names the step's registered CLI name, e.g. "stdio" or "tcp".
	Kind() string
}

// SentinelFD is returned by Descriptor for steps with no underlying
// descriptor. It is never registered with the readiness facility directly
// by Pipeline (see Pipeline.Descriptor); entries must not poll on it.
const SentinelFD = -1
