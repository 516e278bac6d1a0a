// Package entry implements the three ingress variants: stdio
// (line/stream), TCP (raw stream), and HTTP/2 (framed request/response).
// TCPEntry drives the connection contexts and token map of
// internal/kpx/engine's Loop; HTTPEntry builds an engine.Context per request
// without the Loop; StdioEntry drives its pipeline directly and uses
// neither.
package entry

// Entry is the ingress listener and readiness-loop driver.
type Entry interface {
	// Listen runs the entry's event loop. It blocks until the entry is
	// stopped or encounters a server-side error, which it returns to the
	// caller; cmd/kproxy turns that into a non-zero exit.
	Listen() error
	// Close stops the loop and releases the listening resource.
	Close() error
}
