package engine

// Token identifies a readiness-facility registration. Its low bit is the
// discriminator between the two registrations that alias one Context:
// even means a pipeline-tail event, odd an ingress event. Both tokens for
// one connection are derived from a single pool-allocated connection id,
// so the parity invariant holds by construction and no second counter
// exists to go out of sync.
type Token uint64

// PipelineToken and IngressToken derive a connection's two tokens from one
// id allocated by idpool.Pool.
func PipelineToken(id int) Token { return Token(id) << 1 }
func IngressToken(id int) Token  { return Token(id)<<1 | 1 }

// IsIngress reports whether t is an ingress-side token (odd).
func (t Token) IsIngress() bool { return t&1 == 1 }

// ConnID recovers the connection id a token was derived from.
func (t Token) ConnID() int { return int(t >> 1) }

// ServerToken is the fixed well-known token the listening/server endpoint
// registers under. It aliases id 0's pipeline token, so
// entries that accept connections must reserve connection id 0 for the
// server at construction (allocate and never release it) before handing
// out ids to accepted connections — see entry.TCPEntry.
const ServerToken Token = 0
