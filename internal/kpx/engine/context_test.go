package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kamranrad1993/kproxy/internal/kpx/pipeline"
)

// TestBuffersAreDisjoint verifies the two buffers of a context are never
// aliased: mutating one must never affect the other.
func TestBuffersAreDisjoint(t *testing.T) {
	ctx := NewContext(&stubEndpoint{}, pipeline.New())
	ctx.Forward = append(ctx.Forward, 'a', 'b')
	ctx.Backward = append(ctx.Backward, 'c', 'd')

	ctx.Forward[0] = 'z'
	assert.Equal(t, byte('c'), ctx.Backward[0])
}

func TestCloseIsIdempotent(t *testing.T) {
	ep := &stubEndpoint{}
	ctx := NewContext(ep, pipeline.New())
	assert.NoError(t, ctx.Close())
	assert.True(t, ctx.Closed())
	assert.NoError(t, ctx.Close())
	assert.True(t, ep.closed)
}
