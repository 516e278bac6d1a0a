package addr

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLiteralIPv4(t *testing.T) {
	a, err := Resolve(context.Background(), "127.0.0.1", 8080)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", a.IP.String())
	assert.Equal(t, 8080, a.Port)
}

func TestResolveLiteralIPv6(t *testing.T) {
	a, err := Resolve(context.Background(), "::1", 443)
	require.NoError(t, err)
	assert.Equal(t, "::1", a.IP.String())
	assert.Equal(t, 443, a.Port)
}

func TestResolveHostname(t *testing.T) {
	a, err := Resolve(context.Background(), "localhost", 9000)
	require.NoError(t, err)
	assert.NotNil(t, a.IP)
	assert.Equal(t, 9000, a.Port)
}

func TestResolveUnknownHostnameFails(t *testing.T) {
	_, err := Resolve(context.Background(), "this-host-does-not-exist.invalid", 80)
	assert.Error(t, err)
}
