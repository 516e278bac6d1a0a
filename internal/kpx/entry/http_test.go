package entry

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"golang.org/x/net/http2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kamranrad1993/kproxy/internal/kpx/klog"
)

// TestHTTPEntryFramedRequestEcho checks that an HTTP/2 POST with
// body "xyz" against an entry whose pipeline forwards to an upstream echo
// server returns a response body of "xyz".
func TestHTTPEntryFramedRequestEcho(t *testing.T) {
	upstream := startEchoListener(t)
	template := buildTCPStepPipeline(t, upstream)

	e, err := NewHTTPEntry(context.Background(), "127.0.0.1", 0, template, 4096, klog.LevelSilent, nil)
	require.NoError(t, err)
	defer e.Close()
	go func() { _ = e.Listen() }()

	addr := e.listener.Addr().String()

	// h2c-style client: speaks HTTP/2 framing directly over a plain TCP
	// dial, matching the framing library's own test style; the proxy
	// terminates no TLS.
	transport := &http2.Transport{
		AllowHTTP: true,
		DialTLSContext: func(ctx context.Context, network, addr string, cfg *tls.Config) (net.Conn, error) {
			return net.Dial(network, addr)
		},
	}
	defer transport.CloseIdleConnections()
	client := &http.Client{Transport: transport, Timeout: 5 * time.Second}

	resp, err := client.Post("http://"+addr, "application/octet-stream", bytes.NewReader([]byte("xyz")))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "xyz", string(body))
}
