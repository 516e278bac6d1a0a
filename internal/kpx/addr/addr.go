// Package addr resolves a host-or-IP literal plus a port into a socket
// address. A literal address short-circuits; anything else goes through
// the platform resolver.
package addr

import (
	"context"
	"net"

	"github.com/kamranrad1993/kproxy/internal/kpx/kpxerr"
)

// Resolve turns host (a literal IP address or a hostname) plus port into a
// *net.TCPAddr. If host parses as a literal address it is used directly;
// otherwise a name lookup is performed and the first result is used.
func Resolve(ctx context.Context, host string, port int) (*net.TCPAddr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.TCPAddr{IP: ip, Port: port}, nil
	}

	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, &kpxerr.AddressError{Cause: err, Message: "address: name lookup failed for " + host}
	}
	if len(ips) == 0 {
		return nil, &kpxerr.AddressError{Message: "address: no addresses resolved for " + host}
	}
	return &net.TCPAddr{IP: ips[0].IP, Port: port}, nil
}
