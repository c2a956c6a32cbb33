// Package transport builds the pooled, DNS-cache-aware *http.Transport
// the forward processor dials upstream mesh peers through.
package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// New returns a tuned *http.Transport with connection pooling and
// optional DNS caching. Set forceHTTP2 to true for remote HTTPS peers,
// false for local HTTP/1.1 peers.
func New(resolver *dnscache.Resolver, forceHTTP2 bool) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 100,
		MaxConnsPerHost:     200,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   forceHTTP2,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}
