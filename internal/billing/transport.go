package billing

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
	"github.com/rs/zerolog"
)

// newTransport returns an HTTP transport whose dialer resolves hosts
// through a dnscache.Resolver refreshed every ttl. A zero ttl keeps the
// default resolver.
func newTransport(ctx context.Context, ttl time.Duration, logger zerolog.Logger) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if ttl <= 0 {
		return transport
	}

	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(ttl)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				resolver.Refresh(true)
				logger.Debug().Dur("ttl", ttl).Msg("Billing DNS cache refreshed")
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport.DialContext = func(ctx context.Context, network, address string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(address)
		if err != nil {
			return nil, err
		}
		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		if lastErr == nil {
			lastErr = &net.DNSError{Err: "no IP addresses found", Name: host}
		}
		return nil, lastErr
	}
	return transport
}
