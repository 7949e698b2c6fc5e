package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"

	"golang.org/x/net/http2"
)

// DialHTTP2 opens one HTTP/2 session to cfg.BaseURL. https origins use
// TLS with ALPN h2; http origins use prior-knowledge h2c over plain TCP
// (mainly for local upstreams and tests).
func DialHTTP2(ctx context.Context, cfg ProviderConfig) (Session, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("dial: parse base URL %q: %w", cfg.BaseURL, err)
	}

	host := u.Hostname()
	port := u.Port()

	dialer := &net.Dialer{}
	var raw net.Conn

	switch u.Scheme {
	case "https":
		if port == "" {
			port = "443"
		}
		td := &tls.Dialer{
			NetDialer: dialer,
			Config: &tls.Config{
				ServerName: host,
				NextProtos: []string{http2.NextProtoTLS},
			},
		}
		raw, err = td.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, fmt.Errorf("dial: tls connect %s: %w", u.Host, err)
		}
		if tc, ok := raw.(*tls.Conn); ok {
			if proto := tc.ConnectionState().NegotiatedProtocol; proto != http2.NextProtoTLS {
				raw.Close()
				return nil, fmt.Errorf("dial: %s did not negotiate h2 (got %q)", u.Host, proto)
			}
		}
		t := &http2.Transport{}
		return t.NewClientConn(raw)

	case "http":
		if port == "" {
			port = "80"
		}
		raw, err = dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, port))
		if err != nil {
			return nil, fmt.Errorf("dial: connect %s: %w", u.Host, err)
		}
		t := &http2.Transport{AllowHTTP: true}
		return t.NewClientConn(raw)

	default:
		return nil, fmt.Errorf("dial: unsupported scheme %q in base URL %q", u.Scheme, cfg.BaseURL)
	}
}
