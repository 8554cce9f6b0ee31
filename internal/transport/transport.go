// Package transport builds the http.RoundTripper used for catalog requests.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	utls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Options configures New.
type Options struct {
	// Timeout bounds dialing and the TLS handshake.
	Timeout time.Duration

	// Fingerprint presents a Chrome ClientHello (via uTLS) instead of Go's.
	// Some CDNs in front of storefront APIs throttle Go's JA3 fingerprint.
	Fingerprint bool
}

// New returns the transport for catalog requests. Without Fingerprint it is a
// clone of http.DefaultTransport with the configured timeouts.
func New(opts Options) http.RoundTripper {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if !opts.Fingerprint {
		t := http.DefaultTransport.(*http.Transport).Clone()
		t.TLSHandshakeTimeout = timeout
		t.ResponseHeaderTimeout = timeout
		return t
	}
	return newFingerprintTransport(timeout)
}

// fingerprintTransport speaks HTTP/2 when ALPN agrees and HTTP/1.1 otherwise,
// dialing TLS through uTLS in both cases.
type fingerprintTransport struct {
	h2 *http2.Transport
	h1 *http.Transport
}

func newFingerprintTransport(timeout time.Duration) *fingerprintTransport {
	dialer := &net.Dialer{Timeout: timeout}
	return &fingerprintTransport{
		h2: &http2.Transport{
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				return dialFingerprinted(ctx, dialer, network, addr)
			},
		},
		h1: &http.Transport{
			DialContext: dialer.DialContext,
			DialTLSContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return dialFingerprinted(ctx, dialer, network, addr)
			},
			ResponseHeaderTimeout: timeout,
		},
	}
}

// RoundTrip implements http.RoundTripper. Plain http and servers without h2
// are served by the HTTP/1.1 transport.
func (t *fingerprintTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.URL.Scheme == "https" {
		if resp, err := t.h2.RoundTrip(req); err == nil {
			return resp, nil
		}
	}
	return t.h1.RoundTrip(req)
}

func dialFingerprinted(ctx context.Context, dialer *net.Dialer, network, addr string) (net.Conn, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}

	conn, err := dialer.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	tlsConn := utls.UClient(conn, &utls.Config{ServerName: host}, utls.HelloChrome_Auto)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("tls handshake: %w", err)
	}
	return tlsConn, nil
}
