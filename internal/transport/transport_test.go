package transport

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestNewDefault(t *testing.T) {
	rt := New(Options{Timeout: 5 * time.Second})

	tr, ok := rt.(*http.Transport)
	if !ok {
		t.Fatalf("New() = %T, want *http.Transport", rt)
	}
	if tr.TLSHandshakeTimeout != 5*time.Second {
		t.Errorf("TLSHandshakeTimeout = %v, want 5s", tr.TLSHandshakeTimeout)
	}
}

func TestNewFingerprint(t *testing.T) {
	rt := New(Options{Fingerprint: true})
	if _, ok := rt.(*fingerprintTransport); !ok {
		t.Fatalf("New(Fingerprint) = %T, want *fingerprintTransport", rt)
	}
}

// TestFingerprintPlainHTTP verifies plain http requests go through the
// HTTP/1.1 transport without a TLS dial.
func TestFingerprintPlainHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(Options{Fingerprint: true, Timeout: 5 * time.Second})}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if string(body) != "ok" {
		t.Errorf("body = %q, want ok", body)
	}
}
