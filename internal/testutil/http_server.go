// Package testutil provides a mock HLS server (playlist + segments) for
// exercising the download engine end-to-end, adapted from the teacher's
// internal/testutil mock HTTP server: the IPv4-only httptest binding (to
// dodge sandboxed-environment IPv6 listener issues) and the
// functional-options configuration style carry over directly; the served
// content changes from a single range-addressable byte blob to an M3U8
// playlist plus a set of segment endpoints.
package testutil

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// NewHTTPServer starts an httptest server bound to IPv4 only.
func NewHTTPServer(handler http.Handler) *httptest.Server {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return httptest.NewServer(handler)
	}
	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: handler}}
	srv.Start()
	return srv
}

// NewHTTPServerT starts an IPv4-only httptest server and skips the test if
// binding fails.
func NewHTTPServerT(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("tcp4 listener unavailable: %v", err)
		return nil
	}
	srv := &httptest.Server{Listener: ln, Config: &http.Server{Handler: handler}}
	srv.Start()
	return srv
}
