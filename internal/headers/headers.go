// Package headers defines the HeaderProvider contract the core consumes
// (the authenticated-session/cookie subsystem is explicitly out of scope
// per the spec; this package only specifies the shape the core asks for)
// plus a small set of response-header helpers used by the retry path.
package headers

import (
	"net/http"
	"net/url"
	"time"

	"github.com/vfaronov/httpheader"
)

// Provider supplies the headers attached to every outbound request. The
// core never invents headers itself; it always asks a Provider.
type Provider interface {
	HeadersFor(u *url.URL) map[string]string
}

// StaticProvider is the simplest Provider: a fixed map of headers plus a
// Referer derived per-request from the playlist's origin, matching the
// spec's requirement that Referer track "scheme+host of the playlist".
type StaticProvider struct {
	Headers      map[string]string
	PlaylistBase *url.URL
}

// HeadersFor implements Provider.
func (p StaticProvider) HeadersFor(u *url.URL) map[string]string {
	out := make(map[string]string, len(p.Headers)+1)
	for k, v := range p.Headers {
		out[k] = v
	}
	if _, ok := out["Referer"]; !ok && p.PlaylistBase != nil {
		ref := url.URL{Scheme: p.PlaylistBase.Scheme, Host: p.PlaylistBase.Host}
		out["Referer"] = ref.String()
	}
	return out
}

// DefaultHeaders returns the minimum set the spec's external-interfaces
// section (§6) mandates every request carry when no richer Provider is
// injected: a plausible browser User-Agent, Accept family, keep-alive, and
// cross-site Sec-Fetch-* metadata.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":      "Mozilla/5.0 (compatible; hlsdl/1.0)",
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
		"Connection":      "keep-alive",
		"Sec-Fetch-Mode":  "cors",
		"Sec-Fetch-Site":  "cross-site",
		"Sec-Fetch-Dest":  "empty",
	}
}

// Apply copies a header map onto an *http.Request.
func Apply(req *http.Request, h map[string]string) {
	for k, v := range h {
		req.Header.Set(k, v)
	}
}

// RetryAfter reads the Retry-After response header (either delta-seconds
// or an HTTP-date form) and reports the absolute time to retry at, if
// present. Used by the error classifier to prefer a server-specified delay
// over the default exponential backoff when one is given.
func RetryAfter(resp *http.Response) (time.Time, bool) {
	if resp == nil {
		return time.Time{}, false
	}
	t := httpheader.RetryAfter(resp.Header)
	if t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}
