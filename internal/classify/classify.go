// Package classify maps a transport error or HTTP status code to a retry
// policy. The scheduling loop in internal/engine consults it before
// deciding whether to retry a failed fetch, following the same
// attempt-counted exponential-backoff shape the teacher downloader uses in
// its per-task retry loop, but with status-aware categories instead of a
// single uniform retry bucket.
package classify

import (
	"context"
	"errors"
	"math/rand"
	"net"
	"net/http"
	"time"

	"github.com/tsegment/hlsdl/internal/headers"
)

// Category is the retry classification assigned to a failure.
type Category int

const (
	// RetryableNetwork covers transport-level transients: timeout, reset,
	// DNS failure, and HTTP 408/429.
	RetryableNetwork Category = iota
	// RetryableServer covers HTTP 5xx.
	RetryableServer
	// NonRetryableClient covers 4xx other than 401/403/408/429.
	NonRetryableClient
	// NonRetryableAuth covers HTTP 401/403.
	NonRetryableAuth
	// Permanent covers unclassified failures and 2xx treated as errors.
	Permanent
	// Integrity covers state-file magic/version/CRC mismatches. Never
	// surfaced to a caller; the loader silently discards and restarts.
	Integrity
	// Cancelled covers caller-initiated cancellation; not an error.
	Cancelled
)

func (c Category) String() string {
	switch c {
	case RetryableNetwork:
		return "RetryableNetwork"
	case RetryableServer:
		return "RetryableServer"
	case NonRetryableClient:
		return "NonRetryableClient"
	case NonRetryableAuth:
		return "NonRetryableAuth"
	case Integrity:
		return "Integrity"
	case Cancelled:
		return "Cancelled"
	default:
		return "Permanent"
	}
}

// Policy is the retry policy attached to a Category.
type Policy struct {
	Category  Category
	Retryable bool
	MaxAttempts int
	BaseDelay time.Duration
}

var (
	policyRetryableNetwork = Policy{Category: RetryableNetwork, Retryable: true, MaxAttempts: 5, BaseDelay: time.Second}
	policyRetryableServer  = Policy{Category: RetryableServer, Retryable: true, MaxAttempts: 3, BaseDelay: 2 * time.Second}
	policyNonRetryableAuth = Policy{Category: NonRetryableAuth, Retryable: false}
	policyNonRetryableClient = Policy{Category: NonRetryableClient, Retryable: false}
	policyPermanent        = Policy{Category: Permanent, Retryable: false}
	policyCancelled        = Policy{Category: Cancelled, Retryable: false}
)

// FromError classifies a transport-level error (no HTTP response was
// received at all).
func FromError(err error) Policy {
	if err == nil {
		return policyPermanent
	}
	if errors.Is(err, context.Canceled) {
		return policyCancelled
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return policyRetryableNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return policyRetryableNetwork
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return policyRetryableNetwork
	}
	// Connection reset, broken pipe, EOF mid-stream and similar show up as
	// plain errors wrapping syscall errors once unwrapped by net/http; treat
	// anything else reaching here as a transient network condition rather
	// than permanent, since the caller only gets here when the request
	// never produced a usable response.
	return policyRetryableNetwork
}

// FromStatus classifies an HTTP response by status code.
func FromStatus(status int) Policy {
	switch {
	case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		return policyRetryableNetwork
	case status >= 500 && status <= 599:
		return policyRetryableServer
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return policyNonRetryableAuth
	case status >= 400 && status <= 499:
		return policyNonRetryableClient
	case status >= 200 && status < 300:
		return policyPermanent
	default:
		return policyPermanent
	}
}

// Delay computes the backoff duration for attempt k (1-indexed), following
// base·2^(k−1) with additive jitter bounded by 100 + 50·k ms, matching the
// teacher's `1<<attempt * retryBaseDelay` exponential-backoff shape
// (internal/downloader/concurrent.go) generalized to a per-category base.
func Delay(p Policy, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	backoff := p.BaseDelay * time.Duration(1<<uint(attempt-1))
	jitterCeiling := 100 + 50*attempt
	jitter := time.Duration(rand.Intn(jitterCeiling)) * time.Millisecond
	return backoff + jitter
}

// DelayForResponse prefers a server-specified Retry-After over the
// computed exponential backoff, when the response carries one. A Retry-After
// that is already due (e.g. "0") yields a zero delay.
func DelayForResponse(p Policy, attempt int, resp *http.Response) time.Duration {
	if at, ok := headers.RetryAfter(resp); ok {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return Delay(p, attempt)
}
