// Package httpclient implements a bounded, LIFO-favoring pool of HTTP
// client handles, following the keep-alive-preserving transport tuning the
// teacher applies to its own range-request client pool
// (internal/downloader/config.go's MaxIdleConnsPerHost/MaxConnsPerHost
// knobs and internal/engine/single/downloader.go's proxy wiring), adapted
// from a single shared *http.Client into a cooperative acquire/release
// pool sized for this module's segment-fetch concurrency ceiling.
package httpclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// DefaultMaxSize is the default bound on pooled handles.
const DefaultMaxSize = 8

// Pool hands out *http.Client handles, bounded by max_size. Handles are
// plain *http.Client values sharing one underlying *http.Transport, so
// "acquiring a handle" is really about bounding concurrent *usage*, not
// about separate connection pools per handle — matching the teacher's own
// single-shared-transport design, just with explicit admission control
// layered on top so the Engine can bound active fetches independently of
// the adaptive concurrency ceiling.
type Pool struct {
	transport *http.Transport
	client    *http.Client
	sem       chan struct{}
	closed    chan struct{}
}

// Options configures transport-level behavior for a Pool.
type Options struct {
	MaxSize           int
	ProxyURL          string
	SkipTLSVerify     bool
	DialTimeout       time.Duration
	KeepAlive         time.Duration
	IdleConnTimeout   time.Duration
}

func defaultOptions() Options {
	return Options{
		MaxSize:         DefaultMaxSize,
		DialTimeout:      10 * time.Second,
		KeepAlive:        30 * time.Second,
		IdleConnTimeout:  90 * time.Second,
	}
}

// New builds a Pool. A zero-value Options behaves like defaultOptions.
func New(opts Options) (*Pool, error) {
	def := defaultOptions()
	if opts.MaxSize <= 0 {
		opts.MaxSize = def.MaxSize
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = def.DialTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = def.KeepAlive
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = def.IdleConnTimeout
	}

	dialer := &net.Dialer{Timeout: opts.DialTimeout, KeepAlive: opts.KeepAlive}

	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		MaxIdleConnsPerHost: opts.MaxSize,
		MaxConnsPerHost:     opts.MaxSize,
		IdleConnTimeout:     opts.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}
	if opts.SkipTLSVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	if opts.ProxyURL != "" {
		if err := applyProxy(transport, opts.ProxyURL); err != nil {
			// Fall back to environment-derived proxying on a malformed
			// proxy URL rather than failing pool construction outright,
			// matching the teacher's graceful-fallback proxy handling in
			// internal/engine/single/downloader.go.
			transport.Proxy = http.ProxyFromEnvironment
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	p := &Pool{
		transport: transport,
		client:    &http.Client{Transport: transport},
		sem:       make(chan struct{}, opts.MaxSize),
		closed:    make(chan struct{}),
	}
	for i := 0; i < opts.MaxSize; i++ {
		p.sem <- struct{}{}
	}
	return p, nil
}

func applyProxy(transport *http.Transport, rawProxyURL string) error {
	u, err := url.Parse(rawProxyURL)
	if err != nil {
		return fmt.Errorf("httpclient: invalid proxy url: %w", err)
	}
	switch u.Scheme {
	case "socks5", "socks5h":
		dialer, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("httpclient: socks5 proxy: %w", err)
		}
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			return dialer.Dial(network, addr)
		}
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		return fmt.Errorf("httpclient: unsupported proxy scheme %q", u.Scheme)
	}
	return nil
}

// Handle is a leased client; callers must call Release exactly once.
type Handle struct {
	pool   *Pool
	Client *http.Client
}

// Acquire blocks (cooperatively, respecting ctx) until a handle is
// available or max_size outstanding handles have not yet been released.
func (p *Pool) Acquire(ctx context.Context) (*Handle, error) {
	select {
	case <-p.closed:
		return nil, fmt.Errorf("httpclient: pool closed")
	default:
	}
	select {
	case <-p.sem:
		return &Handle{pool: p, Client: p.client}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, fmt.Errorf("httpclient: pool closed")
	}
}

// Release returns a handle to the pool. Safe to call once per successful
// Acquire; calling it more than once will over-credit the pool, so callers
// should defer it immediately after a successful Acquire.
func (h *Handle) Release() {
	select {
	case h.pool.sem <- struct{}{}:
	default:
	}
}

// CloseAll drains idle connections. Outstanding handles already leased
// continue to work; their underlying transport connections are simply not
// reused afterward.
func (p *Pool) CloseAll() {
	select {
	case <-p.closed:
		return
	default:
		close(p.closed)
	}
	p.transport.CloseIdleConnections()
}
