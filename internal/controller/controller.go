// Package controller implements the Job Controller (C13): the component
// that drives one DownloadTask from a bare playlist URL through to a
// finished output file, owning the steps the Engine itself does not —
// fetching and parsing the playlist, fetching the decryption key, writing
// the concat manifest, and invoking the Muxer. The drive-sequence shape
// (fetch -> parse -> prepare -> run -> finalize, each step reporting
// through a callback) follows the teacher's DownloadService.Add/List/
// GetStatus split (internal/core/interface.go): a single entry point that
// owns task lifecycle and reports progress through a channel/callback
// rather than letting callers poll internal engine state directly.
package controller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tsegment/hlsdl/internal/classify"
	"github.com/tsegment/hlsdl/internal/crypto"
	"github.com/tsegment/hlsdl/internal/engine"
	"github.com/tsegment/hlsdl/internal/headers"
	"github.com/tsegment/hlsdl/internal/httpclient"
	"github.com/tsegment/hlsdl/internal/muxer"
	"github.com/tsegment/hlsdl/internal/playlist"
	"github.com/tsegment/hlsdl/internal/task"
	"github.com/tsegment/hlsdl/internal/telemetry"
)

// PlaylistTimeout and KeyTimeout bound the two non-segment network steps the
// spec names explicitly in §5 (60s playlist, 30s key); the Engine enforces
// its own 45s per-segment timeout internally.
const (
	PlaylistTimeout = 60 * time.Second
	KeyTimeout      = 30 * time.Second
)

// Options configures a Controller run. Pool and Muxer are required;
// Provider defaults to headers.DefaultHeaders when nil.
type Options struct {
	Pool           *httpclient.Pool
	Provider       headers.Provider
	Muxer          muxer.Muxer
	MaxBPS         int64
	FallbackPolicy crypto.FallbackPolicy
	TempRoot       string // defaults to os.TempDir()
}

// Controller drives a single DownloadTask to completion.
type Controller struct {
	opts Options
}

// New builds a Controller.
func New(opts Options) *Controller {
	if opts.TempRoot == "" {
		opts.TempRoot = os.TempDir()
	}
	return &Controller{opts: opts}
}

// workdirFor returns the per-task scratch directory the spec's data model
// names: <temp_root>/m3u8_download_<task_id>/.
func (c *Controller) workdirFor(t *task.DownloadTask) string {
	return filepath.Join(c.opts.TempRoot, "m3u8_download_"+t.TaskID)
}

// Run executes the controller's eight-step drive sequence against t,
// reporting every status transition through report if non-nil, and
// returns only once the output file exists at t.OutputPath or a terminal
// error has occurred.
func (c *Controller) Run(ctx context.Context, t *task.DownloadTask, report task.ProgressCallback) error {
	emit := func() {
		if report != nil {
			report(t.Snapshot())
		}
	}

	workdir := c.workdirFor(t)
	if err := os.MkdirAll(workdir, 0o755); err != nil {
		return c.fail(t, emit, fmt.Errorf("creating workdir: %w", err))
	}

	// Step 1-2: fetch and parse the playlist.
	t.Status = task.FetchingPlaylist
	emit()

	body, err := c.fetchWithRetry(ctx, t.PlaylistURL, PlaylistTimeout, c.providerOrDefault())
	if err != nil {
		return c.fail(t, emit, fmt.Errorf("fetching playlist: %w", err))
	}

	mediaURL := t.PlaylistURL
	if playlist.IsMasterPlaylist(string(body)) {
		variant, err := playlist.BestVariant(string(body), t.PlaylistURL)
		if err != nil {
			return c.fail(t, emit, fmt.Errorf("selecting variant: %w", err))
		}
		body, err = c.fetchWithRetry(ctx, variant, PlaylistTimeout, c.providerOrDefault())
		if err != nil {
			return c.fail(t, emit, fmt.Errorf("fetching variant playlist: %w", err))
		}
		mediaURL = variant
	}

	pl, err := playlist.Parse(string(body), mediaURL)
	if err != nil {
		return c.fail(t, emit, fmt.Errorf("parsing playlist: %w", err))
	}

	// Step 3: fetch the decryption key, if any.
	var key []byte
	if pl.Encryption != nil && pl.Encryption.KeyURL != "" {
		key, err = c.fetchWithRetry(ctx, pl.Encryption.KeyURL, KeyTimeout, c.providerOrDefault())
		if err != nil {
			return c.fail(t, emit, fmt.Errorf("fetching key: %w", err))
		}
		if len(key) != crypto.KeySize {
			return c.fail(t, emit, fmt.Errorf("key has unexpected length %d", len(key)))
		}
	}

	total := len(pl.Segments)
	if total == 0 {
		return c.fail(t, emit, fmt.Errorf("playlist has no segments"))
	}

	// Step 4-5: run the Engine.
	t.Status = task.Downloading
	emit()

	eng := engine.New(engine.Options{
		Workdir:        workdir,
		Pool:           c.opts.Pool,
		Provider:       c.providerOrDefault(),
		Key:            key,
		MaxBPS:         c.opts.MaxBPS,
		FallbackPolicy: c.opts.FallbackPolicy,
		Progress: func(completed, total int, bytesDone int64) {
			t.BytesDone = bytesDone
			if total > 0 {
				t.Progress = float64(completed) / float64(total)
			}
			emit()
		},
	})

	result, err := eng.Run(ctx, pl)
	if err != nil {
		return c.fail(t, emit, fmt.Errorf("downloading segments: %w", err))
	}

	// Step 6: write the concat manifest.
	manifestPath := filepath.Join(workdir, "concat.txt")
	if err := writeManifest(manifestPath, result.SegmentPaths); err != nil {
		return c.fail(t, emit, fmt.Errorf("writing manifest: %w", err))
	}

	// Step 7: invoke the muxer.
	t.Status = task.Muxing
	emit()

	if c.opts.Muxer == nil {
		return c.fail(t, emit, fmt.Errorf("no muxer configured"))
	}
	if err := c.opts.Muxer.Concatenate(manifestPath, t.OutputPath); err != nil {
		return c.fail(t, emit, fmt.Errorf("muxing: %w", err))
	}

	// Step 8: clean up the state file and workdir, report completion.
	_ = os.RemoveAll(workdir)
	t.Status = task.Completed
	t.Progress = 1.0
	emit()
	return nil
}

func (c *Controller) fail(t *task.DownloadTask, emit func(), err error) error {
	t.Status = task.Failed
	t.ErrorMessage = err.Error()
	emit()
	telemetry.Debug("controller: task %s failed: %v", t.TaskID, err)
	return err
}

func (c *Controller) providerOrDefault() headers.Provider {
	if c.opts.Provider != nil {
		return c.opts.Provider
	}
	return staticDefault{}
}

type staticDefault struct{}

func (staticDefault) HeadersFor(_ *url.URL) map[string]string { return headers.DefaultHeaders() }

// writeManifest writes the ffconcat-style manifest the spec's external
// interfaces section (§6) names: one "file '<absolute-path>'" line per
// segment, in order.
func writeManifest(path string, segmentPaths []string) error {
	var b strings.Builder
	for _, p := range segmentPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		b.WriteString(fmt.Sprintf("file '%s'\n", abs))
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// fetchWithRetry performs a GET governed by the same C7 classification and
// backoff the Engine applies to segments, used here for the playlist and
// key fetches (§5: 60s and 30s timeouts respectively).
func (c *Controller) fetchWithRetry(ctx context.Context, rawURL string, timeout time.Duration, provider headers.Provider) ([]byte, error) {
	var lastErr error
	for attempt := 1; ; attempt++ {
		data, status, resp, err := fetchOnce(ctx, c.opts.Pool, rawURL, timeout, provider)
		if err == nil && status == 200 {
			return data, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("unexpected status %d", status)
		}

		var policy classify.Policy
		if err != nil {
			policy = classify.FromError(err)
		} else {
			policy = classify.FromStatus(status)
		}
		if !policy.Retryable || attempt >= policy.MaxAttempts {
			return nil, lastErr
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(classify.DelayForResponse(policy, attempt, resp)):
		}
	}
}

// fetchOnce performs a single GET through the pool, applying provider
// headers, and returns the body, status code, and the response itself (body
// already drained and closed, kept only so the retry loop can read a
// Retry-After header off it).
func fetchOnce(ctx context.Context, pool *httpclient.Pool, rawURL string, timeout time.Duration, provider headers.Provider) ([]byte, int, *http.Response, error) {
	handle, err := pool.Acquire(ctx)
	if err != nil {
		return nil, 0, nil, err
	}
	defer handle.Release()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, nil, err
	}
	headers.Apply(req, provider.HeadersFor(req.URL))

	resp, err := handle.Client.Do(req)
	if err != nil {
		return nil, 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, resp, err
	}
	return data, resp.StatusCode, resp, nil
}
