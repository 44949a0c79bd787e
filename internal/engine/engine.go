// Package engine implements the Segment Download Engine (C12): the
// scheduler that drives every segment of a parsed playlist to completion
// or failure, resuming from a bitfield state file across restarts.
//
// The worker-pool / active-count / health-monitor shape is grounded on the
// teacher's ConcurrentDownloader scheduling loop
// (internal/downloader/concurrent.go): a cursor over pending work, an
// active-task counter bounded by a controller-owned ceiling, a per-task
// retry loop with exponential backoff, and EMA-smoothed speed samples fed
// back into a health monitor. Unlike the teacher's byte-range tasks, the
// unit of work here is a whole segment URL, and persistence is a bitfield
// bit rather than a remaining-byte-range list.
package engine

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tsegment/hlsdl/internal/atomicfile"
	"github.com/tsegment/hlsdl/internal/classify"
	"github.com/tsegment/hlsdl/internal/concurrency"
	"github.com/tsegment/hlsdl/internal/crypto"
	"github.com/tsegment/hlsdl/internal/estimator"
	"github.com/tsegment/hlsdl/internal/headers"
	"github.com/tsegment/hlsdl/internal/httpclient"
	"github.com/tsegment/hlsdl/internal/merge"
	"github.com/tsegment/hlsdl/internal/netmon"
	"github.com/tsegment/hlsdl/internal/playlist"
	"github.com/tsegment/hlsdl/internal/sniff"
	"github.com/tsegment/hlsdl/internal/state"
	"github.com/tsegment/hlsdl/internal/telemetry"
	"github.com/tsegment/hlsdl/internal/throttle"
)

// SegmentTimeout is the per-attempt timeout for a single segment fetch.
const SegmentTimeout = 45 * time.Second

// ConcurrencyTickInterval is how often the Engine nudges the concurrency
// controller on its own, independent of any fetch completing — the second
// of the two triggers §4.4 names (periodic tick and explicit adjust()),
// without which a fully healthy run with zero failures would never reach
// Adjust()'s should_increase branch.
const ConcurrencyTickInterval = 5 * time.Second

// ProgressFunc is invoked after every successful segment completion with
// the number of completed segments, the total, and cumulative bytes
// downloaded so far. A terminal segment failure does not invoke it; the
// failure is reported through Run's returned error.
type ProgressFunc func(completed, total int, bytesDone int64)

// Options configures an Engine run.
type Options struct {
	Workdir     string
	Pool        *httpclient.Pool
	Provider    headers.Provider
	Key         []byte // nil when the playlist is unencrypted; the IV comes from the playlist itself (explicit or derived)
	MaxBPS      int64  // 0 disables the bandwidth throttle
	FallbackPolicy crypto.FallbackPolicy
	Progress    ProgressFunc
}

// Result is what a completed Engine.Run returns on success.
type Result struct {
	SegmentPaths []string // ascending index order, length N
}

// Engine drives one playlist's segments to completion.
type Engine struct {
	opts       Options
	monitor    *netmon.Monitor
	controller *concurrency.Controller
	throttle   *throttle.Throttle
	estimator  *estimator.Estimator
	queue      *merge.Queue

	mu         sync.Mutex
	bitfield   *state.Bitfield
	bytesDone  int64
}

// New builds an Engine for a playlist with opts.Workdir already created.
func New(opts Options) *Engine {
	mon := netmon.New()
	return &Engine{
		opts:       opts,
		monitor:    mon,
		controller: concurrency.New(mon),
		throttle:   throttle.New(opts.MaxBPS),
		estimator:  estimator.New(),
	}
}

// SegmentPath returns the conventional on-disk path for segment i.
func SegmentPath(workdir string, i int) string {
	return filepath.Join(workdir, fmt.Sprintf("segment_%06d.ts", i))
}

// Run executes the resume protocol and then schedules every pending
// segment of pl to completion, returning the ordered segment path list on
// success.
func (e *Engine) Run(ctx context.Context, pl *playlist.Playlist) (*Result, error) {
	n := len(pl.Segments)
	statePath := state.Path(e.opts.Workdir)

	lock, err := state.LockWorkdir(e.opts.Workdir)
	if err != nil {
		return nil, err
	}
	defer lock.Unlock()

	bf, ok, err := state.Load(statePath, n)
	if err != nil {
		return nil, fmt.Errorf("engine: loading state: %w", err)
	}
	if !ok {
		bf = state.New(n)
	}
	bf.Reconcile(func(i int) string { return SegmentPath(e.opts.Workdir, i) })

	e.bitfield = bf
	e.queue = merge.New(n)
	for _, i := range bf.Complete() {
		e.queue.Add(i, SegmentPath(e.opts.Workdir, i))
		if info, statErr := os.Stat(SegmentPath(e.opts.Workdir, i)); statErr == nil {
			e.bytesDone += info.Size()
		}
	}

	if bf.AllComplete() {
		return e.finish()
	}

	tickerDone := make(chan struct{})
	go e.runConcurrencyTicker(ctx, tickerDone)

	pending := bf.Pending()
	err = e.scheduleAll(ctx, pl, pending)
	close(tickerDone)
	if err != nil {
		return nil, err
	}
	return e.finish()
}

func (e *Engine) finish() (*Result, error) {
	paths, err := e.queue.AllInOrder()
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	return &Result{SegmentPaths: paths}, nil
}

// scheduleAll implements the cursor/active-count scheduling algorithm of
// §4.11: admit work up to controller.Current(), reschedule on completion,
// terminate when the cursor is exhausted and no fetch remains in flight.
func (e *Engine) scheduleAll(ctx context.Context, pl *playlist.Playlist, pending []int) error {
	cursor := 0
	var active int
	var mu sync.Mutex
	var wg sync.WaitGroup
	done := make(chan struct{}, len(pending))
	errCh := make(chan error, 1)
	var failOnce sync.Once
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	recordFailure := func(err error) {
		failOnce.Do(func() {
			errCh <- err
			cancel()
		})
	}

	scheduleMore := func() {
		mu.Lock()
		defer mu.Unlock()
		for cursor < len(pending) && active < e.controller.Current() {
			i := pending[cursor]
			cursor++
			active++
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				err := e.fetchSegment(cancelCtx, pl, idx)
				mu.Lock()
				active--
				mu.Unlock()
				if err != nil {
					recordFailure(fmt.Errorf("segment %d: %w", idx, err))
				}
				e.monitorAdjust(err != nil)
				done <- struct{}{}
			}(i)
		}
	}

	scheduleMore()
	remaining := len(pending)
	for remaining > 0 {
		select {
		case <-done:
			remaining--
			scheduleMore()
		case <-cancelCtx.Done():
			wg.Wait()
			select {
			case err := <-errCh:
				return err
			default:
				return cancelCtx.Err()
			}
		}
	}
	wg.Wait()
	select {
	case err := <-errCh:
		return err
	default:
	}
	return nil
}

func (e *Engine) monitorAdjust(failed bool) {
	if failed {
		e.controller.Adjust()
	}
}

// runConcurrencyTicker calls controller.Adjust() on a fixed interval for as
// long as the run is in flight, so a sustained healthy stretch can still
// raise the concurrency ceiling even though no failure ever triggers
// monitorAdjust.
func (e *Engine) runConcurrencyTicker(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(ConcurrencyTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			e.controller.Adjust()
		case <-ctx.Done():
			return
		case <-done:
			return
		}
	}
}

// fetchSegment implements the per-segment fetch procedure of §4.11,
// including its retry loop.
func (e *Engine) fetchSegment(ctx context.Context, pl *playlist.Playlist, index int) error {
	u := pl.Segments[index]
	path := SegmentPath(e.opts.Workdir, index)

	var lastErr error
	attempt := 0
	for {
		attempt++
		start := time.Now()
		n, err := e.attemptFetch(ctx, u, path)
		duration := time.Since(start)

		if err == nil {
			e.monitor.Record(true, duration)
			e.estimator.AddSample(n, duration.Milliseconds())
			return e.finalizeSegment(index, path, pl)
		}

		lastErr = err
		e.monitor.Record(false, duration)

		policy, retryable := classifyErr(err)
		if !retryable {
			return fmt.Errorf("non-retryable: %w", err)
		}
		if attempt >= policy.MaxAttempts {
			return fmt.Errorf("exhausted %d attempts: %w", policy.MaxAttempts, lastErr)
		}

		delay := classify.Delay(policy, attempt)
		if se, ok := err.(*statusError); ok {
			delay = classify.DelayForResponse(policy, attempt, se.resp)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

// classifyErr extracts a statusError's status if present, otherwise
// classifies the transport error directly.
func classifyErr(err error) (classify.Policy, bool) {
	if se, ok := err.(*statusError); ok {
		p := classify.FromStatus(se.status)
		return p, p.Retryable
	}
	p := classify.FromError(err)
	return p, p.Retryable
}

// statusError carries the response that produced an unexpected status, kept
// around (its body already drained and closed) so the retry loop can still
// read a Retry-After header off it via classify.DelayForResponse.
type statusError struct {
	status int
	resp   *http.Response
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status: %d", e.status) }

// attemptFetch performs one GET attempt, streaming the body to path+".tmp"
// through the bandwidth throttle, then atomically renaming into place. It
// returns the number of bytes written.
func (e *Engine) attemptFetch(ctx context.Context, u string, path string) (int64, error) {
	handle, err := e.opts.Pool.Acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer handle.Release()

	reqCtx, cancel := context.WithTimeout(ctx, SegmentTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}
	if e.opts.Provider != nil {
		headers.Apply(req, e.opts.Provider.HeadersFor(req.URL))
	} else {
		headers.Apply(req, headers.DefaultHeaders())
	}

	resp, err := handle.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, &statusError{status: resp.StatusCode, resp: resp}
	}

	// atomicfile.WriteStream writes to path+".tmp", flushes, and renames
	// into path — exactly the C2 contract steps 3-4 of §4.11.
	n, err := atomicfile.WriteStream(path, &throttledReader{r: resp.Body, t: e.throttle})
	if err != nil {
		return n, err
	}
	return n, nil
}

type throttledReader struct {
	r io.Reader
	t *throttle.Throttle
}

func (tr *throttledReader) Read(p []byte) (int, error) {
	n, err := tr.r.Read(p)
	if n > 0 {
		tr.t.Throttle(int64(n))
	}
	return n, err
}

// finalizeSegment runs steps 5-7 of §4.11: decrypt if needed, flip the bit,
// persist state, enqueue into the merge queue, and report progress.
func (e *Engine) finalizeSegment(index int, path string, pl *playlist.Playlist) error {
	if pl.Encryption != nil {
		ciphertext, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading segment for decryption: %w", err)
		}
		iv := pl.Encryption.IV
		if iv == nil {
			iv = crypto.DeriveIV(uint64(index))
		}
		plaintext, err := crypto.Decrypt(ciphertext, e.opts.Key, iv, e.opts.FallbackPolicy)
		if err != nil {
			return fmt.Errorf("decrypting segment %d: %w", index, err)
		}
		if err := atomicfile.WriteBytes(path, plaintext); err != nil {
			return fmt.Errorf("writing decrypted segment: %w", err)
		}
		if desc := sniff.Describe(plaintext); desc == "" {
			telemetry.Debug("segment %d: decrypted payload did not match a known file type", index)
		}
	}

	e.mu.Lock()
	e.bitfield.Set(index)
	err := e.bitfield.Save(state.Path(e.opts.Workdir))
	e.mu.Unlock()
	if err != nil {
		return fmt.Errorf("persisting bitfield: %w", err)
	}

	e.queue.Add(index, path)

	info, statErr := os.Stat(path)
	if statErr == nil {
		e.mu.Lock()
		e.bytesDone += info.Size()
		bytesDone := e.bytesDone
		e.mu.Unlock()
		if e.opts.Progress != nil {
			e.opts.Progress(e.queue.Len(), e.bitfield.SegmentCount(), bytesDone)
		}
	}

	return nil
}
