package httpclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPool_AcquireRelease(t *testing.T) {
	p, err := New(Options{MaxSize: 2})
	require.NoError(t, err)
	defer p.CloseAll()

	ctx := context.Background()
	h1, err := p.Acquire(ctx)
	require.NoError(t, err)
	h2, err := p.Acquire(ctx)
	require.NoError(t, err)

	ctx3, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx3)
	require.ErrorIs(t, err, context.DeadlineExceeded, "pool is at capacity, third acquire should block and time out")

	h1.Release()
	h3, err := p.Acquire(ctx)
	require.NoError(t, err)
	h2.Release()
	h3.Release()
}

func TestPool_ConcurrentUseRespectsCap(t *testing.T) {
	p, err := New(Options{MaxSize: 3})
	require.NoError(t, err)
	defer p.CloseAll()

	var active, maxSeen int32 // protected by mu
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := p.Acquire(context.Background())
			require.NoError(t, err)
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(5 * time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			h.Release()
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, maxSeen, int32(3))
}

func TestPool_UsableClientHitsRealServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, err := New(Options{MaxSize: 1})
	require.NoError(t, err)
	defer p.CloseAll()

	h, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer h.Release()

	resp, err := h.Client.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
}

func TestPool_InvalidProxyFallsBackInsteadOfErroring(t *testing.T) {
	_, err := New(Options{MaxSize: 1, ProxyURL: "://not-a-url"})
	require.NoError(t, err)
}
