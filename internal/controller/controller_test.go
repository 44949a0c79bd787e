package controller

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tsegment/hlsdl/internal/httpclient"
	"github.com/tsegment/hlsdl/internal/muxer"
	"github.com/tsegment/hlsdl/internal/task"
	"github.com/tsegment/hlsdl/internal/testutil"
)

func newTestPool(t *testing.T) *httpclient.Pool {
	t.Helper()
	pool, err := httpclient.New(httpclient.Options{MaxSize: 4})
	require.NoError(t, err)
	t.Cleanup(pool.CloseAll)
	return pool
}

func TestController_Run_DrivesPlainPlaylistToCompletion(t *testing.T) {
	srv := testutil.NewHLSServerT(t, testutil.WithSegmentCount(3))
	defer srv.Close()

	outDir := t.TempDir()
	outPath := outDir + "/out.mp4"

	var concatenated string
	fakeMuxer := muxer.Func(func(manifestPath, outPath2 string) error {
		data, err := os.ReadFile(manifestPath)
		require.NoError(t, err)
		concatenated = string(data)
		return os.WriteFile(outPath2, []byte("fake-mp4"), 0o644)
	})

	ctrl := New(Options{Pool: newTestPool(t), Muxer: fakeMuxer, TempRoot: t.TempDir()})

	tk := task.New("task-1", srv.PlaylistURL(), outPath, "demo", "")

	var transitions []task.Status
	err := ctrl.Run(context.Background(), tk, func(snap *task.DownloadTask) {
		transitions = append(transitions, snap.Status)
	})
	require.NoError(t, err)
	require.Equal(t, task.Completed, tk.Status)
	require.Contains(t, transitions, task.FetchingPlaylist)
	require.Contains(t, transitions, task.Downloading)
	require.Contains(t, transitions, task.Muxing)
	require.Contains(t, transitions, task.Completed)
	require.Contains(t, concatenated, "segment_000000.ts")
	require.Contains(t, concatenated, "segment_000002.ts")

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, "fake-mp4", string(data))
}

func TestController_Run_FailsWhenMuxerErrors(t *testing.T) {
	srv := testutil.NewHLSServerT(t, testutil.WithSegmentCount(1))
	defer srv.Close()

	failingMuxer := muxer.Func(func(manifestPath, outPath string) error {
		return os.ErrPermission
	})

	ctrl := New(Options{Pool: newTestPool(t), Muxer: failingMuxer, TempRoot: t.TempDir()})
	tk := task.New("task-2", srv.PlaylistURL(), t.TempDir()+"/out.mp4", "demo", "")

	err := ctrl.Run(context.Background(), tk, nil)
	require.Error(t, err)
	require.Equal(t, task.Failed, tk.Status)
}

func TestController_Run_NonRetryableSegmentFailurePropagates(t *testing.T) {
	srv := testutil.NewHLSServerT(t, testutil.WithSegmentCount(2), testutil.WithFailSegmentOnce(0, 403))
	defer srv.Close()

	ctrl := New(Options{Pool: newTestPool(t), Muxer: muxer.Func(func(string, string) error { return nil }), TempRoot: t.TempDir()})
	tk := task.New("task-3", srv.PlaylistURL(), t.TempDir()+"/out.mp4", "demo", "")

	err := ctrl.Run(context.Background(), tk, nil)
	require.Error(t, err)
	require.Equal(t, task.Failed, tk.Status)
}
