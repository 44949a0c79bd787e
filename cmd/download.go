package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	progressui "github.com/tsegment/hlsdl/cmd/progress"
	"github.com/tsegment/hlsdl/internal/config"
	"github.com/tsegment/hlsdl/internal/controller"
	"github.com/tsegment/hlsdl/internal/headers"
	"github.com/tsegment/hlsdl/internal/history"
	"github.com/tsegment/hlsdl/internal/httpclient"
	"github.com/tsegment/hlsdl/internal/muxer"
	"github.com/tsegment/hlsdl/internal/task"
	"github.com/tsegment/hlsdl/internal/telemetry"
)

var downloadCmd = &cobra.Command{
	Use:   "download [playlist-url]",
	Short: "download an HLS playlist URL to a single MP4 file",
	Args:  cobra.ExactArgs(1),
	RunE:  runDownload,
}

func init() {
	downloadCmd.Flags().StringP("output", "o", "", "output MP4 path (defaults to a name derived from the URL)")
	downloadCmd.Flags().String("referer", "", "Referer header to send with every request")
	downloadCmd.Flags().String("ffmpeg", "", "path to the ffmpeg binary (defaults to PATH lookup)")
	downloadCmd.Flags().Bool("copy-path", false, "copy the output file's path to the clipboard on completion")
}

func runDownload(cmd *cobra.Command, args []string) error {
	playlistURL := args[0]
	outPath, _ := cmd.Flags().GetString("output")
	referer, _ := cmd.Flags().GetString("referer")
	ffmpegPath, _ := cmd.Flags().GetString("ffmpeg")
	copyPath, _ := cmd.Flags().GetBool("copy-path")

	if settings == nil {
		settings = config.DefaultSettings()
	}
	runtimeOpts := settings.ToRuntimeOptions()

	if outPath == "" {
		outPath = deriveOutputName(playlistURL)
	}

	pool, err := httpclient.New(httpclient.Options{
		MaxSize:     runtimeOpts.MaxConnectionsPerHost,
		ProxyURL:    runtimeOpts.ProxyURL,
		DialTimeout: runtimeOpts.DialTimeout,
	})
	if err != nil {
		return fmt.Errorf("building HTTP client pool: %w", err)
	}
	defer pool.CloseAll()

	telemetry.Configure(appDirOrTemp())

	provider := buildProvider(referer, runtimeOpts.UserAgent)

	ctrl := controller.New(controller.Options{
		Pool:           pool,
		Provider:       provider,
		Muxer:          muxer.FFmpeg{BinaryPath: ffmpegPath},
		MaxBPS:         runtimeOpts.MaxBandwidthBPS,
		FallbackPolicy: runtimeOpts.FallbackPolicy,
		TempRoot:       runtimeOpts.TempRoot,
	})

	tk := task.New(task.NewID(), playlistURL, outPath, filepath.Base(outPath), "")

	renderer := progressui.New()
	start := time.Now()

	if err := ctrl.Run(context.Background(), tk, renderer.Update); err != nil {
		return fmt.Errorf("download failed: %w", err)
	}

	recordHistory(tk, time.Since(start))

	if copyPath {
		if err := clipboard.WriteAll(outPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: could not copy path to clipboard: %v\n", err)
		}
	}

	fmt.Printf("saved to %s\n", outPath)
	return nil
}

func recordHistory(t *task.DownloadTask, _ time.Duration) {
	dbPath := filepath.Join(appDirOrTemp(), "history.db")
	store, err := history.Open(dbPath)
	if err != nil {
		telemetry.Debug("history: could not open %s: %v", dbPath, err)
		return
	}
	defer store.Close()

	if err := store.Record(history.Entry{
		TaskID:      t.TaskID,
		PlaylistURL: t.PlaylistURL,
		OutputPath:  t.OutputPath,
		Bytes:       t.BytesDone,
		FinishedAt:  time.Now(),
	}); err != nil {
		telemetry.Debug("history: could not record %s: %v", t.TaskID, err)
	}
}

// buildProvider assembles a headers.Provider from the --referer flag and the
// user's configured User-Agent, if either is set; nil lets the engine and
// controller fall back to headers.DefaultHeaders.
func buildProvider(referer, userAgent string) headers.Provider {
	if referer == "" && userAgent == "" {
		return nil
	}
	h := map[string]string{}
	if referer != "" {
		h["Referer"] = referer
	}
	if userAgent != "" {
		h["User-Agent"] = userAgent
	}
	return headers.StaticProvider{Headers: h}
}

func appDirOrTemp() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	dir := filepath.Join(home, ".hlsdl")
	_ = os.MkdirAll(dir, 0o755)
	return dir
}

// deriveOutputName builds a plausible output filename from the playlist
// URL's own path when the caller doesn't supply one explicitly.
func deriveOutputName(playlistURL string) string {
	trimmed := strings.TrimSuffix(playlistURL, "/")
	base := trimmed
	if idx := strings.LastIndex(trimmed, "/"); idx != -1 {
		base = trimmed[idx+1:]
	}
	base = strings.TrimSuffix(base, ".m3u8")
	if base == "" {
		base = "output"
	}
	return base + ".mp4"
}
