package muxer

import (
	"fmt"
	"os/exec"
)

// FFmpeg invokes a local ffmpeg binary to concatenate the manifest's
// listed segments into outPath, using the stream-copy concat demuxer so
// no re-encoding happens — the actual muxing step the spec explicitly
// keeps out of the core's scope.
type FFmpeg struct {
	BinaryPath string // defaults to "ffmpeg" on PATH when empty
}

// Concatenate implements Muxer.
func (f FFmpeg) Concatenate(manifestPath, outPath string) error {
	bin := f.BinaryPath
	if bin == "" {
		bin = "ffmpeg"
	}
	cmd := exec.Command(bin, "-y", "-f", "concat", "-safe", "0", "-i", manifestPath, "-c", "copy", outPath)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, string(out))
	}
	return nil
}
