// Package muxer defines the Muxer contract the Controller hands off to
// once every segment is on disk in order. Muxing itself (invoking ffmpeg or
// equivalent) is explicitly out of scope for this module — the core only
// produces a concat manifest and calls the injected collaborator, following
// the same external-collaborator pattern the teacher uses for its TUI vs.
// local/remote DownloadService split (internal/core/interface.go): the core
// never embeds the thing it hands work off to, it only depends on an
// interface shape for it.
package muxer

// Muxer concatenates the segment files listed in manifestPath (an
// ffconcat-style "file '<path>'" list) into a single output file at
// outPath. Implementations are expected to shell out to ffmpeg or an
// equivalent; FFmpeg in this package is one such implementation.
type Muxer interface {
	Concatenate(manifestPath, outPath string) error
}

// Func adapts a plain function to the Muxer interface.
type Func func(manifestPath, outPath string) error

// Concatenate implements Muxer.
func (f Func) Concatenate(manifestPath, outPath string) error {
	return f(manifestPath, outPath)
}
