// Package telemetry provides the ambient debug-log sink used across the
// download engine. It deliberately stays a thin wrapper around a
// timestamped file writer rather than pulling in a structured logging
// library: nothing in this module needs levels, sampling, or structured
// fields beyond a human-readable trail for post-mortem debugging.
package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var (
	logFile *os.File
	once    sync.Once
	mu      sync.Mutex
)

// Configure points future Debug calls at <dir>/debug.log, creating dir if
// necessary. Only the first call has any effect, whether or not it managed
// to create the file, and it has none at all once Debug has already
// fallen back to ./debug.log; Configure is meant to run once at process
// startup.
func Configure(dir string) {
	once.Do(func() {
		if dir != "" {
			_ = os.MkdirAll(dir, 0o755)
		}
		path := "debug.log"
		if dir != "" {
			path = filepath.Join(dir, "debug.log")
		}
		f, err := os.Create(path)
		if err == nil {
			logFile = f
		}
	})
}

// Debug writes a timestamped line to the configured debug log. If
// Configure was never called, Debug lazily falls back to ./debug.log so
// that libraries and tests using this package don't need explicit setup.
func Debug(format string, args ...any) {
	once.Do(func() {
		logFile, _ = os.Create("debug.log")
	})
	mu.Lock()
	defer mu.Unlock()
	if logFile == nil {
		return
	}
	ts := time.Now().Format("2006-01-02 15:04:05.000")
	fmt.Fprintf(logFile, "[%s] %s\n", ts, fmt.Sprintf(format, args...))
	logFile.Sync()
}
