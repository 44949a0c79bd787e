// Package progress renders a DownloadTask's progress to the terminal,
// grounded on the teacher's own use of charmbracelet/bubbles' progress
// component and lipgloss styling (internal/tui/styles.go and
// internal/tui/view.go used the same library family for its full-screen
// TUI). This is deliberately not a full Bubble Tea program — the
// Controller already drives task state synchronously through a plain
// callback, so this package only needs a one-line renderer, not a
// Model/Update/View loop — but the rendering primitives are the same ones
// the teacher's TUI used.
package progress

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/tsegment/hlsdl/internal/estimator"
	"github.com/tsegment/hlsdl/internal/task"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// Renderer prints a single-line progress update per task transition.
type Renderer struct {
	bar       progress.Model
	estimator *estimator.Estimator
	lastBytes int64
	lastAt    time.Time
}

// New builds a Renderer, choosing a gradient bar when the terminal
// supports color and a plain one otherwise.
func New() *Renderer {
	opts := []progress.Option{progress.WithoutPercentage()}
	if termenv.ColorProfile() == termenv.Ascii {
		opts = []progress.Option{progress.WithSolidFill("#FFFFFF"), progress.WithoutPercentage()}
	} else {
		opts = []progress.Option{progress.WithDefaultGradient(), progress.WithoutPercentage()}
	}
	return &Renderer{bar: progress.New(opts...), estimator: estimator.New(), lastAt: time.Now()}
}

// Update renders one progress line for t's current state. Intended to be
// passed directly as a task.ProgressCallback.
func (r *Renderer) Update(t *task.DownloadTask) {
	now := time.Now()
	if elapsedMS := now.Sub(r.lastAt).Milliseconds(); elapsedMS > 0 && t.BytesDone > r.lastBytes {
		r.estimator.AddSample(t.BytesDone-r.lastBytes, elapsedMS)
	}
	r.lastBytes = t.BytesDone
	r.lastAt = now

	switch t.Status {
	case task.Failed:
		fmt.Fprintf(os.Stderr, "\r%s %s: %s\n", errStyle.Render("✗"), t.DisplayName, t.ErrorMessage)
		return
	case task.Completed:
		fmt.Printf("\r%s %s %s\n", labelStyle.Render(t.DisplayName), r.bar.ViewAs(1.0), "done")
		return
	}

	var remaining int64
	if t.BytesTotalEstimate != nil {
		remaining = *t.BytesTotalEstimate - t.BytesDone
	}
	eta := r.estimator.ETA(remaining)

	fmt.Printf("\r%s %s %s  %s  eta %s  ", labelStyle.Render(t.DisplayName), t.Status, r.bar.ViewAs(t.Progress), formatBytes(t.BytesDone), eta)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%dB", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
