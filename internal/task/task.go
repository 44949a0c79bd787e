// Package task defines DownloadTask, the job unit the Controller mutates
// and the owning application observes. The field shape is grounded on the
// teacher's DownloadStatus/DownloadState structs
// (internal/engine/types/models.go) — status string, progress fraction,
// speed, ETA, error message — narrowed to the fields the spec's data model
// (§3) actually names, and with an explicit Status enum instead of a bare
// string so a misspelled status is a compile error, not a typo. The enum
// does not restrict which transitions are made.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Status is the DownloadTask lifecycle state.
type Status int

const (
	Queued Status = iota
	FetchingPlaylist
	Downloading
	Muxing
	Completed
	Failed
	Paused
	Cancelled
)

func (s Status) String() string {
	switch s {
	case Queued:
		return "Queued"
	case FetchingPlaylist:
		return "FetchingPlaylist"
	case Downloading:
		return "Downloading"
	case Muxing:
		return "Muxing"
	case Completed:
		return "Completed"
	case Failed:
		return "Failed"
	case Paused:
		return "Paused"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether Status is one a DownloadTask never leaves.
func (s Status) IsTerminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// DownloadTask is the job unit for one HLS-to-MP4 download.
type DownloadTask struct {
	TaskID      string
	PlaylistURL string
	OutputPath  string
	DisplayName string
	QualityTag  string

	Status              Status
	Progress            float64 // [0.0, 1.0]
	BytesDone           int64
	BytesTotalEstimate  *int64
	SpeedBPS            float64
	ETASeconds          *int64
	ErrorMessage        string

	CreatedAt time.Time
}

// NewID generates a fresh random task identifier.
func NewID() string {
	return uuid.NewString()
}

// New constructs a freshly Queued DownloadTask.
func New(taskID, playlistURL, outputPath, displayName, qualityTag string) *DownloadTask {
	return &DownloadTask{
		TaskID:      taskID,
		PlaylistURL: playlistURL,
		OutputPath:  outputPath,
		DisplayName: displayName,
		QualityTag:  qualityTag,
		Status:      Queued,
		CreatedAt:   time.Now(),
	}
}

// ProgressCallback is invoked on every state mutation of a DownloadTask.
type ProgressCallback func(*DownloadTask)

// Snapshot returns a shallow copy safe to hand to a progress callback
// without the caller racing on later mutations of the original.
func (t *DownloadTask) Snapshot() *DownloadTask {
	cp := *t
	return &cp
}
