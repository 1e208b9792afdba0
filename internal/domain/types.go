package domain

import "time"

// JobState tracks each lifecycle stage of a single conversion job.
type JobState string

const (
	JobStateIdle             JobState = "idle"
	JobStateThumbnailPending JobState = "thumbnail_pending"
	JobStateThumbnailReady   JobState = "thumbnail_ready"
	JobStateThumbnailFailed  JobState = "thumbnail_failed"
	JobStateConverting       JobState = "converting"
	JobStateCompleted        JobState = "completed"
	JobStateFailed           JobState = "failed"
)

// IsTerminal reports whether no further automatic transition occurs.
func (s JobState) IsTerminal() bool {
	return s == JobStateCompleted || s == JobStateFailed
}

// Settings contains persisted UI conveniences. Conversion parameters
// (bitrate, thumbnail timestamp) are fixed and never stored.
type Settings struct {
	LastInputDir   string `json:"lastInputDir"`
	KeepThumbnails bool   `json:"keepThumbnails"`
}

// Job is the single conversion owned by the coordinator: one source
// video, its derived MP3 output, and an optional preview thumbnail.
type Job struct {
	ID            string    `json:"id"`
	SourcePath    string    `json:"sourcePath"`
	OutputPath    string    `json:"outputPath"`
	ThumbnailPath string    `json:"thumbnailPath,omitempty"`
	State         JobState  `json:"state"`
	ErrorKind     ErrorKind `json:"errorKind,omitempty"`
	ErrorDetail   string    `json:"errorDetail,omitempty"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}
