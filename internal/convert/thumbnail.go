package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hmrnsp/vid2mp3/internal/runner"
)

// thumbnailTimestamp is where the preview frame is taken from. Sources
// shorter than this are left to ffmpeg's own behavior; extraction is
// best-effort and its failure never fails the job.
const thumbnailTimestamp = "00:00:01"

// ThumbnailExtractor pulls a single preview frame from a source video
// into a per-job temp file.
type ThumbnailExtractor struct {
	ffmpegPath string
	runner     runner.Runner
	tempDir    string

	mkdirAll func(string, os.FileMode) error
	stat     func(string) (os.FileInfo, error)
}

// ThumbnailOption configures a ThumbnailExtractor.
type ThumbnailOption func(*ThumbnailExtractor)

// WithThumbnailFFmpegPath sets a custom ffmpeg executable path.
func WithThumbnailFFmpegPath(path string) ThumbnailOption {
	return func(e *ThumbnailExtractor) {
		e.ffmpegPath = path
	}
}

// WithThumbnailTempDir overrides the temp directory thumbnails land in.
func WithThumbnailTempDir(dir string) ThumbnailOption {
	return func(e *ThumbnailExtractor) {
		e.tempDir = dir
	}
}

// NewThumbnailExtractor creates an extractor writing to the shared
// vid2mp3 temp directory.
func NewThumbnailExtractor(r runner.Runner, opts ...ThumbnailOption) *ThumbnailExtractor {
	e := &ThumbnailExtractor{
		ffmpegPath: "ffmpeg",
		runner:     r,
		tempDir:    filepath.Join(os.TempDir(), "vid2mp3"),
		mkdirAll:   os.MkdirAll,
		stat:       os.Stat,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TempDir returns the directory where preview frames are staged.
func (e *ThumbnailExtractor) TempDir() string {
	return e.tempDir
}

// ThumbnailPathFor returns where the preview frame for the given job
// will be written. Unique per job so rapid repeated conversions of
// different files never collide.
func (e *ThumbnailExtractor) ThumbnailPathFor(jobID string) string {
	return filepath.Join(e.tempDir, "thumb-"+jobID+".jpg")
}

// Extract grabs one frame at the fixed timestamp and writes it to the
// job's thumbnail path, returning that path on success.
func (e *ThumbnailExtractor) Extract(ctx context.Context, sourcePath, jobID string) (string, runner.Result, error) {
	if err := e.mkdirAll(e.tempDir, 0o755); err != nil {
		return "", runner.Result{Outcome: runner.OutcomeIOError}, fmt.Errorf("create thumbnail temp dir: %w", err)
	}

	thumbPath := e.ThumbnailPathFor(jobID)
	result, err := e.runner.Run(ctx, runner.Spec{
		Name:       e.ffmpegPath,
		Args:       buildThumbnailArgs(sourcePath, thumbPath),
		HideWindow: true,
	})
	if err != nil {
		return "", result, fmt.Errorf("extract thumbnail: %w", err)
	}

	if _, err := e.stat(thumbPath); err != nil {
		result.Outcome = runner.OutcomeIOError
		return "", result, fmt.Errorf("ffmpeg completed but thumbnail is missing: %w", err)
	}
	return thumbPath, result, nil
}

// buildThumbnailArgs builds ffmpeg CLI args for one JPEG frame at the
// fixed seek position.
func buildThumbnailArgs(sourcePath, thumbPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-ss", thumbnailTimestamp,
		"-i", sourcePath,
		"-vframes", "1",
		"-q:v", "2",
		"-y",
		thumbPath,
	}
}
