package convert

import (
	"context"
	"fmt"
	"os"

	"github.com/hmrnsp/vid2mp3/internal/runner"
)

// DefaultBitrateKbps is the only supported MP3 bitrate in this
// version; parameterizing bitrate and format is deferred.
const DefaultBitrateKbps = 192

// AudioConverter transcodes a source video's audio track to a
// fixed-bitrate MP3 beside the source file. Output is written to a
// .part sibling and renamed into place on success, so cancellation or
// failure never leaves a partial file at the final path.
type AudioConverter struct {
	ffmpegPath  string
	runner      runner.Runner
	bitrateKbps int

	rename func(oldpath, newpath string) error
	remove func(string) error
}

// AudioOption configures an AudioConverter.
type AudioOption func(*AudioConverter)

// WithAudioFFmpegPath sets a custom ffmpeg executable path.
func WithAudioFFmpegPath(path string) AudioOption {
	return func(c *AudioConverter) {
		c.ffmpegPath = path
	}
}

// NewAudioConverter creates a converter at the default bitrate.
func NewAudioConverter(r runner.Runner, opts ...AudioOption) *AudioConverter {
	c := &AudioConverter{
		ffmpegPath:  "ffmpeg",
		runner:      r,
		bitrateKbps: DefaultBitrateKbps,
		rename:      os.Rename,
		remove:      os.Remove,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Convert strips the video stream and encodes the audio track to MP3
// at the fixed bitrate. It fails before spawning any process when the
// output path would overwrite the source.
func (c *AudioConverter) Convert(ctx context.Context, sourcePath, outputPath string) (runner.Result, error) {
	if outputPath == sourcePath {
		return runner.Result{}, ErrOutputCollides
	}

	partPath := outputPath + ".part"
	result, err := c.runner.Run(ctx, runner.Spec{
		Name:       c.ffmpegPath,
		Args:       buildConvertArgs(sourcePath, partPath, c.bitrateKbps),
		HideWindow: true,
	})
	if err != nil {
		_ = c.remove(partPath)
		return result, fmt.Errorf("convert audio: %w", err)
	}

	if err := c.rename(partPath, outputPath); err != nil {
		_ = c.remove(partPath)
		result.Outcome = runner.OutcomeIOError
		return result, fmt.Errorf("finalize output file: %w", err)
	}
	return result, nil
}

// buildConvertArgs builds ffmpeg CLI args for an audio-only MP3
// transcode. The explicit -f is required because the intermediate
// .part path hides the real extension from ffmpeg.
func buildConvertArgs(sourcePath, partPath string, bitrateKbps int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", sourcePath,
		"-vn",
		"-acodec", "libmp3lame",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		"-f", "mp3",
		"-y",
		partPath,
	}
}
