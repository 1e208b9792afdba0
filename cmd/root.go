package cmd

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hmrnsp/vid2mp3/internal/bootstrap"
)

var (
	verbose        bool
	frontendAssets fs.FS
)

// OutputWriter allows capturing command output in tests
type OutputWriter interface {
	Write(p []byte) (n int, err error)
}

// DefaultOutput is the writer used in production
var DefaultOutput OutputWriter = os.Stdout

var rootCmd = &cobra.Command{
	Use:   "vid2mp3",
	Short: "Drag-and-drop video to MP3 converter",
	Long: `vid2mp3 converts video files to MP3 audio using ffmpeg.

Run without arguments to open the desktop window: drop a video file
onto it and the MP3 is written next to the source. A preview frame is
extracted while the conversion runs.

Headless usage:
  vid2mp3 convert recording.mp4
  vid2mp3 history --limit 10
  vid2mp3 doctor`,
	RunE: runGUI,
}

// Execute runs the CLI with the embedded frontend assets.
func Execute(assets fs.FS) {
	frontendAssets = assets
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

// newLogger builds the process-wide structured logger.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runGUI(cmd *cobra.Command, args []string) error {
	app, err := bootstrap.NewWithAssets(frontendAssets, newLogger())
	if err != nil {
		return err
	}
	return app.Run()
}
