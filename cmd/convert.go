package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/hmrnsp/vid2mp3/internal/config"
	"github.com/hmrnsp/vid2mp3/internal/convert"
	"github.com/hmrnsp/vid2mp3/internal/domain"
	"github.com/hmrnsp/vid2mp3/internal/history"
	"github.com/hmrnsp/vid2mp3/internal/jobs"
	"github.com/hmrnsp/vid2mp3/internal/runner"
)

var (
	convertYes           bool
	convertKeepThumbnail bool
)

// Prompter interface for interactive prompts (allows mocking in tests)
type Prompter interface {
	Confirm(message string, defaultValue bool) (bool, error)
}

// SurveyPrompter implements Prompter using the survey library
type SurveyPrompter struct{}

func (p *SurveyPrompter) Confirm(message string, defaultValue bool) (bool, error) {
	result := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	if err := survey.AskOne(prompt, &result); err != nil {
		return false, err
	}
	return result, nil
}

// DefaultPrompter is the prompter used in production
var DefaultPrompter Prompter = &SurveyPrompter{}

var convertCmd = &cobra.Command{
	Use:   "convert <video>",
	Short: "Convert a video file to MP3 without opening the window",
	Long: `Convert a single video file to MP3.

The MP3 is written next to the source file with the same name. An
existing MP3 at that path prompts for confirmation unless --yes is set.

Example:
  vid2mp3 convert recording.mp4
  vid2mp3 convert --yes --keep-thumbnail lecture.mkv`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().BoolVarP(&convertYes, "yes", "y", false, "overwrite an existing MP3 without asking")
	convertCmd.Flags().BoolVar(&convertKeepThumbnail, "keep-thumbnail", false, "keep the extracted preview frame in the temp directory")
}

func runConvert(cmd *cobra.Command, args []string) error {
	sourcePath := strings.TrimSpace(args[0])

	outputPath, err := convert.OutputPathFor(sourcePath)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(outputPath); statErr == nil && !convertYes {
		overwrite, promptErr := DefaultPrompter.Confirm(fmt.Sprintf("Overwrite %s?", outputPath), false)
		if promptErr != nil {
			return promptErr
		}
		if !overwrite {
			fmt.Fprintln(DefaultOutput, "Aborted.")
			return nil
		}
	}

	log := newLogger()

	// History recording is best-effort in headless mode.
	var record func(domain.Job)
	hist, histErr := history.Open(filepath.Join(config.AppDir(), "history.db"))
	if histErr != nil {
		log.Warn("conversion history unavailable", "error", histErr)
	} else {
		defer hist.Close()
		record = func(job domain.Job) {
			if err := hist.Append(job); err != nil {
				log.Warn("record conversion history", "job", job.ID, "error", err)
			}
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	run := runner.NewExecRunner()
	return RunConvertWithDependencies(
		ctx,
		convert.NewThumbnailExtractor(run),
		convert.NewAudioConverter(run),
		record,
		log,
		sourcePath,
		convertKeepThumbnail,
		DefaultOutput,
	)
}

// RunConvertWithDependencies runs one conversion to completion with injected dependencies (for testing)
func RunConvertWithDependencies(
	ctx context.Context,
	thumbs jobs.ThumbnailExtractor,
	audio jobs.AudioConverter,
	record func(domain.Job),
	log *slog.Logger,
	sourcePath string,
	keepThumbnail bool,
	out OutputWriter,
) error {
	done := make(chan domain.Job, 1)
	coordinator := jobs.NewCoordinator(
		thumbs,
		audio,
		jobs.NewEventBus(200),
		log,
		jobs.WithEventHook(func(event jobs.Event) {
			printEvent(out, event)
		}),
		jobs.WithTerminalHook(func(job domain.Job) {
			if record != nil {
				record(job)
			}
			done <- job
		}),
	)

	if _, err := coordinator.Submit(sourcePath); err != nil {
		return err
	}

	var job domain.Job
	select {
	case job = <-done:
	case <-ctx.Done():
		coordinator.Cancel()
		job = <-done
	}

	if !keepThumbnail && job.ThumbnailPath != "" {
		if err := os.Remove(job.ThumbnailPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("remove thumbnail", "path", job.ThumbnailPath, "error", err)
		}
	}

	if job.State == domain.JobStateFailed {
		if job.ErrorKind == domain.ErrorKindCancelled {
			return errors.New("conversion cancelled")
		}
		return fmt.Errorf("%s: %s", job.ErrorKind.UserMessage(), firstLine(job.ErrorDetail))
	}

	fmt.Fprintf(out, "Saved %s\n", job.OutputPath)
	return nil
}

// printEvent renders one job event as a progress line.
func printEvent(out OutputWriter, event jobs.Event) {
	switch event.Type {
	case jobs.EventTypeState:
		fmt.Fprintf(out, "[%s] %s\n", event.State, event.Message)
	case jobs.EventTypeThumbnail:
		fmt.Fprintf(out, "[%s] preview frame: %s\n", event.State, event.ThumbnailPath)
	case jobs.EventTypeLog:
		fmt.Fprintf(out, "%s\n", event.Message)
	case jobs.EventTypeError:
		fmt.Fprintf(out, "error: %s\n", event.Message)
	}
}

// firstLine trims captured tool output down to a single line for the
// terminal; full stderr stays in the job record.
func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
