package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hmrnsp/vid2mp3/internal/convert"
	"github.com/hmrnsp/vid2mp3/internal/domain"
	"github.com/hmrnsp/vid2mp3/internal/runner"
)

// ErrJobAlreadyRunning is returned when submitting a second source
// while a job is still in flight. One job at a time; no queue.
var ErrJobAlreadyRunning = errors.New("a conversion is already running")

// ValidationError rejects a submission before any process is spawned.
type ValidationError struct {
	Kind   domain.ErrorKind
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ThumbnailExtractor produces the preview frame for a job.
type ThumbnailExtractor interface {
	Extract(ctx context.Context, sourcePath, jobID string) (string, runner.Result, error)
}

// AudioConverter produces the MP3 output for a job.
type AudioConverter interface {
	Convert(ctx context.Context, sourcePath, outputPath string) (runner.Result, error)
}

// Coordinator owns the single allowed conversion job: it validates
// submissions, sequences thumbnail extraction (best-effort) and audio
// conversion (required), and is the only place job state mutates.
type Coordinator struct {
	mu     sync.RWMutex
	job    domain.Job
	cancel context.CancelFunc

	thumbs ThumbnailExtractor
	audio  AudioConverter
	events *EventBus
	log    *slog.Logger

	onTerminal func(domain.Job)
	onEvent    func(Event)
	newID      func() string
	stat       func(string) (os.FileInfo, error)
	open       func(string) (*os.File, error)
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithTerminalHook registers a callback invoked with a snapshot of
// every job that reaches a terminal state. Used for history recording;
// the hook runs on the job goroutine and must not block long.
func WithTerminalHook(hook func(domain.Job)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onTerminal = hook
	}
}

// WithEventHook registers a callback invoked with every published
// event, after it has been sequenced. Used by the GUI layer to push
// events to the frontend in addition to the pollable bus.
func WithEventHook(hook func(Event)) CoordinatorOption {
	return func(c *Coordinator) {
		c.onEvent = hook
	}
}

// WithIDGenerator overrides job ID generation.
func WithIDGenerator(gen func() string) CoordinatorOption {
	return func(c *Coordinator) {
		c.newID = gen
	}
}

// NewCoordinator creates an idle coordinator.
func NewCoordinator(thumbs ThumbnailExtractor, audio AudioConverter, events *EventBus, log *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		job:    domain.Job{State: domain.JobStateIdle},
		thumbs: thumbs,
		audio:  audio,
		events: events,
		log:    log,
		newID:  uuid.NewString,
		stat:   os.Stat,
		open:   os.Open,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	return c
}

// Submit validates the source, derives the output path, and starts the
// job pipeline on its own goroutine. It returns as soon as the job is
// accepted; progress is observed via Snapshot and the event bus.
func (c *Coordinator) Submit(sourcePath string) (domain.Job, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return domain.Job{}, &ValidationError{
			Kind:   domain.ErrorKindValidation,
			Reason: "source video path is required",
		}
	}

	if !convert.IsSupportedSource(sourcePath) {
		return domain.Job{}, &ValidationError{
			Kind:   domain.ErrorKindValidation,
			Reason: fmt.Sprintf("unsupported video format %q (supported: %s)", sourcePath, strings.Join(convert.SupportedExtensions(), ", ")),
			Err:    convert.ErrUnsupportedFormat,
		}
	}

	info, err := c.stat(sourcePath)
	if err != nil {
		return domain.Job{}, &ValidationError{
			Kind:   domain.ErrorKindValidation,
			Reason: fmt.Sprintf("cannot access source video: %s", sourcePath),
			Err:    err,
		}
	}
	if info.IsDir() {
		return domain.Job{}, &ValidationError{
			Kind:   domain.ErrorKindValidation,
			Reason: fmt.Sprintf("source is a directory, not a video file: %s", sourcePath),
		}
	}
	f, err := c.open(sourcePath)
	if err != nil {
		return domain.Job{}, &ValidationError{
			Kind:   domain.ErrorKindValidation,
			Reason: fmt.Sprintf("source video is not readable: %s", sourcePath),
			Err:    err,
		}
	}
	_ = f.Close()

	outputPath, err := convert.OutputPathFor(sourcePath)
	if err != nil {
		kind := domain.ErrorKindValidation
		if errors.Is(err, convert.ErrOutputCollides) {
			kind = domain.ErrorKindNamingConflict
		}
		return domain.Job{}, &ValidationError{
			Kind:   kind,
			Reason: fmt.Sprintf("cannot derive output path for %s: %v", sourcePath, err),
			Err:    err,
		}
	}

	c.mu.Lock()
	if c.job.ID != "" && !c.job.State.IsTerminal() {
		c.mu.Unlock()
		return domain.Job{}, ErrJobAlreadyRunning
	}

	job := domain.Job{
		ID:         c.newID(),
		SourcePath: sourcePath,
		OutputPath: outputPath,
		State:      domain.JobStateThumbnailPending,
		StartedAt:  time.Now().UTC(),
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.job = job
	c.cancel = cancel
	c.mu.Unlock()

	c.publishState(job.ID, domain.JobStateThumbnailPending, "Job accepted")
	go c.run(ctx, job)
	return job, nil
}

// Cancel stops the in-flight job, if any. Idempotent: cancelling with
// no active job is a no-op.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	cancel := c.cancel
	job := c.job
	c.mu.Unlock()

	if cancel == nil || job.ID == "" || job.State.IsTerminal() {
		return
	}

	cancel()
	c.publish(Event{
		JobID:   job.ID,
		Type:    EventTypeLog,
		Message: "Cancellation requested",
	})
}

// Snapshot returns an atomically consistent copy of the current job.
func (c *Coordinator) Snapshot() domain.Job {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.job
}

// Events returns all events with sequence greater than sinceSeq.
func (c *Coordinator) Events(sinceSeq int64) []Event {
	return c.events.Since(sinceSeq)
}

// run executes the two-step pipeline for one accepted job.
func (c *Coordinator) run(ctx context.Context, job domain.Job) {
	thumbPath, thumbResult, thumbErr := c.thumbs.Extract(ctx, job.SourcePath, job.ID)
	if ctx.Err() != nil {
		c.failJob(job.ID, domain.ErrorKindCancelled, "cancelled by user", runner.Result{Outcome: runner.OutcomeCancelled})
		return
	}

	if thumbErr != nil {
		// Non-fatal: the preview degrades, the MP3 is still produced.
		c.log.Warn("thumbnail extraction failed",
			"job", job.ID,
			"source", job.SourcePath,
			"error", thumbErr)
		c.transition(job.ID, domain.JobStateThumbnailFailed)
		c.publish(Event{
			JobID:    job.ID,
			Type:     EventTypeLog,
			State:    domain.JobStateThumbnailFailed,
			Message:  "Thumbnail extraction failed; continuing without preview",
			Command:  "ffmpeg",
			ExitCode: thumbResult.ExitCode,
			Stderr:   thumbResult.Stderr,
		})
	} else {
		c.setThumbnail(job.ID, thumbPath)
		c.transition(job.ID, domain.JobStateThumbnailReady)
		c.publish(Event{
			JobID:         job.ID,
			Type:          EventTypeThumbnail,
			State:         domain.JobStateThumbnailReady,
			Message:       "Preview ready",
			ThumbnailPath: thumbPath,
		})
	}

	c.transition(job.ID, domain.JobStateConverting)
	c.publishState(job.ID, domain.JobStateConverting, "Converting audio to MP3")

	convResult, convErr := c.audio.Convert(ctx, job.SourcePath, job.OutputPath)
	if convErr != nil {
		kind, detail := classifyFailure(convResult, convErr)
		c.failJob(job.ID, kind, detail, convResult)
		return
	}

	c.completeJob(job.ID)
}

// transition applies a validated state change to the current job.
// Stale updates for a job that is no longer current are dropped.
func (c *Coordinator) transition(jobID string, state domain.JobState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.job.ID != jobID {
		return
	}
	if !isValidTransition(c.job.State, state) {
		c.log.Error("invalid job state transition",
			"job", jobID,
			"from", c.job.State,
			"to", state)
		return
	}
	c.job.State = state
}

// setThumbnail records the extracted preview path on the current job.
func (c *Coordinator) setThumbnail(jobID, thumbPath string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job.ID == jobID {
		c.job.ThumbnailPath = thumbPath
	}
}

// completeJob moves the current job to its successful terminal state.
func (c *Coordinator) completeJob(jobID string) {
	c.mu.Lock()
	if c.job.ID != jobID {
		c.mu.Unlock()
		return
	}
	c.job.State = domain.JobStateCompleted
	c.job.FinishedAt = time.Now().UTC()
	c.cancel = nil
	job := c.job
	c.mu.Unlock()

	c.publish(Event{
		JobID:      jobID,
		Type:       EventTypeResult,
		State:      domain.JobStateCompleted,
		Message:    "Conversion completed",
		OutputPath: job.OutputPath,
	})
	c.notifyTerminal(job)
}

// failJob moves the current job to its failed terminal state with a
// classified reason.
func (c *Coordinator) failJob(jobID string, kind domain.ErrorKind, detail string, result runner.Result) {
	c.mu.Lock()
	if c.job.ID != jobID {
		c.mu.Unlock()
		return
	}
	c.job.State = domain.JobStateFailed
	c.job.ErrorKind = kind
	c.job.ErrorDetail = detail
	c.job.FinishedAt = time.Now().UTC()
	c.cancel = nil
	job := c.job
	c.mu.Unlock()

	c.publish(Event{
		JobID:     jobID,
		Type:      EventTypeError,
		State:     domain.JobStateFailed,
		Message:   kind.UserMessage(),
		ErrorKind: kind,
		Command:   "ffmpeg",
		ExitCode:  result.ExitCode,
		Stderr:    result.Stderr,
	})
	c.notifyTerminal(job)
}

// notifyTerminal invokes the terminal hook outside the lock.
func (c *Coordinator) notifyTerminal(job domain.Job) {
	if c.onTerminal != nil {
		c.onTerminal(job)
	}
}

// publishState sends a normalized state-change event.
func (c *Coordinator) publishState(jobID string, state domain.JobState, message string) {
	c.publish(Event{
		JobID:   jobID,
		Type:    EventTypeState,
		State:   state,
		Message: message,
	})
}

// publish stores the event and forwards it to the push hook.
func (c *Coordinator) publish(event Event) {
	published := c.events.Publish(event)
	if c.onEvent != nil {
		c.onEvent(published)
	}
}

// classifyFailure maps a runner outcome to the job error taxonomy.
// Captured stderr is preserved verbatim as the detail for tool exits.
func classifyFailure(result runner.Result, err error) (domain.ErrorKind, string) {
	if errors.Is(err, convert.ErrOutputCollides) {
		return domain.ErrorKindNamingConflict, err.Error()
	}

	switch result.Outcome {
	case runner.OutcomeCancelled:
		return domain.ErrorKindCancelled, "cancelled by user"
	case runner.OutcomeLaunchFailed:
		return domain.ErrorKindToolNotFound, "ffmpeg was not found on PATH"
	case runner.OutcomeExitError:
		detail := result.Stderr
		if strings.TrimSpace(detail) == "" {
			detail = err.Error()
		}
		return domain.ErrorKindProcessExit, detail
	default:
		return domain.ErrorKindIO, err.Error()
	}
}

// isValidTransition enforces the allowed job state machine edges.
func isValidTransition(from, to domain.JobState) bool {
	switch from {
	case domain.JobStateIdle:
		return to == domain.JobStateThumbnailPending
	case domain.JobStateThumbnailPending:
		return to == domain.JobStateThumbnailReady || to == domain.JobStateThumbnailFailed || to == domain.JobStateFailed
	case domain.JobStateThumbnailReady, domain.JobStateThumbnailFailed:
		return to == domain.JobStateConverting || to == domain.JobStateFailed
	case domain.JobStateConverting:
		return to == domain.JobStateCompleted || to == domain.JobStateFailed
	case domain.JobStateCompleted, domain.JobStateFailed:
		return to == domain.JobStateThumbnailPending
	default:
		return false
	}
}
