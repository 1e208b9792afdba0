package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hmrnsp/vid2mp3/internal/domain"
	"github.com/hmrnsp/vid2mp3/internal/runner"
)

// fakeExtractor records thumbnail calls and replays injected outcomes.
type fakeExtractor struct {
	mu      sync.Mutex
	calls   int
	extract func(ctx context.Context, sourcePath, jobID string) (string, runner.Result, error)
}

func (f *fakeExtractor) Extract(ctx context.Context, sourcePath, jobID string) (string, runner.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.extract == nil {
		return "/tmp/vid2mp3/thumb-" + jobID + ".jpg", runner.Result{Outcome: runner.OutcomeOK}, nil
	}
	return f.extract(ctx, sourcePath, jobID)
}

func (f *fakeExtractor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeConverter records conversion calls and replays injected outcomes.
type fakeConverter struct {
	mu      sync.Mutex
	calls   int
	convert func(ctx context.Context, sourcePath, outputPath string) (runner.Result, error)
}

func (f *fakeConverter) Convert(ctx context.Context, sourcePath, outputPath string) (runner.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.convert == nil {
		return runner.Result{Outcome: runner.OutcomeOK}, nil
	}
	return f.convert(ctx, sourcePath, outputPath)
}

func (f *fakeConverter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// newTestCoordinator builds a coordinator with quiet logging.
func newTestCoordinator(thumbs ThumbnailExtractor, audio AudioConverter, opts ...CoordinatorOption) *Coordinator {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewCoordinator(thumbs, audio, NewEventBus(100), log, opts...)
}

// mustSource creates a real source file for submission validation.
func mustSource(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

// waitForState polls until the job reaches the state or times out.
func waitForState(t *testing.T, c *Coordinator, want domain.JobState) domain.Job {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if job := c.Snapshot(); job.State == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %s, want %s", c.Snapshot().State, want)
	return domain.Job{}
}

// TestSubmitAcceptsAllSupportedExtensions checks path derivation for
// the full accepted input set.
func TestSubmitAcceptsAllSupportedExtensions(t *testing.T) {
	for _, ext := range []string{"mp4", "mkv", "avi", "mov", "webm", "flv"} {
		c := newTestCoordinator(&fakeExtractor{}, &fakeConverter{})
		source := mustSource(t, "clip."+ext)

		job, err := c.Submit(source)
		if err != nil {
			t.Fatalf("submit %s: %v", ext, err)
		}
		wantOutput := source[:len(source)-len(ext)-1] + ".mp3"
		if job.OutputPath != wantOutput {
			t.Fatalf("output = %q, want %q", job.OutputPath, wantOutput)
		}
		waitForState(t, c, domain.JobStateCompleted)
	}
}

// TestSubmitRejectsUnsupportedExtensionWithoutSpawning checks that
// validation failures never reach the process layer.
func TestSubmitRejectsUnsupportedExtensionWithoutSpawning(t *testing.T) {
	thumbs := &fakeExtractor{}
	audio := &fakeConverter{}
	c := newTestCoordinator(thumbs, audio)

	_, err := c.Submit(mustSource(t, "notes.txt"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if verr.Kind != domain.ErrorKindValidation {
		t.Fatalf("kind = %s, want validation", verr.Kind)
	}
	if thumbs.callCount() != 0 || audio.callCount() != 0 {
		t.Fatalf("process invocations = %d/%d, want 0/0", thumbs.callCount(), audio.callCount())
	}
}

// TestSubmitRejectsMissingSource checks existence validation.
func TestSubmitRejectsMissingSource(t *testing.T) {
	c := newTestCoordinator(&fakeExtractor{}, &fakeConverter{})

	_, err := c.Submit(filepath.Join(t.TempDir(), "missing.mp4"))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

// TestJobCompletesWithThumbnailAndOutput checks the happy path
// snapshot and event stream.
func TestJobCompletesWithThumbnailAndOutput(t *testing.T) {
	thumbs := &fakeExtractor{}
	audio := &fakeConverter{}
	c := newTestCoordinator(thumbs, audio)
	source := mustSource(t, "talk.mp4")

	if _, err := c.Submit(source); err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := waitForState(t, c, domain.JobStateCompleted)
	if job.ThumbnailPath == "" {
		t.Fatal("expected thumbnail path on completed job")
	}
	if job.OutputPath == "" || filepath.Ext(job.OutputPath) != ".mp3" {
		t.Fatalf("output path = %q", job.OutputPath)
	}
	if job.ErrorKind != "" || job.ErrorDetail != "" {
		t.Fatalf("unexpected error fields: %s %q", job.ErrorKind, job.ErrorDetail)
	}

	events := c.Events(0)
	assertEventTypeExists(t, events, EventTypeThumbnail)
	assertEventTypeExists(t, events, EventTypeResult)
}

// TestThumbnailFailureDoesNotFailJob checks the decoupled failure
// domains: preview degrades, conversion still completes.
func TestThumbnailFailureDoesNotFailJob(t *testing.T) {
	thumbs := &fakeExtractor{
		extract: func(ctx context.Context, sourcePath, jobID string) (string, runner.Result, error) {
			return "", runner.Result{Outcome: runner.OutcomeExitError, ExitCode: 1, Stderr: "too short"},
				&runner.ExitError{Code: 1, Stderr: "too short"}
		},
	}
	c := newTestCoordinator(thumbs, &fakeConverter{})

	if _, err := c.Submit(mustSource(t, "blip.webm")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := waitForState(t, c, domain.JobStateCompleted)
	if job.ThumbnailPath != "" {
		t.Fatalf("thumbnail path = %q, want empty", job.ThumbnailPath)
	}
	events := c.Events(0)
	assertStateEventExists(t, events, domain.JobStateThumbnailFailed)
}

// TestToolNotFoundFailsJobWithActionableKind checks the distinct
// "install FFmpeg" classification when every invocation fails launch.
func TestToolNotFoundFailsJobWithActionableKind(t *testing.T) {
	launchFail := runner.Result{Outcome: runner.OutcomeLaunchFailed, ExitCode: -1}
	thumbs := &fakeExtractor{
		extract: func(ctx context.Context, sourcePath, jobID string) (string, runner.Result, error) {
			return "", launchFail, runner.ErrLaunchFailed
		},
	}
	audio := &fakeConverter{
		convert: func(ctx context.Context, sourcePath, outputPath string) (runner.Result, error) {
			return launchFail, runner.ErrLaunchFailed
		},
	}
	c := newTestCoordinator(thumbs, audio)

	if _, err := c.Submit(mustSource(t, "clip.mov")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := waitForState(t, c, domain.JobStateFailed)
	if job.ErrorKind != domain.ErrorKindToolNotFound {
		t.Fatalf("kind = %s, want tool_not_found", job.ErrorKind)
	}
	// The thumbnail failure alone must not have terminated the job;
	// conversion was still attempted.
	if audio.callCount() != 1 {
		t.Fatalf("conversion attempts = %d, want 1", audio.callCount())
	}
	events := c.Events(0)
	assertStateEventExists(t, events, domain.JobStateThumbnailFailed)
}

// TestConversionExitErrorPreservesStderrVerbatim checks diagnostic
// text flows unmodified into the job's error detail.
func TestConversionExitErrorPreservesStderrVerbatim(t *testing.T) {
	const stderr = "Invalid data found when processing input\nstream #0 missing\n"
	audio := &fakeConverter{
		convert: func(ctx context.Context, sourcePath, outputPath string) (runner.Result, error) {
			return runner.Result{Outcome: runner.OutcomeExitError, ExitCode: 1, Stderr: stderr},
				&runner.ExitError{Code: 1, Stderr: stderr}
		},
	}
	c := newTestCoordinator(&fakeExtractor{}, audio)

	if _, err := c.Submit(mustSource(t, "clip.avi")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	job := waitForState(t, c, domain.JobStateFailed)
	if job.ErrorKind != domain.ErrorKindProcessExit {
		t.Fatalf("kind = %s, want process_exit", job.ErrorKind)
	}
	if job.ErrorDetail != stderr {
		t.Fatalf("detail = %q, want verbatim stderr", job.ErrorDetail)
	}
}

// TestCancelMidConversionTerminatesProcess checks cooperative
// cancellation reaches the in-flight invocation.
func TestCancelMidConversionTerminatesProcess(t *testing.T) {
	converting := make(chan struct{})
	audio := &fakeConverter{
		convert: func(ctx context.Context, sourcePath, outputPath string) (runner.Result, error) {
			close(converting)
			<-ctx.Done()
			return runner.Result{Outcome: runner.OutcomeCancelled, ExitCode: -1}, runner.ErrCancelled
		},
	}
	c := newTestCoordinator(&fakeExtractor{}, audio)

	if _, err := c.Submit(mustSource(t, "clip.mkv")); err != nil {
		t.Fatalf("submit: %v", err)
	}

	select {
	case <-converting:
	case <-time.After(2 * time.Second):
		t.Fatal("conversion never started")
	}
	c.Cancel()

	job := waitForState(t, c, domain.JobStateFailed)
	if job.ErrorKind != domain.ErrorKindCancelled {
		t.Fatalf("kind = %s, want cancelled", job.ErrorKind)
	}
}

// TestCancelWithNoActiveJobIsNoOp checks cancel idempotence.
func TestCancelWithNoActiveJobIsNoOp(t *testing.T) {
	c := newTestCoordinator(&fakeExtractor{}, &fakeConverter{})
	c.Cancel()
	c.Cancel()
	if got := c.Snapshot().State; got != domain.JobStateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
}

// TestSecondSubmitWhileActiveIsRejected checks the single-job policy:
// an in-flight job rejects new submissions, it never queues them.
func TestSecondSubmitWhileActiveIsRejected(t *testing.T) {
	converting := make(chan struct{})
	release := make(chan struct{})
	var convertingOnce sync.Once
	audio := &fakeConverter{
		convert: func(ctx context.Context, sourcePath, outputPath string) (runner.Result, error) {
			convertingOnce.Do(func() { close(converting) })
			<-release
			return runner.Result{Outcome: runner.OutcomeOK}, nil
		},
	}
	c := newTestCoordinator(&fakeExtractor{}, audio)

	first := mustSource(t, "one.mp4")
	second := mustSource(t, "two.mp4")
	if _, err := c.Submit(first); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	<-converting

	if _, err := c.Submit(second); !errors.Is(err, ErrJobAlreadyRunning) {
		t.Fatalf("second submit err = %v, want ErrJobAlreadyRunning", err)
	}

	close(release)
	waitForState(t, c, domain.JobStateCompleted)

	// After the terminal state a new submission is accepted again.
	if _, err := c.Submit(second); err != nil {
		t.Fatalf("resubmit after terminal: %v", err)
	}
	waitForState(t, c, domain.JobStateCompleted)
}

// TestTerminalHookReceivesFinalSnapshot checks history wiring.
func TestTerminalHookReceivesFinalSnapshot(t *testing.T) {
	var mu sync.Mutex
	var seen []domain.Job
	hook := func(job domain.Job) {
		mu.Lock()
		seen = append(seen, job)
		mu.Unlock()
	}
	c := newTestCoordinator(&fakeExtractor{}, &fakeConverter{}, WithTerminalHook(hook))

	if _, err := c.Submit(mustSource(t, "clip.mp4")); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitForState(t, c, domain.JobStateCompleted)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("hook calls = %d, want 1", len(seen))
	}
	if seen[0].State != domain.JobStateCompleted {
		t.Fatalf("hook state = %s, want completed", seen[0].State)
	}
	if seen[0].FinishedAt.IsZero() {
		t.Fatal("expected FinishedAt to be set")
	}
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []Event, want EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}

// assertStateEventExists verifies some event carries the given state.
func assertStateEventExists(t *testing.T, events []Event, want domain.JobState) {
	t.Helper()
	for _, event := range events {
		if event.State == want {
			return
		}
	}
	t.Fatalf("no event with state %s", want)
}
