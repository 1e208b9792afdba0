package convert

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hmrnsp/vid2mp3/internal/runner"
)

// fakeRunner records invocations and replays injected outcomes.
type fakeRunner struct {
	specs []runner.Spec
	run   func(spec runner.Spec) (runner.Result, error)
}

func (f *fakeRunner) Run(_ context.Context, spec runner.Spec) (runner.Result, error) {
	f.specs = append(f.specs, spec)
	if f.run == nil {
		return runner.Result{Outcome: runner.OutcomeOK}, nil
	}
	return f.run(spec)
}

// mustWriteFile creates a file with content or fails the test.
func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// TestThumbnailExtractSuccess checks args, temp path convention, and
// that the declared path is returned once the frame exists.
func TestThumbnailExtractSuccess(t *testing.T) {
	tempDir := t.TempDir()
	fake := &fakeRunner{
		run: func(spec runner.Spec) (runner.Result, error) {
			mustWriteFile(t, spec.Args[len(spec.Args)-1], "jpg")
			return runner.Result{Outcome: runner.OutcomeOK}, nil
		},
	}

	extractor := NewThumbnailExtractor(fake, WithThumbnailTempDir(tempDir))
	thumbPath, result, err := extractor.Extract(context.Background(), "/videos/clip.mp4", "job-1")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if result.Outcome != runner.OutcomeOK {
		t.Fatalf("outcome = %s, want ok", result.Outcome)
	}
	if thumbPath != filepath.Join(tempDir, "thumb-job-1.jpg") {
		t.Fatalf("thumb path = %q", thumbPath)
	}

	if len(fake.specs) != 1 {
		t.Fatalf("invocations = %d, want 1", len(fake.specs))
	}
	spec := fake.specs[0]
	if spec.Name != "ffmpeg" {
		t.Fatalf("executable = %q, want ffmpeg", spec.Name)
	}
	if !spec.HideWindow {
		t.Fatal("expected HideWindow to be set")
	}
	assertArgPair(t, spec.Args, "-ss", "00:00:01")
	assertArgPair(t, spec.Args, "-i", "/videos/clip.mp4")
	assertArgPair(t, spec.Args, "-vframes", "1")
}

// TestThumbnailExtractMissingOutputIsError checks the stat-after guard.
func TestThumbnailExtractMissingOutputIsError(t *testing.T) {
	fake := &fakeRunner{} // succeeds but writes nothing
	extractor := NewThumbnailExtractor(fake, WithThumbnailTempDir(t.TempDir()))

	_, result, err := extractor.Extract(context.Background(), "/videos/clip.mp4", "job-2")
	if err == nil {
		t.Fatal("expected error for missing thumbnail file")
	}
	if result.Outcome != runner.OutcomeIOError {
		t.Fatalf("outcome = %s, want io_error", result.Outcome)
	}
}

// TestConvertWritesPartThenRenames checks the safe-output pattern.
func TestConvertWritesPartThenRenames(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	output := filepath.Join(dir, "clip.mp3")
	mustWriteFile(t, source, "media")

	fake := &fakeRunner{
		run: func(spec runner.Spec) (runner.Result, error) {
			mustWriteFile(t, spec.Args[len(spec.Args)-1], "mp3")
			return runner.Result{Outcome: runner.OutcomeOK}, nil
		},
	}

	converter := NewAudioConverter(fake)
	result, err := converter.Convert(context.Background(), source, output)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if result.Outcome != runner.OutcomeOK {
		t.Fatalf("outcome = %s, want ok", result.Outcome)
	}

	if _, err := os.Stat(output); err != nil {
		t.Fatalf("final output missing: %v", err)
	}
	if _, err := os.Stat(output + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("part file should be renamed away, stat err = %v", err)
	}

	spec := fake.specs[0]
	assertArgPair(t, spec.Args, "-acodec", "libmp3lame")
	assertArgPair(t, spec.Args, "-b:a", "192k")
	assertArgPair(t, spec.Args, "-f", "mp3")
	if spec.Args[len(spec.Args)-1] != output+".part" {
		t.Fatalf("ffmpeg target = %q, want part path", spec.Args[len(spec.Args)-1])
	}
	if !hasArg(spec.Args, "-vn") {
		t.Fatal("expected -vn to strip the video stream")
	}
}

// TestConvertFailureRemovesPartFile checks no partial output survives.
func TestConvertFailureRemovesPartFile(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "clip.mp4")
	output := filepath.Join(dir, "clip.mp3")
	mustWriteFile(t, source, "media")

	fake := &fakeRunner{
		run: func(spec runner.Spec) (runner.Result, error) {
			mustWriteFile(t, spec.Args[len(spec.Args)-1], "partial")
			return runner.Result{
				Outcome:  runner.OutcomeExitError,
				ExitCode: 1,
				Stderr:   "invalid data found",
			}, &runner.ExitError{Code: 1, Stderr: "invalid data found"}
		},
	}

	converter := NewAudioConverter(fake)
	result, err := converter.Convert(context.Background(), source, output)
	if err == nil {
		t.Fatal("expected conversion error")
	}
	if result.Stderr != "invalid data found" {
		t.Fatalf("stderr = %q", result.Stderr)
	}
	if _, err := os.Stat(output); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no file may exist at the final path, stat err = %v", err)
	}
	if _, err := os.Stat(output + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("part file should be cleaned up, stat err = %v", err)
	}
}

// TestConvertRejectsCollidingOutputBeforeSpawn checks the pre-flight
// naming guard runs before any process invocation.
func TestConvertRejectsCollidingOutputBeforeSpawn(t *testing.T) {
	fake := &fakeRunner{}
	converter := NewAudioConverter(fake)

	_, err := converter.Convert(context.Background(), "/v/song.mp3", "/v/song.mp3")
	if !errors.Is(err, ErrOutputCollides) {
		t.Fatalf("err = %v, want ErrOutputCollides", err)
	}
	if len(fake.specs) != 0 {
		t.Fatalf("invocations = %d, want 0", len(fake.specs))
	}
}

// assertArgPair verifies flag is present and followed by value.
func assertArgPair(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i, arg := range args[:len(args)-1] {
		if arg == flag {
			if args[i+1] != value {
				t.Fatalf("%s = %q, want %q", flag, args[i+1], value)
			}
			return
		}
	}
	t.Fatalf("flag %s not found in %v", flag, args)
}

// hasArg reports whether args contains the exact token.
func hasArg(args []string, token string) bool {
	for _, arg := range args {
		if arg == token {
			return true
		}
	}
	return false
}
