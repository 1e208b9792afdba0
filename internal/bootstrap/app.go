package bootstrap

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/hmrnsp/vid2mp3/internal/config"
	"github.com/hmrnsp/vid2mp3/internal/convert"
	"github.com/hmrnsp/vid2mp3/internal/diagnostics"
	"github.com/hmrnsp/vid2mp3/internal/domain"
	"github.com/hmrnsp/vid2mp3/internal/history"
	"github.com/hmrnsp/vid2mp3/internal/jobs"
	"github.com/hmrnsp/vid2mp3/internal/runner"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

// videoDialogFilter restricts the native picker to the formats the
// converter accepts.
func videoDialogFilter() []wailsruntime.FileFilter {
	patterns := make([]string, 0, len(convert.SupportedExtensions()))
	for _, ext := range convert.SupportedExtensions() {
		patterns = append(patterns, "*."+ext)
	}

	return []wailsruntime.FileFilter{
		{
			DisplayName: "Video files",
			Pattern:     strings.Join(patterns, ";"),
		},
		{
			DisplayName: "All files",
			Pattern:     "*",
		},
	}
}

// App wires configuration, the conversion coordinator, history, and UI
// runtime callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Coordinator *jobs.Coordinator
	Diagnostics domain.DiagnosticReport
	History     *history.Store

	assets  fs.FS
	checker *diagnostics.Checker
	thumbs  *convert.ThumbnailExtractor
	log     *slog.Logger

	mu         sync.Mutex
	runtimeCtx context.Context
}

// New builds the application with persisted settings and startup diagnostics.
func New(log *slog.Logger) (*App, error) {
	return NewWithAssets(nil, log)
}

// NewWithAssets builds the application and optionally configures embedded frontend assets.
func NewWithAssets(assets fs.FS, log *slog.Logger) (*App, error) {
	if log == nil {
		log = slog.Default()
	}

	appDir := config.AppDir()
	store := config.NewJSONStore(filepath.Join(appDir, "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	checker := diagnostics.NewChecker()
	report := checker.Run()

	hist, err := history.Open(filepath.Join(appDir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("open conversion history: %w", err)
	}

	run := runner.NewExecRunner()
	thumbs := convert.NewThumbnailExtractor(run)
	audio := convert.NewAudioConverter(run)

	app := &App{
		Settings:    settings,
		Store:       store,
		Diagnostics: report,
		History:     hist,
		assets:      assets,
		checker:     checker,
		thumbs:      thumbs,
		log:         log,
	}

	app.Coordinator = jobs.NewCoordinator(
		thumbs,
		audio,
		jobs.NewEventBus(1000),
		log,
		jobs.WithTerminalHook(app.recordTerminalJob),
		jobs.WithEventHook(app.pushEvent),
	)

	return app, nil
}

// Run starts the Wails desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "vid2mp3",
		Width:       560,
		Height:      640,
		AssetServer: assetOptions,
		DragAndDrop: &options.DragAndDrop{
			EnableFileDrop: true,
		},
		OnStartup:  a.Startup,
		OnShutdown: a.Shutdown,
		Bind:       []interface{}{a},
	})
}

// Startup stores the Wails runtime context and registers the native
// file drop handler.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = ctx
	a.mu.Unlock()

	wailsruntime.OnFileDrop(ctx, func(x, y int, paths []string) {
		if len(paths) == 0 {
			return
		}
		// Single-job app: only the first dropped file is considered.
		if _, err := a.SubmitConversion(paths[0]); err != nil {
			a.emit("job:rejected", err.Error())
		}
	})
}

// Shutdown releases the runtime context, closes the history database,
// and removes staged thumbnails unless the user opted to keep them.
func (a *App) Shutdown(ctx context.Context) {
	a.mu.Lock()
	a.runtimeCtx = nil
	keep := a.Settings.KeepThumbnails
	a.mu.Unlock()

	a.Coordinator.Cancel()

	if !keep {
		if err := os.RemoveAll(a.thumbs.TempDir()); err != nil {
			a.log.Warn("cleanup thumbnail directory", "dir", a.thumbs.TempDir(), "error", err)
		}
	}

	if err := a.History.Close(); err != nil {
		a.log.Warn("close history database", "error", err)
	}
}

// SubmitConversion accepts a dropped or picked video and starts the
// conversion job. The source's directory is remembered for the next
// file picker session.
func (a *App) SubmitConversion(sourcePath string) (domain.Job, error) {
	job, err := a.Coordinator.Submit(sourcePath)
	if err != nil {
		return domain.Job{}, err
	}

	a.rememberInputDir(filepath.Dir(job.SourcePath))
	return job, nil
}

// CancelConversion stops the in-flight job, if any.
func (a *App) CancelConversion() {
	a.Coordinator.Cancel()
}

// CurrentJob returns the current job snapshot.
func (a *App) CurrentJob() domain.Job {
	return a.Coordinator.Snapshot()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.Coordinator.Events(sinceSeq)
}

// SupportedFormats lists the accepted source extensions for the UI.
func (a *App) SupportedFormats() []string {
	return convert.SupportedExtensions()
}

// PickInputFile opens a native file dialog starting in the directory of
// the last submitted video.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	a.mu.Lock()
	startDir := a.Settings.LastInputDir
	a.mu.Unlock()

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:            "Select video file",
		DefaultDirectory: startDir,
		Filters:          videoDialogFilter(),
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// RevealOutput shows the given file selected in the platform file
// manager, falling back to opening its parent directory.
func (a *App) RevealOutput(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	return revealInFileManager(target)
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.Diagnostics
}

// RefreshDiagnostics reruns dependency checks.
func (a *App) RefreshDiagnostics() domain.DiagnosticReport {
	report := a.checker.Run()

	a.mu.Lock()
	a.Diagnostics = report
	a.mu.Unlock()

	return report
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	a.mu.Unlock()

	return normalized, nil
}

// RecentConversions returns the newest history records, most recent first.
func (a *App) RecentConversions(limit int) ([]history.Record, error) {
	return a.History.Recent(limit)
}

// recordTerminalJob appends a finished job to the history database.
// Runs on the job goroutine; failures are logged, never surfaced.
func (a *App) recordTerminalJob(job domain.Job) {
	if err := a.History.Append(job); err != nil {
		a.log.Warn("record conversion history", "job", job.ID, "error", err)
	}
}

// pushEvent forwards sequenced job events to the frontend.
func (a *App) pushEvent(event jobs.Event) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", event)
	}
}

// emit sends an ad-hoc named event to the frontend.
func (a *App) emit(name string, payload interface{}) {
	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, name, payload)
	}
}

// rememberInputDir persists the last used source directory.
func (a *App) rememberInputDir(dir string) {
	dir = strings.TrimSpace(dir)
	if dir == "" || dir == "." {
		return
	}

	a.mu.Lock()
	if a.Settings.LastInputDir == dir {
		a.mu.Unlock()
		return
	}
	a.Settings.LastInputDir = dir
	settings := a.Settings
	a.mu.Unlock()

	if err := a.Store.Save(settings); err != nil {
		a.log.Warn("persist last input directory", "dir", dir, "error", err)
	}
}

// runtimeContext returns current Wails runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and restores defaults when empty.
func normalizeSettings(settings domain.Settings) domain.Settings {
	settings.LastInputDir = strings.TrimSpace(settings.LastInputDir)
	if settings.LastInputDir == "" {
		settings.LastInputDir = config.DefaultSettings().LastInputDir
	}
	return settings
}

// revealInFileManager highlights the file in the platform file
// explorer, or opens its parent directory where selection is not
// supported.
func revealInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", "-R", path)
	case "windows":
		cmd = exec.Command("explorer", "/select,"+filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", filepath.Dir(path))
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}
