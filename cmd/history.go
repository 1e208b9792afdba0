package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hmrnsp/vid2mp3/internal/config"
	"github.com/hmrnsp/vid2mp3/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent conversions",
	Long: `List recent conversions, newest first.

Both the desktop window and the convert command record finished jobs,
so this shows conversions from either mode.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum number of records to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	store, err := history.Open(filepath.Join(config.AppDir(), "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	return RunHistoryWithDependencies(store, historyLimit, DefaultOutput)
}

// recentLister is the slice of the history store this command needs.
type recentLister interface {
	Recent(limit int) ([]history.Record, error)
}

// RunHistoryWithDependencies lists history records with injected dependencies (for testing)
func RunHistoryWithDependencies(store recentLister, limit int, out OutputWriter) error {
	records, err := store.Recent(limit)
	if err != nil {
		return err
	}

	if len(records) == 0 {
		fmt.Fprintln(out, "No conversions yet.")
		return nil
	}

	for _, rec := range records {
		line := fmt.Sprintf("%s  %-9s  %s -> %s",
			rec.FinishedAt.Local().Format("2006-01-02 15:04"),
			rec.State,
			rec.SourcePath,
			rec.OutputPath,
		)
		if rec.ErrorKind != "" {
			line += fmt.Sprintf("  (%s)", rec.ErrorKind)
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
