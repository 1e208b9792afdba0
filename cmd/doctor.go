package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hmrnsp/vid2mp3/internal/diagnostics"
	"github.com/hmrnsp/vid2mp3/internal/domain"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that ffmpeg and the thumbnail directory are usable",
	RunE:  runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	report := diagnostics.NewChecker().Run()
	return RunDoctorWithDependencies(report, DefaultOutput)
}

// RunDoctorWithDependencies prints a diagnostics report with injected dependencies (for testing)
func RunDoctorWithDependencies(report domain.DiagnosticReport, out OutputWriter) error {
	for _, item := range report.Items {
		marker := "ok"
		if item.Status == domain.DiagnosticStatusFail {
			marker = "FAIL"
		}
		fmt.Fprintf(out, "[%4s] %-20s %s\n", marker, item.Name, item.Message)
		if item.Status == domain.DiagnosticStatusFail && item.Hint != "" {
			fmt.Fprintf(out, "       %s\n", item.Hint)
		}
	}

	if report.HasFailures {
		return fmt.Errorf("environment is not ready for conversions")
	}
	fmt.Fprintln(out, "All checks passed.")
	return nil
}
