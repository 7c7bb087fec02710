package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/androidcarpooling/AI-CCTV-Detection/internal/app"
	"github.com/androidcarpooling/AI-CCTV-Detection/internal/constants"
)

var buildWatchlistCmd = &cobra.Command{
	Use:   "build-watchlist <dir>",
	Short: "Enroll one person per reference photo",
	Long: `Walks a directory of reference photos and stores the first detected face
of every image as a watchlist identity. The person name is the file name
without extension; person IDs are <prefix>_0, <prefix>_1, ...`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildWatchlist,
}

func init() {
	rootCmd.AddCommand(buildWatchlistCmd)
	buildWatchlistCmd.Flags().String("prefix", constants.DefaultPersonIDPrefix, "Person ID prefix")
}

func runBuildWatchlist(cmd *cobra.Command, args []string) error {
	dir := args[0]
	prefix := mustGetString(cmd, "prefix")
	ctx := cmd.Context()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer closeApp(a)

	var bar *progressbar.ProgressBar
	progress := func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Enrolling faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("images"),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	report, err := a.Orchestrator(app.RunOptions{}).BuildWatchlist(ctx, dir, prefix, progress)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	if err != nil {
		return fmt.Errorf("building watchlist: %w", err)
	}

	fmt.Printf("Enrolled %d people from %s\n", report.Count(), dir)
	for _, p := range report.Added {
		fmt.Printf("  %-12s %s\n", p.PersonID, p.PersonName)
	}
	if len(report.NoFaces) > 0 {
		fmt.Printf("\nSkipped %d images without a face:\n", len(report.NoFaces))
		for _, path := range report.NoFaces {
			fmt.Printf("  %s\n", path)
		}
	}
	if len(report.Failed) > 0 {
		fmt.Printf("\nFailed %d images (see log):\n", len(report.Failed))
		for _, path := range report.Failed {
			fmt.Printf("  %s\n", path)
		}
	}

	if total, err := a.Store.Count(ctx); err == nil {
		fmt.Printf("\nWatchlist now holds %d faces\n", total)
	}
	return nil
}
