package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ccbisect/internal/slogutil"
	"ccbisect/internal/storage"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past bisection runs",
	Long: `List past bisection runs from the run database, newest first.

Examples:
  ccbisect history
  ccbisect history --limit=50`,
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.DBPath, slogutil.NewDiscardLogger())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	runs, err := store.ListRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no recorded runs")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPROJECT\tMODE\tSTATUS\tCULPRIT\tGOOD..BAD")
	for _, r := range runs {
		culprit := r.Culprit
		if culprit == "" {
			culprit = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s..%s\n",
			r.StartedAt.Local().Format(time.DateTime),
			r.Project, r.Mode, r.Status, short(culprit), r.Good, r.Bad)
	}
	return w.Flush()
}

// short abbreviates a full commit hash for table output.
func short(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
