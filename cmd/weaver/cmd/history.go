package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/weaver/internal/core/db"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List journaled runs, or show the classes of one run",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Int("limit", 20, "number of runs to list")
	historyCmd.Flags().Duration("prune", 0, "delete runs older than this before listing")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	if cfg.Journal.DBURL == "" {
		return fmt.Errorf("--db-url or journal.db_url required")
	}

	database, err := openJournalDB(cfg.Journal.DBURL)
	if err != nil {
		return err
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	journal := db.NewJournal(queries)
	out := cmd.OutOrStdout()

	if prune, _ := cmd.Flags().GetDuration("prune"); prune > 0 {
		n, err := journal.Prune(time.Now().Add(-prune))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "pruned %d runs\n", n)
	}

	if len(args) == 1 {
		run, classes, err := journal.GetRun(args[0])
		if err != nil {
			return err
		}
		return printRun(out, run, classes)
	}

	limit, _ := cmd.Flags().GetInt("limit")
	runs, err := journal.ListRuns(limit)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tPACKAGE\tMODE\tSTATE\tSCANNED\tWOVEN\tWRITTEN\tWARNINGS")
	for _, r := range runs {
		mode := r.BuildMode
		if r.DryRun {
			mode += " (dry run)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.RunID, r.StartedAt.Local().Format(time.DateTime), r.Package, mode, r.State,
			r.Scanned, r.Woven, r.Written, r.Warnings)
	}
	return tw.Flush()
}

func printRun(w io.Writer, run db.RunRecord, classes []db.ClassRecord) error {
	fmt.Fprintf(w, "run:      %s\n", run.RunID)
	fmt.Fprintf(w, "package:  %s (%s)\n", run.Package, run.BuildMode)
	fmt.Fprintf(w, "state:    %s\n", run.State)
	fmt.Fprintf(w, "started:  %s\n", run.StartedAt.Local().Format(time.DateTime))
	if run.FinishedAt.Valid {
		fmt.Fprintf(w, "elapsed:  %s\n", run.FinishedAt.Time.Sub(run.StartedAt).Round(time.Millisecond))
	}
	if run.Error.Valid {
		fmt.Fprintf(w, "error:    %s\n", run.Error.String)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CLASS\tSTATE\tEDITS\tSHA256")
	for _, c := range classes {
		sha := c.SHAAfter.String
		if sha == "" {
			sha = c.SHABefore.String
		}
		if len(sha) > 12 {
			sha = sha[:12]
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ClassName, c.State, c.Edits, sha)
	}
	return tw.Flush()
}
