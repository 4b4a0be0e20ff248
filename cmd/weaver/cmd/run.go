package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/solatis/weaver/internal/core/auth"
	"github.com/solatis/weaver/internal/core/config"
	"github.com/solatis/weaver/internal/core/db"
	"github.com/solatis/weaver/internal/core/metrics"
	"github.com/solatis/weaver/internal/editor"
	"github.com/solatis/weaver/internal/weave"
)

var runFlagKeys = map[string]string{
	"weave.package":        "package",
	"weave.class_dirs":     "class-dir",
	"weave.classpath":      "classpath",
	"weave.boot_classpath": "boot-classpath",
	"weave.debug":          "debug",
	"weave.config_files":   "rules",
	"weave.default_config": "default-config",
	"weave.dry_run":        "dry-run",
	"editor.address":       "editor",
	"editor.timeout":       "editor-timeout",
	"report.plan_file":     "plan",
	"report.metrics_file":  "metrics-file",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Weave the configured rules into a package's classes",
	Example: `  weaver run --package com.app --class-dir build/classes \
    --classpath android.jar --rules weaver.config --editor localhost:7070`,
	Args: cobra.NoArgs,
	RunE: runWeave,
}

func init() {
	rootCmd.AddCommand(runCmd)
	f := runCmd.Flags()
	f.String("package", "", "package whose classes (and sub-packages) are woven")
	f.StringSlice("class-dir", nil, "compiled classes directory (repeatable)")
	f.StringSlice("classpath", nil, "classpath entries for resolving declaring classes")
	f.StringSlice("boot-classpath", nil, "boot classpath entries")
	f.Bool("debug", false, "weave for a debug build (enables _D rules)")
	f.StringSlice("rules", nil, "weaving rule config file (repeatable, in order)")
	f.Bool("default-config", true, "prepend the built-in rule config")
	f.Bool("dry-run", false, "report planned edits without writing classes")
	f.String("editor", "", "bytecode editor address (host:port)")
	f.Duration("editor-timeout", 0, "timeout of one editor call")
	f.String("plan", "", "write a YAML report of the run to this file")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile")
}

func runWeave(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, runFlagKeys)
	if err != nil {
		return err
	}
	if err := config.ValidateRun(cfg); err != nil {
		return err
	}

	serializer, closeSerializer, err := newSerializer(cfg)
	if err != nil {
		return err
	}
	defer closeSerializer()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runMetrics := metrics.New()
	w := weave.New(weave.Options{
		Package:       cfg.Weave.Package,
		ClassDirs:     cfg.Weave.ClassDirs,
		Classpath:     cfg.Weave.Classpath,
		BootClasspath: cfg.Weave.BootClasspath,
		Mode:          cfg.Weave.Mode(),
		ConfigFiles:   cfg.Weave.ConfigFiles,
		DefaultConfig: cfg.Weave.DefaultConfig,
	}, serializer, logger, weave.WithObserver(runMetrics))

	res, runErr := w.Run(ctx)

	// Reports are written for aborted runs too; their errors only surface
	// when the run itself succeeded.
	var reportErrs []error
	if cfg.Report.PlanFile != "" {
		reportErrs = append(reportErrs, editor.WritePlanFile(cfg.Report.PlanFile, editor.NewPlan(res, cfg.Weave.DryRun)))
	}
	if cfg.Report.MetricsFile != "" {
		reportErrs = append(reportErrs, runMetrics.WriteTextfile(cfg.Report.MetricsFile))
	}
	if cfg.Journal.DBURL != "" {
		reportErrs = append(reportErrs, journalRun(cfg.Journal.DBURL, res, cfg.Weave.DryRun))
	}

	if runErr != nil {
		return runErr
	}
	for _, warn := range res.Warnings {
		logger.Warn("run warning", slog.String("kind", string(warn.Kind)), slog.String("warning", warn.String()))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned %d, woven %d, written %d, warnings %d\n",
		res.RunID, res.Scanned, res.Woven(), res.Written(), len(res.Warnings))
	return errors.Join(reportErrs...)
}

// newSerializer returns the dry-run serializer or a connection to the
// editor, signed when an editor secret is in the environment.
func newSerializer(cfg *config.Config) (weave.ClassSerializer, func(), error) {
	if cfg.Weave.DryRun {
		return editor.NewDryRun(logger), func() {}, nil
	}

	secretID, secret, err := config.SigningSecret()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load editor secret: %w", err)
	}
	var signer *auth.Signer
	if secretID != "" {
		signer = auth.NewSigner(secretID, secret)
	} else {
		logger.Warn("no editor secret configured, calls are unsigned (set WEAVER_EDITOR_SECRET)")
	}

	remote, err := editor.Dial(cfg.Editor.Address, cfg.Editor.Timeout, signer, logger)
	if err != nil {
		return nil, nil, err
	}
	return remote, func() { remote.Close() }, nil
}

func journalRun(dbURL string, res *weave.Result, dryRun bool) error {
	database, err := openJournalDB(dbURL)
	if err != nil {
		return err
	}
	defer database.Close()

	queries, err := db.LoadQueries(database)
	if err != nil {
		return fmt.Errorf("failed to load queries: %w", err)
	}
	run, classes := journalRecords(res, dryRun)
	if err := db.NewJournal(queries).Record(run, classes); err != nil {
		return err
	}
	logger.Debug("run journaled", slog.String("run_id", run.RunID), slog.Int("classes", len(classes)))
	return nil
}

// journalRecords converts a run result. Only classes with edits are kept.
func journalRecords(res *weave.Result, dryRun bool) (db.RunRecord, []db.ClassRecord) {
	run := db.RunRecord{
		RunID:      string(res.RunID),
		Package:    res.Package,
		BuildMode:  res.Mode.String(),
		DryRun:     dryRun,
		State:      string(res.State),
		StartedAt:  res.Started,
		FinishedAt: sql.NullTime{Time: res.Finished, Valid: !res.Finished.IsZero()},
		Rules:      res.Rules,
		Scanned:    res.Scanned,
		Woven:      res.Woven(),
		Written:    res.Written(),
		Warnings:   len(res.Warnings),
	}
	if res.Err != nil {
		run.Error = sql.NullString{String: res.Err.Error(), Valid: true}
	}

	var classes []db.ClassRecord
	for _, c := range res.Classes {
		if len(c.Edits) == 0 {
			continue
		}
		classes = append(classes, db.ClassRecord{
			RunID:     run.RunID,
			ClassName: c.Name,
			Path:      c.Path,
			State:     string(c.State),
			Edits:     len(c.Edits),
			SHABefore: sql.NullString{String: c.SHABefore, Valid: c.SHABefore != ""},
			SHAAfter:  sql.NullString{String: c.SHAAfter, Valid: c.SHAAfter != ""},
		})
	}
	return run, classes
}

// openJournalDB opens the journal and checks it was migrated.
func openJournalDB(dbURL string) (*sqlx.DB, error) {
	database, err := db.Open(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.RequireCurrent(database); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
