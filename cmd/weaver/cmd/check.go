package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/solatis/weaver/internal/rules"
)

var checkCmd = &cobra.Command{
	Use:   "check [rule-file...]",
	Short: "Parse and validate rule configs and print the resulting rules",
	Long: `check loads the rule configs the same way "weaver run" does, reports
duplicate rules and unknown build conditions, and prints every rule grouped by
class and method in application order. Files given as arguments are added
after weave.config_files.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringSlice("rules", nil, "weaving rule config file (repeatable, in order)")
	checkCmd.Flags().Bool("default-config", true, "prepend the built-in rule config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig(cmd, map[string]string{
		"weave.config_files":   "rules",
		"weave.default_config": "default-config",
	})
	if err != nil {
		return err
	}

	files := append(cfg.Weave.ConfigFiles, args...)
	store, warnings, err := rules.Load(logger, cfg.Weave.DefaultConfig, files)
	if err != nil {
		return err
	}
	warnings = append(warnings, rules.Validate(store, logger)...)

	if err := store.Describe(cmd.OutOrStdout()); err != nil {
		return err
	}
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
	}
	logger.Info("rules checked", slog.Int("rules", store.Len()), slog.Int("warnings", len(warnings)))
	return nil
}
