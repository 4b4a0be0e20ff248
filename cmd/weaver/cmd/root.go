package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solatis/weaver/internal/core/config"
)

// Version is the weaver release.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string

	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "weaver",
	Short: "Weave code snippets into compiled JVM classes",
	Long: `weaver applies a line-oriented rule configuration to compiled classes:
snippets run before, after or around overridden methods, or around methods
carrying an annotation. Missing overrides are synthesized.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(cmd.ErrOrStderr(), logLevel, logFormat)
		if err != nil {
			return err
		}
		logger = l
		slog.SetDefault(l)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "journal database URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (json, text)")
}

// Execute runs the root command and reports a failure on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "weaver:", err)
	}
	return err
}

// loadConfig builds the run configuration with flags of cmd taking
// precedence over environment, file and defaults. flagKeys maps config keys
// to flag names.
func loadConfig(cmd *cobra.Command, flagKeys map[string]string) (*config.Config, *viper.Viper, error) {
	v := config.NewViper()
	if f := cmd.Flags().Lookup("db-url"); f != nil {
		if err := v.BindPFlag("journal.db_url", f); err != nil {
			return nil, nil, err
		}
	}
	for key, name := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			return nil, nil, fmt.Errorf("unknown flag %q for %s", name, key)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, nil, err
		}
	}
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, v, nil
}
