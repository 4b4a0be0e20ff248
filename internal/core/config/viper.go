package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// NewViper returns a viper instance with weaver defaults and WEAVER_
// environment binding. Callers bind CLI flags on it before Load.
func NewViper() *viper.Viper {
	v := viper.New()

	d := DefaultConfig()
	v.SetDefault("weave.package", d.Weave.Package)
	v.SetDefault("weave.class_dirs", []string{})
	v.SetDefault("weave.classpath", []string{})
	v.SetDefault("weave.boot_classpath", []string{})
	v.SetDefault("weave.debug", d.Weave.Debug)
	v.SetDefault("weave.config_files", []string{})
	v.SetDefault("weave.default_config", d.Weave.DefaultConfig)
	v.SetDefault("weave.dry_run", d.Weave.DryRun)
	v.SetDefault("editor.address", "")
	v.SetDefault("editor.timeout", d.Editor.Timeout.String())
	v.SetDefault("editor.listen", d.Editor.Listen)
	v.SetDefault("editor.upstream", "")
	v.SetDefault("journal.db_url", "")
	v.SetDefault("report.plan_file", "")
	v.SetDefault("report.metrics_file", "")

	v.SetEnvPrefix("WEAVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(NewViper(), configPath)
}

// Load reads configPath (when non-empty) into v and builds the config.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	cfg := &Config{
		Weave: WeaveConfig{
			Package:       v.GetString("weave.package"),
			ClassDirs:     pathList(v, "weave.class_dirs"),
			Classpath:     pathList(v, "weave.classpath"),
			BootClasspath: pathList(v, "weave.boot_classpath"),
			Debug:         v.GetBool("weave.debug"),
			ConfigFiles:   pathList(v, "weave.config_files"),
			DefaultConfig: v.GetBool("weave.default_config"),
			DryRun:        v.GetBool("weave.dry_run"),
		},
		Editor: EditorConfig{
			Address:  v.GetString("editor.address"),
			Timeout:  v.GetDuration("editor.timeout"),
			Listen:   v.GetString("editor.listen"),
			Upstream: v.GetString("editor.upstream"),
		},
		Journal: JournalConfig{
			DBURL: v.GetString("journal.db_url"),
		},
		Report: ReportConfig{
			PlanFile:    v.GetString("report.plan_file"),
			MetricsFile: v.GetString("report.metrics_file"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// pathList accepts YAML lists as well as OS path lists ("a.jar:b.jar")
// from the environment.
func pathList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, p := range filepath.SplitList(item) {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// validateConfig checks the settings a run cannot start without.
func validateConfig(cfg *Config) error {
	if cfg.Editor.Timeout <= 0 {
		return fmt.Errorf("editor.timeout must be positive, got %v", cfg.Editor.Timeout)
	}
	return nil
}

// ValidateRun checks the settings needed by "weaver run" on top of Load.
func ValidateRun(cfg *Config) error {
	if len(cfg.Weave.ClassDirs) == 0 {
		return fmt.Errorf("weave.class_dirs must name at least one directory")
	}
	if !cfg.Weave.DefaultConfig && len(cfg.Weave.ConfigFiles) == 0 {
		return fmt.Errorf("no weaving rules: set weave.config_files or enable weave.default_config")
	}
	if !cfg.Weave.DryRun && cfg.Editor.Address == "" {
		return fmt.Errorf("editor.address is required unless weave.dry_run is set")
	}
	return nil
}

// ValidateServe checks the settings needed by "weaver editor serve".
func ValidateServe(cfg *Config) error {
	if cfg.Editor.Listen == "" {
		return fmt.Errorf("editor.listen is required")
	}
	if cfg.Editor.Upstream != "" && cfg.Editor.Upstream == cfg.Editor.Listen {
		return fmt.Errorf("editor.upstream cannot be the listen address %s", cfg.Editor.Listen)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets.
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("editor.secret") || v.InConfig("editor_secret") {
		return fmt.Errorf("editor secrets not allowed in config files (use WEAVER_EDITOR_SECRET environment variable)")
	}
	return nil
}
