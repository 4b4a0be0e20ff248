// Package config provides configuration management for weaver runs.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/solatis/weaver/internal/types"
)

// Config holds everything a weaver invocation needs.
type Config struct {
	Weave   WeaveConfig
	Editor  EditorConfig
	Journal JournalConfig
	Report  ReportConfig
}

// WeaveConfig holds the inputs of a weaving run.
type WeaveConfig struct {
	Package       string
	ClassDirs     []string
	Classpath     []string
	BootClasspath []string
	Debug         bool
	ConfigFiles   []string
	DefaultConfig bool
	DryRun        bool
}

// Mode returns the build mode the run weaves for.
func (w WeaveConfig) Mode() types.BuildMode {
	return types.BuildMode(w.Debug)
}

// EditorConfig holds the remote bytecode editor endpoint. Listen and
// Upstream configure "weaver editor serve".
type EditorConfig struct {
	Address  string
	Timeout  time.Duration
	Listen   string
	Upstream string
}

// JournalConfig holds the optional run journal database.
type JournalConfig struct {
	DBURL string
}

// ReportConfig holds optional report outputs.
type ReportConfig struct {
	PlanFile    string
	MetricsFile string
}

// DefaultConfig returns configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Weave: WeaveConfig{
			DefaultConfig: true,
		},
		Editor: EditorConfig{
			Timeout: 30 * time.Second,
			Listen:  "127.0.0.1:7070",
		},
	}
}

// EditorSecrets extracts editor HMAC secrets from environment variables.
// Supports WEAVER_EDITOR_SECRET (single) and WEAVER_EDITOR_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
func EditorSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	// Format: <secret_id>:<base64_secret>
	if val := os.Getenv("WEAVER_EDITOR_SECRET"); val != "" {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("WEAVER_EDITOR_SECRET: %w", err)
		}
		secrets[secretID] = decoded
	}

	// Numbered secrets keep the old and new key valid while an editor rotates.
	for i := 1; ; i++ {
		key := fmt.Sprintf("WEAVER_EDITOR_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return nil, fmt.Errorf("duplicate secret_id '%s' found in environment variables (check WEAVER_EDITOR_SECRET and WEAVER_EDITOR_SECRET_* for conflicts)", secretID)
		}
		secrets[secretID] = decoded
	}

	return secrets, nil
}

// SigningSecret returns the secret a client signs with: WEAVER_EDITOR_SECRET
// when set, otherwise the highest numbered secret.
func SigningSecret() (secretID string, secret []byte, err error) {
	if val := os.Getenv("WEAVER_EDITOR_SECRET"); val != "" {
		secretID, secret, err = ParseHMACSecretWithID(val)
		if err != nil {
			return "", nil, fmt.Errorf("WEAVER_EDITOR_SECRET: %w", err)
		}
		return secretID, secret, nil
	}
	for i := 1; ; i++ {
		key := fmt.Sprintf("WEAVER_EDITOR_SECRET_%d", i)
		val := os.Getenv(key)
		if val == "" {
			return secretID, secret, nil
		}
		secretID, secret, err = ParseHMACSecretWithID(val)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", key, err)
		}
	}
}

// ParseHMACSecret decodes a base64-encoded HMAC secret.
func ParseHMACSecret(envValue string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(envValue))
	if err != nil {
		return nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(decoded) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(decoded))
	}
	return decoded, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUID without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUID without hyphens)")
	}

	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be hex chars only")
		}
	}

	secret, err = ParseHMACSecret(parts[1])
	if err != nil {
		return "", nil, err
	}
	return secretID, secret, nil
}
