package rules

import (
	"bytes"
	_ "embed"
	"log/slog"

	"github.com/solatis/weaver/internal/types"
)

// DefaultConfigName names the embedded config in error context.
const DefaultConfigName = "<default>"

//go:embed weaver.config
var defaultConfig []byte

// DefaultConfig returns the bundled config text.
func DefaultConfig() []byte {
	return bytes.Clone(defaultConfig)
}

// Load builds a store from the bundled config (when useDefault is set)
// followed by each file in order. Rules accumulate across sources.
func Load(logger *slog.Logger, useDefault bool, files []string) (*Store, []types.Warning, error) {
	b := NewBuilder(logger)
	if useDefault {
		if err := b.AddReader(DefaultConfigName, bytes.NewReader(defaultConfig)); err != nil {
			return nil, nil, err
		}
	}
	for _, f := range files {
		if f == "" {
			continue
		}
		if err := b.AddFile(f); err != nil {
			return nil, nil, err
		}
	}
	warnings := b.Warnings()
	return b.Build(), warnings, nil
}
