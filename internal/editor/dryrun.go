package editor

import (
	"bytes"
	"context"
	"log/slog"

	"github.com/solatis/weaver/internal/weave"
)

// DryRun is a ClassSerializer that returns every class unchanged, so the
// writer never touches the class directories.
type DryRun struct {
	logger *slog.Logger
}

// NewDryRun creates a dry-run serializer that logs each planned edit.
func NewDryRun(logger *slog.Logger) *DryRun {
	if logger == nil {
		logger = slog.Default()
	}
	return &DryRun{logger: logger}
}

func (d *DryRun) Serialize(_ context.Context, t *weave.Target) ([]byte, error) {
	for _, e := range t.Edits() {
		d.logger.Info("planned edit",
			slog.String("class", t.Name()),
			slog.String("kind", string(e.Kind)),
			slog.String("method", e.Method+e.Descriptor),
			slog.String("rule", e.Source.String()))
	}
	return bytes.Clone(t.Class.Raw), nil
}
