package weave

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// ClassSerializer turns a target and its recorded edits into class-file
// bytes. Implementations compile the snippets; the engine never does.
type ClassSerializer interface {
	Serialize(ctx context.Context, t *Target) ([]byte, error)
}

// ClassState is the terminal state of one scanned class.
type ClassState string

const (
	ClassWritten ClassState = "written"
	ClassSkipped ClassState = "skipped"
)

// ClassResult describes what happened to one scanned class.
type ClassResult struct {
	Name      string     `yaml:"class"`
	Path      string     `yaml:"path"`
	State     ClassState `yaml:"state"`
	Edits     []Edit     `yaml:"edits,omitempty"`
	SHABefore string     `yaml:"sha256_before,omitempty"`
	SHAAfter  string     `yaml:"sha256_after,omitempty"`
}

// Writer persists woven classes.
type Writer struct {
	serializer ClassSerializer
	logger     *slog.Logger
}

// NewWriter creates a writer over a serializer.
func NewWriter(serializer ClassSerializer, logger *slog.Logger) *Writer {
	return &Writer{serializer: serializer, logger: logger}
}

// Write serializes t when it has edits and replaces the class file when the
// bytes changed. Unchanged classes are never rewritten.
func (w *Writer) Write(ctx context.Context, t *Target) (ClassResult, error) {
	res := ClassResult{Name: t.Name(), Path: t.Path, State: ClassSkipped, Edits: t.Edits()}
	if !t.Modified() {
		return res, nil
	}
	res.SHABefore = digest(t.Class.Raw)

	out, err := w.serializer.Serialize(ctx, t)
	if err != nil {
		return res, fmt.Errorf("failed to serialize %s: %w", t.Name(), err)
	}
	if bytes.Equal(out, t.Class.Raw) {
		w.logger.Debug("class unchanged, not rewriting", slog.String("class", t.Name()))
		return res, nil
	}
	if err := writeFileAtomic(t.Path, out); err != nil {
		return res, fmt.Errorf("failed to write %s: %w", t.Name(), err)
	}
	res.State = ClassWritten
	res.SHAAfter = digest(out)
	w.logger.Info("class written",
		slog.String("class", t.Name()),
		slog.String("path", t.Path),
		slog.Int("edits", len(t.Edits())))
	return res, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// writeFileAtomic replaces path with data through a temp file in the same
// directory, keeping the original mode.
func writeFileAtomic(path string, data []byte) error {
	mode := os.FileMode(0o644)
	if fi, err := os.Stat(path); err == nil {
		mode = fi.Mode().Perm()
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Chmod(name, mode); err != nil {
		os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return err
	}
	return nil
}
