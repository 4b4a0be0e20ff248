package editor

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/solatis/weaver/internal/classfile"
	"github.com/solatis/weaver/internal/types"
	"github.com/solatis/weaver/internal/weave"
)

// Verifier is a Backend that checks each request against the class it
// carries and returns the class unchanged. It stands in for a real editor
// when checking connectivity and credentials from a build host.
type Verifier struct {
	logger *slog.Logger
}

// NewVerifier creates a verifying backend.
func NewVerifier(logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{logger: logger}
}

// Apply rejects requests whose bytes are not a class file, name another
// class, use an unknown edit kind, or edit a method that the class does not
// declare and no earlier edit adds.
func (v *Verifier) Apply(_ context.Context, req Request) ([]byte, error) {
	c, err := classfile.Parse(req.ClassBytes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", req.ClassName, err)
	}
	if c.Name != req.ClassName {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrClassMismatch, c.Name, req.ClassName)
	}

	added := make(map[string]bool)
	for i, e := range req.Edits {
		key := e.Method + e.Descriptor
		switch e.Kind {
		case weave.EditAddMethod:
			added[key] = true
			continue
		case weave.EditInsertBefore, weave.EditInsertAfter, weave.EditFinally, weave.EditAddCatch:
		default:
			return nil, fmt.Errorf("%w: edits[%d] kind %q", types.ErrUnknownAction, i, e.Kind)
		}
		if added[key] || declares(c, e.Method, e.Descriptor) {
			continue
		}
		return nil, fmt.Errorf("%w: edits[%d] %s.%s%s", ErrUnknownMethod, i, c.Name, e.Method, e.Descriptor)
	}

	v.logger.Info("verified edits",
		slog.String("class", c.Name),
		slog.Int("edits", len(req.Edits)))
	return bytes.Clone(req.ClassBytes), nil
}

func declares(c *classfile.Class, name, descriptor string) bool {
	for _, m := range c.DeclaredMethods(name) {
		if m.Descriptor == descriptor {
			return true
		}
	}
	return false
}
