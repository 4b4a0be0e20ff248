package weave

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/solatis/weaver/internal/classfile"
	"github.com/solatis/weaver/internal/classfile/classfiletest"
	"github.com/solatis/weaver/internal/rules"
	"github.com/solatis/weaver/internal/types"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activityFixture() *classfiletest.Class {
	return classfiletest.NewClass("android.app.Activity").
		Method(classfiletest.Public, "<init>", "()V").
		Method(classfiletest.Protected, "onCreate", "(Landroid/os/Bundle;)V").
		Method(classfiletest.Protected, "onResume", "()V").
		Method(classfiletest.Public|classfiletest.Synchronized, "getTitle", "()Ljava/lang/CharSequence;",
			classfiletest.Throws("java.io.IOException")).
		Method(classfiletest.Public|classfiletest.Final, "findViewById", "(I)Landroid/view/View;").
		Method(classfiletest.Public|classfiletest.Static, "staticHelper", "()V").
		Method(classfiletest.Private, "secret", "()I")
}

func myActivityFixture() *classfiletest.Class {
	return classfiletest.NewClass("com.app.MyActivity").Extends("android.app.Activity").
		Method(classfiletest.Public, "<init>", "()V")
}

// poolOf returns a pool holding the given classes and nothing else.
func poolOf(t *testing.T, classes ...*classfiletest.Class) *classfile.Pool {
	t.Helper()
	pool, err := classfile.NewPool(nil)
	require.NoError(t, err)
	for _, c := range classes {
		parsed, err := classfile.Parse(c.Bytes())
		require.NoError(t, err)
		pool.Add(parsed)
	}
	t.Cleanup(func() { pool.Close() })
	return pool
}

func targetOf(t *testing.T, pool *classfile.Pool, name string) *Target {
	t.Helper()
	c, ok, err := pool.Lookup(name)
	require.NoError(t, err)
	require.True(t, ok, "class %s not in pool", name)
	return NewTarget(c, "/classes/"+classfile.InternalName(name)+".class", "/classes")
}

func storeOf(t *testing.T, config string) *rules.Store {
	t.Helper()
	b := rules.NewBuilder(nil)
	require.NoError(t, b.AddReader("test.config", strings.NewReader(config)))
	return b.Build()
}

func ruleOf(t *testing.T, line string) types.Rule {
	t.Helper()
	entry, ok, err := rules.ParseLine(types.Source{File: "test.config", Line: 1}, line)
	require.NoError(t, err)
	require.True(t, ok)
	return entry.Rule
}

func methodOf(t *testing.T, c *classfiletest.Class, name, params string) *classfile.Method {
	t.Helper()
	parsed, err := classfile.Parse(c.Bytes())
	require.NoError(t, err)
	m, ok := parsed.DeclaredMethod(name, params)
	require.True(t, ok, "method %s%s not declared", name, params)
	return m
}

func bodyOf(t *testing.T, target *Target, name, params string) *MethodBody {
	t.Helper()
	b, ok := target.Method(name, params)
	require.True(t, ok, "method %s%s not on target", name, params)
	return b
}

// markingSerializer appends a marker to the original bytes so every
// modified class differs from its input. identity returns the input.
type markingSerializer struct {
	identity bool
	calls    int
}

func (s *markingSerializer) Serialize(_ context.Context, t *Target) ([]byte, error) {
	s.calls++
	if s.identity {
		return bytes.Clone(t.Class.Raw), nil
	}
	out := bytes.Clone(t.Class.Raw)
	for _, e := range t.Edits() {
		out = append(out, string(e.Kind)...)
	}
	return out, nil
}

type recordingObserver struct {
	mu      sync.Mutex
	states  []State
	classes []ClassResult
}

func (o *recordingObserver) StateChanged(_ types.RunID, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) ClassDone(_ types.RunID, r ClassResult, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.classes = append(o.classes, r)
}
