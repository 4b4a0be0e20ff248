package weave

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/weaver/internal/classfile/classfiletest"
)

func TestCandidateFor(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		pkg      string
		wantOK   bool
		wantRoot string
		wantName string
	}{
		{"direct", "/r/com/app/A.class", "com/app", true, "/r", "com.app.A"},
		{"sub-package under nested root", "/r/build/com/app/sub/B.class", "com/app", true, "/r/build", "com.app.sub.B"},
		{"sibling prefix rejected", "/r/com/foobar/C.class", "com/foo", false, "", ""},
		{"outside package", "/r/org/x/D.class", "com/app", false, "", ""},
		{"module-info", "/r/com/app/module-info.class", "com/app", false, "", ""},
		{"package-info", "/r/com/app/package-info.class", "com/app", false, "", ""},
		{"empty package accepts everything", "/r/x/Y.class", "", true, "/r", "x.Y"},
		{"inner class", "/r/com/app/Outer$Inner.class", "com/app", true, "/r", "com.app.Outer$Inner"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, ok := candidateFor(filepath.FromSlash(tt.path), filepath.FromSlash("/r"), tt.pkg)
			assert.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, filepath.FromSlash(tt.wantRoot), c.Root)
			assert.Equal(t, tt.wantName, c.Name)
			assert.Equal(t, filepath.FromSlash(tt.path), c.Path)
		})
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"com.app.Main",
		"com.app.ui.Screen",
		"com.foobar.Other",
		"org.lib.Helper",
	} {
		_, err := classfiletest.NewClass(name).WriteTo(filepath.Join(dir, "build", "classes"))
		require.NoError(t, err)
	}
	canonical, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	classRoot := filepath.Join(canonical, "build", "classes")

	var got []Candidate
	err = Scan(context.Background(), discardLogger(), []string{dir}, "com.app", func(c Candidate) error {
		got = append(got, c)
		return nil
	})
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "com.app.Main", got[0].Name)
	assert.Equal(t, classRoot, got[0].Root)
	assert.Equal(t, filepath.Join(classRoot, "com", "app", "Main.class"), got[0].Path)
	assert.Equal(t, "com.app.ui.Screen", got[1].Name)
	assert.Equal(t, classRoot, got[1].Root)
}

func TestScan_StopsAtCallbackError(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"com.app.A", "com.app.B"} {
		_, err := classfiletest.NewClass(name).WriteTo(dir)
		require.NoError(t, err)
	}

	boom := errors.New("boom")
	calls := 0
	err := Scan(context.Background(), discardLogger(), []string{dir}, "", func(Candidate) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}
