// internal/rules/store_test.go
package rules

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/weaver/internal/types"
)

const storeConfig = `
# method rules
android.app.Activity.onCreate   before  'log($1);'
android.app.Activity.onResume   after   'b();'
android.app.Activity.onCreate   after   'c();'
android.app.Fragment.onStart    finally 'd();'

# annotation rules
akha.yakhont.LogDebug._D   before  'e();'
akha.yakhont.LogDebug.     before  'f();'
akha.yakhont.LogDebug._D   after   'g();'
`

func buildStore(t *testing.T, config string) (*Store, []types.Warning) {
	t.Helper()
	b := NewBuilder(nil)
	require.NoError(t, b.AddReader("test.config", strings.NewReader(config)))
	warnings := b.Warnings()
	return b.Build(), warnings
}

func TestStore_PreservesDeclarationOrder(t *testing.T) {
	s, warnings := buildStore(t, storeConfig)
	assert.Empty(t, warnings)
	assert.Equal(t, 7, s.Len())
	assert.False(t, s.Empty())

	owners := s.Owners()
	require.Len(t, owners, 2)
	assert.Equal(t, "android.app.Activity", owners[0].Owner)
	assert.Equal(t, "android.app.Fragment", owners[1].Owner)

	activity := owners[0]
	require.Len(t, activity.Methods, 2)
	assert.Equal(t, "onCreate", activity.Methods[0].Selector.Name)
	assert.Equal(t, "onResume", activity.Methods[1].Selector.Name)

	onCreate := activity.Methods[0].Rules
	require.Len(t, onCreate, 2)
	assert.Equal(t, "log($1);", onCreate[0].Code)
	assert.Equal(t, 0, onCreate[0].Index)
	assert.Equal(t, "c();", onCreate[1].Code)
	assert.Equal(t, 2, onCreate[1].Index)
	assert.Equal(t, 3, onCreate[0].Source.Line)

	anns := s.Annotations()
	require.Len(t, anns, 1)
	require.Len(t, anns[0].Conditions, 2)
	assert.Equal(t, types.ConditionDebug, anns[0].Conditions[0].Condition)
	assert.Equal(t, []string{"e();", "g();"}, codes(anns[0].Conditions[0].Rules))
	assert.Equal(t, types.ConditionNotDefined, anns[0].Conditions[1].Condition)
}

func TestStore_KeepsDuplicates(t *testing.T) {
	s, _ := buildStore(t, "a.B.m before 'x();'\na.B.m before 'x();'\n")
	require.Len(t, s.Owners(), 1)
	assert.Len(t, s.Owners()[0].Methods[0].Rules, 2)
}

func TestStore_UnknownMarkerWarns(t *testing.T) {
	s, warnings := buildStore(t, "a.Ann._Q before 'x();'\n")
	require.Len(t, warnings, 1)
	assert.Equal(t, types.WarnUnknownCondition, warnings[0].Kind)
	assert.Equal(t, 1, warnings[0].Source.Line)
	assert.Equal(t, types.ConditionNotDefined, s.Annotations()[0].Conditions[0].Condition)
}

func TestStore_ErrorCarriesLine(t *testing.T) {
	b := NewBuilder(nil)
	err := b.AddReader("broken.config", strings.NewReader("a.B.m before 'x();'\n\nbad line here\n"))
	var cfgErr *types.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, types.Source{File: "broken.config", Line: 3}, cfgErr.Source)
	assert.ErrorIs(t, err, types.ErrInvalidSelector)
}

func TestStore_Describe(t *testing.T) {
	s, _ := buildStore(t, storeConfig)
	var buf bytes.Buffer
	require.NoError(t, s.Describe(&buf))
	out := buf.String()
	assert.Contains(t, out, "--- android.app.Activity")
	assert.Contains(t, out, "action: before, code: 'log($1);'")
	assert.Contains(t, out, "--- @akha.yakhont.LogDebug")
	assert.Contains(t, out, "(any build)")
}

func TestLoad_DefaultThenFiles(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.config")
	second := filepath.Join(dir, "second.config")
	require.NoError(t, os.WriteFile(first, []byte("a.B.m before 'one();'\n"), 0o644))
	require.NoError(t, os.WriteFile(second, []byte("a.B.m before 'two();'\n"), 0o644))

	s, warnings, err := Load(nil, true, []string{first, "", second})
	require.NoError(t, err)
	assert.Empty(t, warnings)

	require.Len(t, s.Annotations(), 1, "default config contributes the LogDebug rules")
	assert.Equal(t, "akha.yakhont.LogDebug", s.Annotations()[0].Annotation)

	require.Len(t, s.Owners(), 1)
	rules := s.Owners()[0].Methods[0].Rules
	assert.Equal(t, []string{"one();", "two();"}, codes(rules))
	assert.Less(t, rules[0].Index, rules[1].Index)
	assert.Greater(t, rules[0].Index, s.Annotations()[0].Conditions[0].Rules[0].Index)
}

func TestLoad_WithoutDefault(t *testing.T) {
	s, _, err := Load(nil, false, nil)
	require.NoError(t, err)
	assert.True(t, s.Empty())
}

func TestLoad_MissingFile(t *testing.T) {
	_, _, err := Load(nil, false, []string{filepath.Join(t.TempDir(), "nope.config")})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestDefaultConfigParses(t *testing.T) {
	b := NewBuilder(nil)
	require.NoError(t, b.AddReader(DefaultConfigName, bytes.NewReader(DefaultConfig())))
	s := b.Build()
	assert.Equal(t, 2, s.Len())
	assert.Empty(t, Validate(s, nil))
}

func codes(rules []types.Rule) []string {
	out := make([]string, len(rules))
	for i, r := range rules {
		out[i] = r.Code
	}
	return out
}
