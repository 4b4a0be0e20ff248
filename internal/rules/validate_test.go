// internal/rules/validate_test.go
package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/weaver/internal/types"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		config string
		want   int
	}{
		{
			name:   "no duplicates",
			config: storeConfig,
			want:   0,
		},
		{
			name:   "exact duplicate",
			config: "a.B.m before 'x();'\na.B.m before 'x();'\n",
			want:   1,
		},
		{
			name:   "whitespace differences are still duplicates",
			config: "a.B.m before 'x();   y();'\na.B.m before 'x(); y();'\n",
			want:   1,
		},
		{
			name:   "different action is not a duplicate",
			config: "a.B.m before 'x();'\na.B.m after 'x();'\n",
			want:   0,
		},
		{
			name:   "different catch type is not a duplicate",
			config: "a.B.m java.io.IOException 'x();'\na.B.m java.lang.Exception 'x();'\n",
			want:   0,
		},
		{
			name:   "different selector is not a duplicate",
			config: "a.B.m before 'x();'\na.B.n before 'x();'\n",
			want:   0,
		},
		{
			name:   "triplicate annotation rule",
			config: "a.Ann._D after 'x();'\na.Ann._D after 'x();'\na.Ann._D after 'x();'\n",
			want:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := buildStore(t, tt.config)
			warnings := Validate(s, nil)
			require.Len(t, warnings, tt.want)
			for _, w := range warnings {
				assert.Equal(t, types.WarnDuplicateRule, w.Kind)
			}
		})
	}
}

func TestValidate_DoesNotModifyStore(t *testing.T) {
	s, _ := buildStore(t, "a.B.m before 'x();'\na.B.m before 'x();'\n")
	before := s.Len()
	Validate(s, nil)
	assert.Equal(t, before, s.Len())
	assert.Len(t, s.Owners()[0].Methods[0].Rules, 2)
}

func TestValidate_ReportsLaterDeclaration(t *testing.T) {
	s, _ := buildStore(t, "a.B.m before 'x();'\n\na.B.m before 'x();'\n")
	warnings := Validate(s, nil)
	require.Len(t, warnings, 1)
	assert.Equal(t, 3, warnings[0].Source.Line)
	assert.Contains(t, warnings[0].Message, "test.config:1")
}
