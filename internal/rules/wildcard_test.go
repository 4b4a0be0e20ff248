// internal/rules/wildcard_test.go
package rules

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"onCreate", "onCreate", true},
		{"on*", "onCreate", true},
		{"on*", "on", true},
		{"*Create", "onCreate", true},
		{"on?reate", "onCreate", true},
		{"on?reate", "onCCreate", false},
		{"*", "", true},
		{"?", "", false},
		{"a*b*c", "axxbyyc", true},
		{"a*b*c", "axxbyy", false},
		{"onResume", "onCreate", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.name, func(t *testing.T) {
			if got := Match(tt.pattern, tt.name); got != tt.want {
				t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
			}
		})
	}
}

func TestMatchClass(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"android.app.Activity", "android.app.Activity", true},
		{"android.app.Activity", "android.app.ActivityGroup", false},
		{"android.app.*", "android.app.Activity", true},
		{"android.app.*", "android.app.ui.Activity", false},
		{"android.*.Activity", "android.app.Activity", true},
		{"android.app.Activit?", "android.app.Activity", true},
		{"io.reactive**", "io.reactivex.rxjava3.core.Flowable", true},
		{"io.reactive**", "io.reactivex", true},
		{"io.reactive**.Flowable", "io.reactivex.rxjava3.core.Flowable", true},
		{"io.reactive**.Flowable", "io.reactivex.rxjava3.core.Observable", false},
		{"**.Flowable", "io.reactivex.Flowable", true},
		{"**.Flowable", "Flowable", false},
		{"a..b", "a..b", true},
		{"a.*.b", "a..b", true},
		{"", "a.B", false},
		{"*", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"~"+tt.name, func(t *testing.T) {
			if got := MatchClass(tt.pattern, tt.name); got != tt.want {
				t.Errorf("MatchClass(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
			}
		})
	}
}

func TestHasWildcard(t *testing.T) {
	if HasWildcard("android.app.Activity") {
		t.Error("HasWildcard(plain) = true")
	}
	if !HasWildcard("android.*") || !HasWildcard("on?") {
		t.Error("HasWildcard(pattern) = false")
	}
}

func TestMatch_PropertyLiteralAlwaysMatchesItself(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a name without wildcards matches itself and '*'", prop.ForAll(
		func(name string) bool {
			return Match(name, name) && Match("*", name) && MatchClass(name, name) == (name != "")
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
