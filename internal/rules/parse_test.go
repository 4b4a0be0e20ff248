// internal/rules/parse_test.go
package rules

import (
	"errors"
	"testing"

	"github.com/solatis/weaver/internal/types"
)

var testSource = types.Source{File: "weaver.config", Line: 7}

func TestParseLine_MethodRule(t *testing.T) {
	entry, ok, err := ParseLine(testSource, `android.app.Activity.onCreate  before  'log($1);'`)
	if err != nil {
		t.Fatalf("ParseLine() error = %v, want nil", err)
	}
	if !ok {
		t.Fatal("ParseLine() ok = false, want true")
	}
	if entry.IsAnnotation() {
		t.Fatal("IsAnnotation() = true, want false")
	}
	sel := entry.Method
	if sel.Owner != "android.app.Activity" {
		t.Errorf("Owner = %q, want android.app.Activity", sel.Owner)
	}
	if sel.Name != "onCreate" {
		t.Errorf("Name = %q, want onCreate", sel.Name)
	}
	if sel.Signature != "" || sel.IgnoreSignature {
		t.Errorf("Signature = %q IgnoreSignature = %v, want none", sel.Signature, sel.IgnoreSignature)
	}
	if entry.Rule.Action != types.ActionBefore {
		t.Errorf("Action = %v, want before", entry.Rule.Action)
	}
	if entry.Rule.Code != "log($1);" {
		t.Errorf("Code = %q, want log($1);", entry.Rule.Code)
	}
	if entry.Rule.Source != testSource {
		t.Errorf("Source = %v, want %v", entry.Rule.Source, testSource)
	}
}

func TestParseLine_Selectors(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		annotation bool
		owner      string
		member     string
		signature  string
		ignoreSig  bool
		condition  types.BuildCondition
	}{
		{
			name:       "annotation any build",
			line:       "akha.yakhont.LogDebug. before 'x();'",
			annotation: true,
			owner:      "akha.yakhont.LogDebug",
			condition:  types.ConditionNotDefined,
		},
		{
			name:       "annotation debug",
			line:       "akha.yakhont.LogDebug._D before 'x();'",
			annotation: true,
			owner:      "akha.yakhont.LogDebug",
			condition:  types.ConditionDebug,
		},
		{
			name:       "annotation release",
			line:       "akha.yakhont.LogDebug._R after 'x();'",
			annotation: true,
			owner:      "akha.yakhont.LogDebug",
			condition:  types.ConditionRelease,
		},
		{
			name:       "annotation unknown marker",
			line:       "akha.yakhont.LogDebug._X after 'x();'",
			annotation: true,
			owner:      "akha.yakhont.LogDebug",
			condition:  types.ConditionNotDefined,
		},
		{
			name:   "underscore method name is not a marker",
			line:   "a.B._init after 'x();'",
			owner:  "a.B",
			member: "_init",
		},
		{
			name:   "lower-case marker is a method name",
			line:   "com.foo.Ann._d before 'x();'",
			owner:  "com.foo.Ann",
			member: "_d",
		},
		{
			name:      "every overload",
			line:      "a.B.run() after 'x();'",
			owner:     "a.B",
			member:    "run",
			ignoreSig: true,
		},
		{
			name:      "descriptor filter with dots",
			line:      "android.app.Fragment.onActivityCreated(Landroid.os.Bundle; after 'x();'",
			owner:     "android.app.Fragment",
			member:    "onActivityCreated",
			signature: "(Landroid/os/Bundle;",
		},
		{
			name:   "wildcard owner",
			line:   "io.reactive**.Flowable.subscribe before 'x();'",
			owner:  "io.reactive**.Flowable",
			member: "subscribe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, ok, err := ParseLine(testSource, tt.line)
			if err != nil || !ok {
				t.Fatalf("ParseLine() = ok %v, error %v", ok, err)
			}
			if entry.IsAnnotation() != tt.annotation {
				t.Fatalf("IsAnnotation() = %v, want %v", entry.IsAnnotation(), tt.annotation)
			}
			if tt.annotation {
				if entry.Annotation.Annotation != tt.owner {
					t.Errorf("Annotation = %q, want %q", entry.Annotation.Annotation, tt.owner)
				}
				if entry.Annotation.Condition != tt.condition {
					t.Errorf("Condition = %v, want %v", entry.Annotation.Condition, tt.condition)
				}
				return
			}
			sel := entry.Method
			if sel.Owner != tt.owner || sel.Name != tt.member {
				t.Errorf("selector = %s.%s, want %s.%s", sel.Owner, sel.Name, tt.owner, tt.member)
			}
			if sel.Signature != tt.signature {
				t.Errorf("Signature = %q, want %q", sel.Signature, tt.signature)
			}
			if sel.IgnoreSignature != tt.ignoreSig {
				t.Errorf("IgnoreSignature = %v, want %v", sel.IgnoreSignature, tt.ignoreSig)
			}
		})
	}
}

func TestParseLine_Actions(t *testing.T) {
	tests := []struct {
		token     string
		action    types.Action
		exception string
	}{
		{"before", types.ActionBefore, ""},
		{"AFTER", types.ActionAfter, ""},
		{"finally", types.ActionAfterFinally, ""},
		{"java.io.IOException", types.ActionCatch, "java.io.IOException"},
	}

	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			entry, _, err := ParseLine(testSource, "a.B.m "+tt.token+" 'x();'")
			if err != nil {
				t.Fatalf("ParseLine() error = %v", err)
			}
			if entry.Rule.Action != tt.action {
				t.Errorf("Action = %v, want %v", entry.Rule.Action, tt.action)
			}
			if entry.Rule.ExceptionType != tt.exception {
				t.Errorf("ExceptionType = %q, want %q", entry.Rule.ExceptionType, tt.exception)
			}
		})
	}
}

func TestParseLine_Errors(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr error
	}{
		{"too few tokens", "a.B.m before", types.ErrInvalidLine},
		{"no dot in selector", "onCreate before 'x();'", types.ErrInvalidSelector},
		{"empty owner", ".m before 'x();'", types.ErrInvalidSelector},
		{"unterminated quote", `a.B.m before "x();`, types.ErrUnterminatedQuote},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseLine(testSource, tt.line)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseLine() error = %v, want %v", err, tt.wantErr)
			}
			var cfgErr *types.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("ParseLine() error type = %T, want *types.ConfigError", err)
			}
			if cfgErr.Source != testSource {
				t.Errorf("ConfigError.Source = %v, want %v", cfgErr.Source, testSource)
			}
		})
	}
}

func TestParseLine_SkipsBlankAndComment(t *testing.T) {
	for _, line := range []string{"", "   ", "# comment", "\t# indented"} {
		_, ok, err := ParseLine(testSource, line)
		if ok || err != nil {
			t.Errorf("ParseLine(%q) = ok %v, error %v; want skipped", line, ok, err)
		}
	}
}
