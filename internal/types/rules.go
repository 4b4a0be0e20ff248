// internal/types/rules.go
package types

import (
	"fmt"
	"strings"
)

/*
 * Domain types for weaving rules.
 *
 * A config line becomes an Entry: either a method rule (owner class plus a
 * method selector) or an annotation rule (annotation name plus a build
 * condition), both carrying one Rule. Rules are values and never change after
 * parsing; ordering lives in the rule store, which keeps declaration order.
 *
 * Key types:
 *   - Action: where a snippet goes relative to the existing method logic
 *   - Rule: action + snippet + declaration index + source location
 *   - MethodSelector: owner, method name, optional descriptor prefix
 *   - AnnotationSelector: annotation name + build condition
 */

// Action selects where a snippet is inserted.
type Action int

const (
	ActionBefore Action = iota
	ActionAfter
	ActionAfterFinally
	ActionCatch
)

// String returns the config-file spelling of the action.
func (a Action) String() string {
	switch a {
	case ActionBefore:
		return "before"
	case ActionAfter:
		return "after"
	case ActionAfterFinally:
		return "finally"
	case ActionCatch:
		return "catch"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ParseAction maps the second config token to an action. Tokens other than
// before/after/finally name the exception type of a catch handler.
func ParseAction(token string) (Action, string) {
	switch strings.ToLower(token) {
	case "before":
		return ActionBefore, ""
	case "after":
		return ActionAfter, ""
	case "finally":
		return ActionAfterFinally, ""
	default:
		return ActionCatch, token
	}
}

// Rule is one configured injection.
type Rule struct {
	Action        Action
	ActionToken   string // second config token as written
	ExceptionType string // caught type, ActionCatch only
	Code          string // whitespace-normalized snippet
	Index         int    // declaration order across all config sources
	Source        Source
}

// Key identifies a rule for duplicate detection; the index and source are
// excluded.
func (r Rule) Key() string {
	return fmt.Sprintf("%d|%s|%s", r.Action, r.ExceptionType, r.Code)
}

// String describes the rule the way `weaver check` prints it.
func (r Rule) String() string {
	if r.Action == ActionCatch {
		return fmt.Sprintf("action: catch %s, code: '%s'", r.ExceptionType, r.Code)
	}
	return fmt.Sprintf("action: %s, code: '%s'", r.Action, r.Code)
}

// MethodSelector names the method a method rule targets.
type MethodSelector struct {
	Owner           string // declaring class, may contain wildcards
	Name            string // method name, may contain wildcards
	Signature       string // JVM descriptor prefix, e.g. "(Landroid/os/Bundle;"
	IgnoreSignature bool   // "name()" form: every overload, no ambiguity report
	Raw             string // member token as written, used as store key
}

// AnnotationSelector names the annotation an annotation rule targets.
type AnnotationSelector struct {
	Annotation string
	Condition  BuildCondition
	Marker     string // member token as written; non-empty but unknown means NOT_DEFINED fallback
}

// Entry is one parsed config line. Exactly one of Method and Annotation is
// set.
type Entry struct {
	Method     *MethodSelector
	Annotation *AnnotationSelector
	Rule       Rule
}

// IsAnnotation reports whether the entry is an annotation rule.
func (e Entry) IsAnnotation() bool {
	return e.Annotation != nil
}
