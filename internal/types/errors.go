package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for weaver operations.
var (
	// ErrInvalidLine indicates a config line with fewer than three tokens.
	ErrInvalidLine = errors.New("invalid config line")

	// ErrUnterminatedQuote indicates a quoted run without its closing quote.
	ErrUnterminatedQuote = errors.New("unterminated quoted token")

	// ErrInvalidSelector indicates an owner.member token without a dot.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrClassNotFound indicates a rule's declaring class is not on any path.
	ErrClassNotFound = errors.New("can not find class")

	// ErrUnknownAction indicates an edit kind the serializer does not know.
	ErrUnknownAction = errors.New("unknown action")

	// ErrOverrideConstraint indicates an attempt to override a static, final
	// or private method.
	ErrOverrideConstraint = errors.New("can not override static, final or private method")

	// ErrNotClassFile indicates bytes without the 0xCAFEBABE magic.
	ErrNotClassFile = errors.New("not a class file")

	// ErrMalformedClass indicates a truncated or inconsistent class file.
	ErrMalformedClass = errors.New("malformed class file")

	// ErrNoSerializer indicates a run with neither an editor nor dry-run.
	ErrNoSerializer = errors.New("no bytecode editor configured")
)

// ConfigError is a fatal problem with a config line or the classes it names.
type ConfigError struct {
	Source   Source
	Selector string // owner.member token, when known
	Class    string // class being woven, when the error surfaced during weaving
	Err      error
}

func (e *ConfigError) Error() string {
	msg := e.Err.Error()
	if e.Selector != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Selector)
	}
	if e.Class != "" {
		msg = fmt.Sprintf("%s (weaving %s)", msg, e.Class)
	}
	if e.Source.File != "" {
		return fmt.Sprintf("%s: %s", e.Source, msg)
	}
	return msg
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// OverrideConstraintError reports a rule that would need to override a
// method the JVM does not allow to be overridden.
type OverrideConstraintError struct {
	Class      string // class being woven
	Owner      string // declaring class of the method
	Method     string
	Descriptor string
	Modifiers  string // offending modifiers, e.g. "static final"
	Source     Source
}

func (e *OverrideConstraintError) Error() string {
	return fmt.Sprintf("%s: can not override %s.%s%s in %s 'cause it's %s",
		e.Source, e.Owner, e.Method, e.Descriptor, e.Class, e.Modifiers)
}

func (e *OverrideConstraintError) Unwrap() error {
	return ErrOverrideConstraint
}

// WarningKind classifies non-fatal findings.
type WarningKind string

const (
	WarnDuplicateRule    WarningKind = "duplicate_rule"
	WarnAmbiguousMethod  WarningKind = "ambiguous_method"
	WarnUnknownCondition WarningKind = "unknown_condition"
	WarnEmptyRun         WarningKind = "empty_run"
)

// Warning is a logged, non-fatal problem (ResolutionWarning or
// EmptyRunWarning).
type Warning struct {
	Kind    WarningKind
	Message string
	Source  Source
}

func (w Warning) String() string {
	if w.Source.File == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return fmt.Sprintf("%s: %s: %s", w.Source, w.Kind, w.Message)
}
