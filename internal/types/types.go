// Package types provides domain models shared across weaver components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so the rule parser and the class-file reader can share
// them without pulling in transport or storage deps. ID utilities in ids.go
// import uuid but are isolated for the journal and logging.
package types

import "fmt"

// BuildMode is the kind of build a run is weaving for.
type BuildMode bool

const (
	Release BuildMode = false
	Debug   BuildMode = true
)

// String returns "debug" or "release".
func (m BuildMode) String() string {
	if m == Debug {
		return "debug"
	}
	return "release"
}

// BuildCondition gates an annotation rule to a build mode.
type BuildCondition int

const (
	// ConditionNotDefined applies to every build.
	ConditionNotDefined BuildCondition = iota
	ConditionDebug
	ConditionRelease
)

// Reserved member selectors of annotation rules.
const (
	DebugMarker   = "_D"
	ReleaseMarker = "_R"
)

// String returns the config-file spelling of the condition.
func (c BuildCondition) String() string {
	switch c {
	case ConditionDebug:
		return DebugMarker
	case ConditionRelease:
		return ReleaseMarker
	default:
		return ""
	}
}

// Applies reports whether rules under c are active for a build in mode m.
func (c BuildCondition) Applies(m BuildMode) bool {
	switch c {
	case ConditionDebug:
		return m == Debug
	case ConditionRelease:
		return m == Release
	default:
		return true
	}
}

// Source locates a config line, used for error context.
type Source struct {
	File string // "<default>" for the embedded config
	Line int    // 1-based
}

func (s Source) String() string {
	return fmt.Sprintf("%s:%d", s.File, s.Line)
}
