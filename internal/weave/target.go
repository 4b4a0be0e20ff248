package weave

import (
	"fmt"
	"strings"

	"github.com/solatis/weaver/internal/classfile"
	"github.com/solatis/weaver/internal/types"
)

// EditKind names one bytecode edit handed to a ClassSerializer.
type EditKind string

const (
	EditAddMethod    EditKind = "add_method"
	EditInsertBefore EditKind = "insert_before"
	EditInsertAfter  EditKind = "insert_after"
	EditFinally      EditKind = "insert_finally"
	EditAddCatch     EditKind = "add_catch"
)

// ExceptionVar is how snippets woven into an existing method refer to the
// caught exception.
const ExceptionVar = "$e"

// Edit is one recorded change to a class. Edits are replayed by the
// serializer in order.
type Edit struct {
	Kind          EditKind     `yaml:"kind"`
	Method        string       `yaml:"method"`
	Descriptor    string       `yaml:"descriptor"`
	Code          string       `yaml:"code"`
	ExceptionType string       `yaml:"exception_type,omitempty"`
	ExceptionVar  string       `yaml:"exception_var,omitempty"`
	Rule          int          `yaml:"rule"`
	Source        types.Source `yaml:"-"`
}

// MethodBody is the source-level view of a woven method. Synthesized methods
// carry a full declaration; compiled methods stand in for their existing
// body with a marker statement.
type MethodBody struct {
	Name        string
	Descriptor  string
	Synthesized bool

	decl       string
	resultDecl string
	stmts      string
	ret        string
}

const originalBody = "/* original body */"

func compiledBody(m *classfile.Method) *MethodBody {
	return &MethodBody{Name: m.Name, Descriptor: m.Descriptor, stmts: originalBody}
}

// Source renders the method. Statements appear in execution order.
func (b *MethodBody) Source() string {
	parts := make([]string, 0, 5)
	if b.decl != "" {
		parts = append(parts, b.decl)
	}
	parts = append(parts, "{")
	for _, p := range []string{b.resultDecl, b.stmts, b.ret} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, "}")
	return collapseSpaces(strings.Join(parts, " "))
}

// Body renders only the statements between the braces.
func (b *MethodBody) Body() string {
	return collapseSpaces(strings.Join(nonEmpty(b.resultDecl, b.stmts, b.ret), " "))
}

func (b *MethodBody) insertBefore(code string) {
	b.stmts = code + " " + b.stmts
}

func (b *MethodBody) insertAfter(code string) {
	b.stmts = b.stmts + " " + code
}

func (b *MethodBody) insertFinally(code string) {
	b.stmts = "try { " + b.stmts + " } finally { " + code + " }"
}

func (b *MethodBody) addCatch(exceptionType, varName, code string) {
	b.stmts = "try { " + b.stmts + " } catch (" + exceptionType + " " + varName + ") { " + code + " }"
}

// Target is a class being woven. It records every edit in order and keeps a
// source-level view of each touched method; the compiled class itself is
// never modified.
type Target struct {
	Class *classfile.Class
	Path  string // class file on disk
	Root  string // classes root directory the file was found under

	bodies []*MethodBody
	index  map[string]*MethodBody
	edits  []Edit
}

// NewTarget wraps a parsed class.
func NewTarget(c *classfile.Class, path, root string) *Target {
	return &Target{Class: c, Path: path, Root: root, index: make(map[string]*MethodBody)}
}

// Name returns the binary class name.
func (t *Target) Name() string {
	return t.Class.Name
}

// Modified reports whether any method was added or changed.
func (t *Target) Modified() bool {
	return len(t.edits) > 0
}

// Edits returns the recorded edits in application order.
func (t *Target) Edits() []Edit {
	return t.edits
}

// Bodies returns every touched method in first-touch order.
func (t *Target) Bodies() []*MethodBody {
	return t.bodies
}

func methodKey(name, params string) string {
	return name + params
}

// Method returns the method with this name and parameter descriptor if the
// class declares it or it was added earlier in the run.
func (t *Target) Method(name, params string) (*MethodBody, bool) {
	key := methodKey(name, params)
	if b, ok := t.index[key]; ok {
		return b, true
	}
	m, ok := t.Class.DeclaredMethod(name, params)
	if !ok {
		return nil, false
	}
	b := compiledBody(m)
	t.index[key] = b
	t.bodies = append(t.bodies, b)
	return b, true
}

// AddMethod records a synthesized override.
func (t *Target) AddMethod(b *MethodBody, rule types.Rule) {
	key := methodKey(b.Name, paramsOf(b.Descriptor))
	t.index[key] = b
	t.bodies = append(t.bodies, b)
	t.edits = append(t.edits, Edit{
		Kind:       EditAddMethod,
		Method:     b.Name,
		Descriptor: b.Descriptor,
		Code:       b.Source(),
		Rule:       rule.Index,
		Source:     rule.Source,
	})
}

// Insert weaves a rule's snippet into an existing method body. Only $method
// is expanded here; argument and exception placeholders are left for the
// bytecode editor, which knows the method's locals.
func (t *Target) Insert(b *MethodBody, rule types.Rule) error {
	code := expandMethodName(rule.Code, b.Name)
	e := Edit{
		Method:     b.Name,
		Descriptor: b.Descriptor,
		Code:       code,
		Rule:       rule.Index,
		Source:     rule.Source,
	}
	switch rule.Action {
	case types.ActionBefore:
		e.Kind = EditInsertBefore
		b.insertBefore(code)
	case types.ActionAfter:
		e.Kind = EditInsertAfter
		b.insertAfter(code)
	case types.ActionAfterFinally:
		e.Kind = EditFinally
		b.insertFinally(code)
	case types.ActionCatch:
		e.Kind = EditAddCatch
		e.ExceptionType = rule.ExceptionType
		e.ExceptionVar = ExceptionVar
		b.addCatch(rule.ExceptionType, ExceptionVar, code)
	default:
		return &types.ConfigError{Source: rule.Source, Selector: rule.ActionToken, Class: t.Name(), Err: types.ErrUnknownAction}
	}
	t.edits = append(t.edits, e)
	return nil
}

func paramsOf(descriptor string) string {
	if i := strings.IndexByte(descriptor, ')'); i >= 0 {
		return descriptor[:i+1]
	}
	return descriptor
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func (e Edit) String() string {
	if e.Kind == EditAddCatch {
		return fmt.Sprintf("%s %s%s catch %s: %s", e.Kind, e.Method, e.Descriptor, e.ExceptionType, e.Code)
	}
	return fmt.Sprintf("%s %s%s: %s", e.Kind, e.Method, e.Descriptor, e.Code)
}
