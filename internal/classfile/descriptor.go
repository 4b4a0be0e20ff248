package classfile

import (
	"fmt"
	"strings"

	"github.com/solatis/weaver/internal/types"
)

// Type is a field type decoded from a descriptor.
type Type struct {
	Name string // binary element name: "int", "java.lang.String", "com.foo.A$B"
	Dims int    // array dimensions
}

var primitives = map[byte]string{
	'B': "byte",
	'C': "char",
	'D': "double",
	'F': "float",
	'I': "int",
	'J': "long",
	'S': "short",
	'Z': "boolean",
	'V': "void",
}

// IsVoid reports whether the type is the void return type.
func (t Type) IsVoid() bool {
	return t.Dims == 0 && t.Name == "void"
}

// IsPrimitive reports whether the type is a non-array primitive.
func (t Type) IsPrimitive() bool {
	if t.Dims != 0 {
		return false
	}
	for _, p := range primitives {
		if p == t.Name {
			return p != "void"
		}
	}
	return false
}

// SourceName renders the type the way Java source spells it: nested class
// separators become dots and arrays get "[]" suffixes.
func (t Type) SourceName() string {
	return strings.ReplaceAll(t.Name, "$", ".") + strings.Repeat("[]", t.Dims)
}

// ZeroValue returns a source literal assignable to a local of this type.
func (t Type) ZeroValue() string {
	switch {
	case !t.IsPrimitive():
		return "null"
	case t.Name == "boolean":
		return "false"
	default:
		return "0"
	}
}

// ParseMethodDescriptor decodes "(params)return".
func ParseMethodDescriptor(desc string) (params []Type, ret Type, err error) {
	if len(desc) < 3 || desc[0] != '(' {
		return nil, Type{}, fmt.Errorf("%w: method descriptor %q", types.ErrMalformedClass, desc)
	}
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, n, err := parseFieldType(desc[i:])
		if err != nil {
			return nil, Type{}, fmt.Errorf("%w in %q", err, desc)
		}
		params = append(params, t)
		i += n
	}
	if i >= len(desc) {
		return nil, Type{}, fmt.Errorf("%w: unterminated descriptor %q", types.ErrMalformedClass, desc)
	}
	ret, n, err := parseFieldType(desc[i+1:])
	if err != nil {
		return nil, Type{}, fmt.Errorf("%w in %q", err, desc)
	}
	if i+1+n != len(desc) {
		return nil, Type{}, fmt.Errorf("%w: trailing data in descriptor %q", types.ErrMalformedClass, desc)
	}
	return params, ret, nil
}

// parseFieldType decodes one field type and returns its length.
func parseFieldType(s string) (Type, int, error) {
	dims := 0
	for dims < len(s) && s[dims] == '[' {
		dims++
	}
	if dims >= len(s) {
		return Type{}, 0, fmt.Errorf("%w: truncated field type", types.ErrMalformedClass)
	}
	c := s[dims]
	if name, ok := primitives[c]; ok {
		if c == 'V' && dims > 0 {
			return Type{}, 0, fmt.Errorf("%w: void array", types.ErrMalformedClass)
		}
		return Type{Name: name, Dims: dims}, dims + 1, nil
	}
	if c != 'L' {
		return Type{}, 0, fmt.Errorf("%w: unknown type tag %q", types.ErrMalformedClass, c)
	}
	end := strings.IndexByte(s[dims:], ';')
	if end < 0 {
		return Type{}, 0, fmt.Errorf("%w: unterminated class type", types.ErrMalformedClass)
	}
	internal := s[dims+1 : dims+end]
	return Type{Name: BinaryName(internal), Dims: dims}, dims + end + 1, nil
}

// BinaryName converts an internal name ("a/b/C$D") to a binary one ("a.b.C$D").
func BinaryName(internal string) string {
	return strings.ReplaceAll(internal, "/", ".")
}

// InternalName converts a binary name to its internal form.
func InternalName(binary string) string {
	return strings.ReplaceAll(binary, ".", "/")
}

// Descriptor renders a method descriptor from types, used by tests and
// fixtures.
func Descriptor(params []Type, ret Type) string {
	var b strings.Builder
	b.WriteByte('(')
	for _, p := range params {
		b.WriteString(fieldDescriptor(p))
	}
	b.WriteByte(')')
	b.WriteString(fieldDescriptor(ret))
	return b.String()
}

func fieldDescriptor(t Type) string {
	prefix := strings.Repeat("[", t.Dims)
	for tag, name := range primitives {
		if name == t.Name {
			return prefix + string(tag)
		}
	}
	return prefix + "L" + InternalName(t.Name) + ";"
}
