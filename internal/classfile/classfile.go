// Package classfile reads the metadata of compiled JVM classes.
//
// Only what weaving needs is decoded: access flags, this/super/interfaces,
// and methods with their descriptors, declared exceptions and annotations.
// Code, fields and class-level attributes are skipped. Raw bytes are kept so
// a class can be handed to a bytecode editor unchanged.
package classfile

import (
	"strings"
)

// Access flags (JVMS 4.1, 4.6).
const (
	AccPublic       uint16 = 0x0001
	AccPrivate      uint16 = 0x0002
	AccProtected    uint16 = 0x0004
	AccStatic       uint16 = 0x0008
	AccFinal        uint16 = 0x0010
	AccSynchronized uint16 = 0x0020
	AccBridge       uint16 = 0x0040
	AccVarargs      uint16 = 0x0080
	AccNative       uint16 = 0x0100
	AccInterface    uint16 = 0x0200
	AccAbstract     uint16 = 0x0400
	AccStrict       uint16 = 0x0800
	AccSynthetic    uint16 = 0x1000
	AccAnnotation   uint16 = 0x2000
	AccEnum         uint16 = 0x4000
)

// ObjectClass is the root of every superclass chain.
const ObjectClass = "java.lang.Object"

// Modifiers is a method or class access flag set.
type Modifiers uint16

// Has reports whether every bit of flag is set.
func (m Modifiers) Has(flag uint16) bool {
	return uint16(m)&flag == flag
}

// String renders the Java source modifiers in canonical order.
func (m Modifiers) String() string {
	var parts []string
	for _, f := range []struct {
		flag uint16
		name string
	}{
		{AccPublic, "public"},
		{AccProtected, "protected"},
		{AccPrivate, "private"},
		{AccAbstract, "abstract"},
		{AccStatic, "static"},
		{AccFinal, "final"},
		{AccSynchronized, "synchronized"},
		{AccNative, "native"},
		{AccStrict, "strictfp"},
	} {
		if m.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, " ")
}

// Class is the metadata of one compiled class.
type Class struct {
	Name       string // binary name, e.g. "com.foo.Outer$Inner"
	SuperName  string // empty for java.lang.Object and module-info
	Interfaces []string
	Access     Modifiers
	Methods    []*Method
	Major      uint16
	Minor      uint16
	Raw        []byte // bytes the class was parsed from
}

// IsInterface reports whether the class is an interface or annotation type.
func (c *Class) IsInterface() bool {
	return c.Access.Has(AccInterface)
}

// DeclaredMethods returns the methods named name, in class-file order.
// Initializers and compiler-generated methods are never returned.
func (c *Class) DeclaredMethods(name string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Name == name && !m.IsInitializer() && !m.IsGenerated() {
			out = append(out, m)
		}
	}
	return out
}

// DeclaredMethod finds a method by name and parameter descriptor, the
// "(...)" part of the full descriptor. Bridges share the parameters of the
// method they forward to and are ignored.
func (c *Class) DeclaredMethod(name, params string) (*Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name && m.ParamDescriptor() == params && !m.IsGenerated() {
			return m, true
		}
	}
	return nil, false
}

// Method is the metadata of one declared method.
type Method struct {
	Name        string
	Descriptor  string // e.g. "(Landroid/os/Bundle;)V"
	Access      Modifiers
	Params      []Type
	Return      Type
	Exceptions  []string // binary names from the Exceptions attribute
	Annotations []string // binary names, visible and invisible
}

// IsInitializer reports whether the method is <init> or <clinit>.
func (m *Method) IsInitializer() bool {
	return m.Name == "<init>" || m.Name == "<clinit>"
}

// IsGenerated reports whether the method is a bridge or otherwise
// synthetic, i.e. not present in source.
func (m *Method) IsGenerated() bool {
	return m.Access&Modifiers(AccBridge|AccSynthetic) != 0
}

// ParamDescriptor returns the "(...)" part of the descriptor.
func (m *Method) ParamDescriptor() string {
	if i := strings.IndexByte(m.Descriptor, ')'); i >= 0 {
		return m.Descriptor[:i+1]
	}
	return m.Descriptor
}

// HasAnnotation reports whether the method carries the annotation.
func (m *Method) HasAnnotation(name string) bool {
	for _, a := range m.Annotations {
		if a == name {
			return true
		}
	}
	return false
}

// LongName renders "owner.name(T1,T2)" for logs.
func (m *Method) LongName(owner string) string {
	params := make([]string, len(m.Params))
	for i, p := range m.Params {
		params[i] = p.SourceName()
	}
	return owner + "." + m.Name + "(" + strings.Join(params, ",") + ")"
}
