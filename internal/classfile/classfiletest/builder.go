// Package classfiletest builds class-file bytes for tests.
package classfiletest

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Access flags used by fixtures.
const (
	Public       uint16 = 0x0001
	Private      uint16 = 0x0002
	Protected    uint16 = 0x0004
	Static       uint16 = 0x0008
	Final        uint16 = 0x0010
	Synchronized uint16 = 0x0020
	Super        uint16 = 0x0020
	Bridge       uint16 = 0x0040
	Interface    uint16 = 0x0200
	Abstract     uint16 = 0x0400
	Strict       uint16 = 0x0800
	Synthetic    uint16 = 0x1000
)

// Class accumulates a class definition.
type Class struct {
	name       string
	super      string
	access     uint16
	interfaces []string
	fields     [][2]string
	methods    []*method
	longs      []int64
}

type method struct {
	access      uint16
	name        string
	desc        string
	throws      []string
	annotations []annotation
	invisible   []annotation
}

type annotation struct {
	name   string
	values map[string]string
}

// MethodOption configures a method.
type MethodOption func(*method)

// Throws adds an Exceptions attribute.
func Throws(classes ...string) MethodOption {
	return func(m *method) { m.throws = append(m.throws, classes...) }
}

// Annotated adds runtime-visible annotations without elements.
func Annotated(names ...string) MethodOption {
	return func(m *method) {
		for _, n := range names {
			m.annotations = append(m.annotations, annotation{name: n})
		}
	}
}

// AnnotatedWith adds a runtime-visible annotation with string elements.
func AnnotatedWith(name string, values map[string]string) MethodOption {
	return func(m *method) { m.annotations = append(m.annotations, annotation{name: name, values: values}) }
}

// InvisiblyAnnotated adds class-retention annotations.
func InvisiblyAnnotated(names ...string) MethodOption {
	return func(m *method) {
		for _, n := range names {
			m.invisible = append(m.invisible, annotation{name: n})
		}
	}
}

// NewClass starts a public class extending java.lang.Object. Names are
// binary names, e.g. "com.foo.Outer$Inner".
func NewClass(name string) *Class {
	return &Class{name: name, super: "java.lang.Object", access: Public | Super}
}

// Extends sets the superclass. An empty name leaves no superclass.
func (c *Class) Extends(name string) *Class {
	c.super = name
	return c
}

// Access replaces the class access flags.
func (c *Class) Access(flags uint16) *Class {
	c.access = flags
	return c
}

// Implements adds interfaces.
func (c *Class) Implements(names ...string) *Class {
	c.interfaces = append(c.interfaces, names...)
	return c
}

// Field adds a field.
func (c *Class) Field(name, desc string) *Class {
	c.fields = append(c.fields, [2]string{name, desc})
	return c
}

// Long adds a long constant to the pool, which takes two slots.
func (c *Class) Long(v int64) *Class {
	c.longs = append(c.longs, v)
	return c
}

// Method adds a method with a descriptor such as "(Landroid/os/Bundle;)V".
func (c *Class) Method(access uint16, name, desc string, opts ...MethodOption) *Class {
	m := &method{access: access, name: name, desc: desc}
	for _, o := range opts {
		o(m)
	}
	c.methods = append(c.methods, m)
	return c
}

// Name returns the binary class name.
func (c *Class) Name() string {
	return c.name
}

// Bytes encodes the class.
func (c *Class) Bytes() []byte {
	p := newPool()
	for _, v := range c.longs {
		p.long(v)
	}
	thisIdx := p.class(c.name)
	var superIdx uint16
	if c.super != "" {
		superIdx = p.class(c.super)
	}
	ifaces := make([]uint16, len(c.interfaces))
	for i, n := range c.interfaces {
		ifaces[i] = p.class(n)
	}

	var body buf
	body.u2(c.access)
	body.u2(thisIdx)
	body.u2(superIdx)
	body.u2(uint16(len(ifaces)))
	for _, i := range ifaces {
		body.u2(i)
	}

	body.u2(uint16(len(c.fields)))
	for _, f := range c.fields {
		body.u2(Private)
		body.u2(p.utf8(f[0]))
		body.u2(p.utf8(f[1]))
		body.u2(0)
	}

	body.u2(uint16(len(c.methods)))
	for _, m := range c.methods {
		body.u2(m.access)
		body.u2(p.utf8(m.name))
		body.u2(p.utf8(m.desc))

		var attrs []attribute
		if m.access&(Abstract) == 0 {
			var code buf
			code.u2(1)
			code.u2(uint16(1 + len(m.desc)))
			code.u4(1)
			code.b = append(code.b, 0xB1)
			code.u2(0)
			code.u2(0)
			attrs = append(attrs, attribute{p.utf8("Code"), code.b})
		}
		if len(m.throws) > 0 {
			var ex buf
			ex.u2(uint16(len(m.throws)))
			for _, t := range m.throws {
				ex.u2(p.class(t))
			}
			attrs = append(attrs, attribute{p.utf8("Exceptions"), ex.b})
		}
		if len(m.annotations) > 0 {
			attrs = append(attrs, attribute{p.utf8("RuntimeVisibleAnnotations"), encodeAnnotations(p, m.annotations)})
		}
		if len(m.invisible) > 0 {
			attrs = append(attrs, attribute{p.utf8("RuntimeInvisibleAnnotations"), encodeAnnotations(p, m.invisible)})
		}
		body.u2(uint16(len(attrs)))
		for _, a := range attrs {
			body.u2(a.name)
			body.u4(uint32(len(a.data)))
			body.b = append(body.b, a.data...)
		}
	}
	body.u2(0) // class attributes

	var out buf
	out.u4(0xCAFEBABE)
	out.u2(0)
	out.u2(52)
	out.u2(uint16(p.next))
	out.b = append(out.b, p.data.b...)
	out.b = append(out.b, body.b...)
	return out.b
}

// WriteTo writes the class under root following its package path and
// returns the file path.
func (c *Class) WriteTo(root string) (string, error) {
	path := filepath.Join(root, filepath.FromSlash(internalName(c.name))+".class")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	return path, os.WriteFile(path, c.Bytes(), 0o644)
}

type attribute struct {
	name uint16
	data []byte
}

func encodeAnnotations(p *pool, anns []annotation) []byte {
	var b buf
	b.u2(uint16(len(anns)))
	for _, a := range anns {
		b.u2(p.utf8("L" + internalName(a.name) + ";"))
		keys := make([]string, 0, len(a.values))
		for k := range a.values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.u2(uint16(len(keys)))
		for _, k := range keys {
			b.u2(p.utf8(k))
			b.b = append(b.b, 's')
			b.u2(p.utf8(a.values[k]))
		}
	}
	return b.b
}

func internalName(binary string) string {
	return strings.ReplaceAll(binary, ".", "/")
}

type buf struct {
	b []byte
}

func (b *buf) u2(v uint16) {
	b.b = binary.BigEndian.AppendUint16(b.b, v)
}

func (b *buf) u4(v uint32) {
	b.b = binary.BigEndian.AppendUint32(b.b, v)
}

type pool struct {
	data    buf
	next    int
	utf8s   map[string]uint16
	classes map[string]uint16
}

func newPool() *pool {
	return &pool{next: 1, utf8s: make(map[string]uint16), classes: make(map[string]uint16)}
}

func (p *pool) utf8(s string) uint16 {
	if i, ok := p.utf8s[s]; ok {
		return i
	}
	i := uint16(p.next)
	p.next++
	p.data.b = append(p.data.b, 1)
	p.data.u2(uint16(len(s)))
	p.data.b = append(p.data.b, s...)
	p.utf8s[s] = i
	return i
}

func (p *pool) class(binaryName string) uint16 {
	if i, ok := p.classes[binaryName]; ok {
		return i
	}
	name := p.utf8(internalName(binaryName))
	i := uint16(p.next)
	p.next++
	p.data.b = append(p.data.b, 7)
	p.data.u2(name)
	p.classes[binaryName] = i
	return i
}

func (p *pool) long(v int64) {
	p.data.b = append(p.data.b, 5)
	p.data.b = binary.BigEndian.AppendUint64(p.data.b, uint64(v))
	p.next += 2
}
