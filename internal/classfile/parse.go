package classfile

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/solatis/weaver/internal/types"
)

// Magic is the class file signature.
const Magic uint32 = 0xCAFEBABE

// Constant pool tags (JVMS 4.4).
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

const (
	attrExceptions           = "Exceptions"
	attrVisibleAnnotations   = "RuntimeVisibleAnnotations"
	attrInvisibleAnnotations = "RuntimeInvisibleAnnotations"
)

type cpEntry struct {
	tag   byte
	utf8  string
	index uint16 // name_index of CONSTANT_Class
}

// reader is a bounds-checked big-endian cursor. The first failure sticks
// and every later read returns zero values.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) fail(what string) {
	if r.err == nil {
		r.err = fmt.Errorf("%w: truncated %s at offset %d", types.ErrMalformedClass, what, r.pos)
	}
}

func (r *reader) bytes(n int, what string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.buf) {
		r.fail(what)
		return nil
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) u1(what string) byte {
	b := r.bytes(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) u2(what string) uint16 {
	b := r.bytes(2, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint16(b)
}

func (r *reader) u4(what string) uint32 {
	b := r.bytes(4, what)
	if b == nil {
		return 0
	}
	return binary.BigEndian.Uint32(b)
}

// Parse decodes the metadata of a class file. The returned Class keeps data
// as its Raw bytes.
func Parse(data []byte) (*Class, error) {
	r := &reader{buf: data}
	if r.u4("magic") != Magic || r.err != nil {
		return nil, types.ErrNotClassFile
	}

	c := &Class{Raw: data}
	c.Minor = r.u2("minor version")
	c.Major = r.u2("major version")

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}
	utf8 := func(i uint16) (string, error) {
		if int(i) >= len(pool) || pool[i].tag != tagUtf8 {
			return "", fmt.Errorf("%w: constant %d is not Utf8", types.ErrMalformedClass, i)
		}
		return pool[i].utf8, nil
	}
	className := func(i uint16) (string, error) {
		if int(i) >= len(pool) || pool[i].tag != tagClass {
			return "", fmt.Errorf("%w: constant %d is not Class", types.ErrMalformedClass, i)
		}
		name, err := utf8(pool[i].index)
		if err != nil {
			return "", err
		}
		return BinaryName(name), nil
	}

	c.Access = Modifiers(r.u2("access flags"))
	if c.Name, err = className(r.u2("this class")); err != nil {
		return nil, err
	}
	if super := r.u2("super class"); super != 0 {
		if c.SuperName, err = className(super); err != nil {
			return nil, err
		}
	}
	n := int(r.u2("interfaces count"))
	for i := 0; i < n && r.err == nil; i++ {
		iface, err := className(r.u2("interface"))
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, iface)
	}

	// Fields carry nothing weaving needs.
	n = int(r.u2("fields count"))
	for i := 0; i < n && r.err == nil; i++ {
		r.bytes(6, "field")
		skipAttributes(r)
	}

	n = int(r.u2("methods count"))
	for i := 0; i < n && r.err == nil; i++ {
		m, err := readMethod(r, utf8, className)
		if err != nil {
			return nil, err
		}
		c.Methods = append(c.Methods, m)
	}

	skipAttributes(r)
	if r.err != nil {
		return nil, r.err
	}
	if r.pos != len(r.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", types.ErrMalformedClass, len(r.buf)-r.pos)
	}
	return c, nil
}

func readPool(r *reader) ([]cpEntry, error) {
	count := int(r.u2("constant pool count"))
	pool := make([]cpEntry, count)
	for i := 1; i < count; i++ {
		tag := r.u1("constant tag")
		if r.err != nil {
			return nil, r.err
		}
		e := cpEntry{tag: tag}
		switch tag {
		case tagUtf8:
			length := int(r.u2("utf8 length"))
			e.utf8 = decodeModifiedUTF8(r.bytes(length, "utf8 constant"))
		case tagClass, tagModule, tagPackage:
			e.index = r.u2("class constant")
		case tagString, tagMethodType:
			r.u2("constant")
		case tagMethodHandle:
			r.bytes(3, "method handle")
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			r.u4("constant")
		case tagLong, tagDouble:
			r.bytes(8, "wide constant")
			pool[i] = e
			i++
			continue
		default:
			return nil, fmt.Errorf("%w: unknown constant tag %d at index %d", types.ErrMalformedClass, tag, i)
		}
		pool[i] = e
	}
	return pool, r.err
}

func readMethod(r *reader, utf8 func(uint16) (string, error), className func(uint16) (string, error)) (*Method, error) {
	m := &Method{Access: Modifiers(r.u2("method access"))}
	var err error
	if m.Name, err = utf8(r.u2("method name")); err != nil {
		return nil, err
	}
	if m.Descriptor, err = utf8(r.u2("method descriptor")); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	if m.Params, m.Return, err = ParseMethodDescriptor(m.Descriptor); err != nil {
		return nil, err
	}

	count := int(r.u2("method attributes count"))
	for i := 0; i < count && r.err == nil; i++ {
		name, err := utf8(r.u2("attribute name"))
		if err != nil {
			return nil, err
		}
		length := int(r.u4("attribute length"))
		body := r.bytes(length, name)
		if r.err != nil {
			break
		}
		ar := &reader{buf: body}
		switch name {
		case attrExceptions:
			n := int(ar.u2("exceptions count"))
			for j := 0; j < n && ar.err == nil; j++ {
				ex, err := className(ar.u2("exception"))
				if err != nil {
					return nil, err
				}
				m.Exceptions = append(m.Exceptions, ex)
			}
		case attrVisibleAnnotations, attrInvisibleAnnotations:
			anns, err := readAnnotations(ar, utf8)
			if err != nil {
				return nil, err
			}
			m.Annotations = append(m.Annotations, anns...)
		}
		if ar.err != nil {
			return nil, ar.err
		}
	}
	return m, r.err
}

func skipAttributes(r *reader) {
	count := int(r.u2("attributes count"))
	for i := 0; i < count && r.err == nil; i++ {
		r.u2("attribute name")
		r.bytes(int(r.u4("attribute length")), "attribute")
	}
}

// readAnnotations returns the type names of a Runtime*Annotations attribute.
func readAnnotations(r *reader, utf8 func(uint16) (string, error)) ([]string, error) {
	n := int(r.u2("annotations count"))
	var out []string
	for i := 0; i < n && r.err == nil; i++ {
		name, err := readAnnotation(r, utf8)
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, r.err
}

func readAnnotation(r *reader, utf8 func(uint16) (string, error)) (string, error) {
	desc, err := utf8(r.u2("annotation type"))
	if err != nil {
		return "", err
	}
	t, _, err := parseFieldType(desc)
	if err != nil {
		return "", err
	}
	pairs := int(r.u2("element value pairs"))
	for i := 0; i < pairs && r.err == nil; i++ {
		r.u2("element name")
		if err := skipElementValue(r, utf8); err != nil {
			return "", err
		}
	}
	return t.Name, r.err
}

func skipElementValue(r *reader, utf8 func(uint16) (string, error)) error {
	tag := r.u1("element value tag")
	switch tag {
	case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z', 's', 'c':
		r.u2("const value")
	case 'e':
		r.u2("enum type")
		r.u2("enum constant")
	case '@':
		if _, err := readAnnotation(r, utf8); err != nil {
			return err
		}
	case '[':
		n := int(r.u2("array length"))
		for i := 0; i < n && r.err == nil; i++ {
			if err := skipElementValue(r, utf8); err != nil {
				return err
			}
		}
	default:
		if r.err == nil {
			return fmt.Errorf("%w: unknown element value tag %q", types.ErrMalformedClass, tag)
		}
	}
	return r.err
}

// decodeModifiedUTF8 decodes the JVM's modified UTF-8. Names weaving cares
// about are ASCII, so the common case returns the bytes unchanged.
func decodeModifiedUTF8(b []byte) string {
	ascii := true
	for _, c := range b {
		if c >= 0x80 {
			ascii = false
			break
		}
	}
	if ascii {
		return string(b)
	}

	var units []uint16
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c < 0x80:
			units = append(units, uint16(c))
			i++
		case c&0xE0 == 0xC0 && i+1 < len(b):
			units = append(units, uint16(c&0x1F)<<6|uint16(b[i+1]&0x3F))
			i += 2
		case c&0xF0 == 0xE0 && i+2 < len(b):
			units = append(units, uint16(c&0x0F)<<12|uint16(b[i+1]&0x3F)<<6|uint16(b[i+2]&0x3F))
			i += 3
		default:
			units = append(units, 0xFFFD)
			i++
		}
	}
	return string(utf16.Decode(units))
}
