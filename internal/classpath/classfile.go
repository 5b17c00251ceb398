// Package classpath indexes compiled classes from jar files and class
// directories so call targets can be resolved without their source.
package classpath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const classMagic = 0xCAFEBABE

const (
	accBridge  = 0x0040
	accVarargs = 0x0080
)

// Constant pool tags
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

// ErrNotClassFile is returned for data without the class file magic
var ErrNotClassFile = errors.New("not a class file")

// Method is a method declared by a class
type Method struct {
	Name    string
	Arity   int
	Varargs bool
	// Returns is the binary name of the returned class, empty for void,
	// primitives and arrays
	Returns string
}

// Field is a field declared by a class
type Field struct {
	Name string
	// Type is the binary name of the field's class, empty for primitives
	// and arrays
	Type string
}

// Accepts reports whether a call with arity arguments can target m
func (m Method) Accepts(arity int) bool {
	if m.Varargs {
		return arity >= m.Arity-1
	}
	return arity == m.Arity
}

// Class is the declaration summary of a compiled class
type Class struct {
	// Name is the binary name, a.b.Outer$Inner
	Name string
	// Super is the binary name of the superclass, empty for java.lang.Object
	Super      string
	Interfaces []string
	Methods    []Method
	Fields     []Field
}

// QualifiedName returns the source form of the name, a.b.Outer.Inner
func (c *Class) QualifiedName() string {
	return strings.ReplaceAll(c.Name, "$", ".")
}

// TopLevelName returns the binary name of the outermost class
func (c *Class) TopLevelName() string {
	if i := strings.IndexByte(c.Name, '$'); i > 0 {
		return c.Name[:i]
	}
	return c.Name
}

// HasMethod reports whether the class itself declares a matching method
func (c *Class) HasMethod(name string, arity int) bool {
	_, ok := c.FindMethod(name, arity)
	return ok
}

// FindMethod returns the first declared method matching name and arity
func (c *Class) FindMethod(name string, arity int) (Method, bool) {
	for _, m := range c.Methods {
		if m.Name == name && m.Accepts(arity) {
			return m, true
		}
	}
	return Method{}, false
}

// FindField returns the declared field called name
func (c *Class) FindField(name string) (Field, bool) {
	for _, f := range c.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

type classReader struct {
	data []byte
	off  int
	err  error
}

func (r *classReader) u1() uint8 {
	if r.err != nil {
		return 0
	}
	if r.off+1 > len(r.data) {
		r.err = errors.New("unexpected end of class file")
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

func (r *classReader) u2() uint16 {
	if r.err != nil {
		return 0
	}
	if r.off+2 > len(r.data) {
		r.err = errors.New("unexpected end of class file")
		return 0
	}
	v := binary.BigEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

func (r *classReader) u4() uint32 {
	if r.err != nil {
		return 0
	}
	if r.off+4 > len(r.data) {
		r.err = errors.New("unexpected end of class file")
		return 0
	}
	v := binary.BigEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

func (r *classReader) bytes(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.data) {
		r.err = errors.New("unexpected end of class file")
		return nil
	}
	v := r.data[r.off : r.off+n]
	r.off += n
	return v
}

type poolEntry struct {
	tag  uint8
	utf8 string
	ref  uint16
}

// ParseClass reads the declaration summary from a class file
func ParseClass(data []byte) (*Class, error) {
	r := &classReader{data: data}
	if r.u4() != classMagic {
		if r.err != nil {
			return nil, r.err
		}
		return nil, ErrNotClassFile
	}
	r.u2() // minor
	r.u2() // major

	pool, err := readPool(r)
	if err != nil {
		return nil, err
	}

	utf8 := func(i uint16) (string, error) {
		if int(i) >= len(pool) || pool[i].tag != tagUtf8 {
			return "", fmt.Errorf("constant %d is not a string", i)
		}
		return pool[i].utf8, nil
	}
	className := func(i uint16) (string, error) {
		if int(i) >= len(pool) || pool[i].tag != tagClass {
			return "", fmt.Errorf("constant %d is not a class", i)
		}
		name, err := utf8(pool[i].ref)
		return strings.ReplaceAll(name, "/", "."), err
	}

	r.u2() // access flags
	this := r.u2()
	super := r.u2()
	if r.err != nil {
		return nil, r.err
	}

	c := &Class{}
	if c.Name, err = className(this); err != nil {
		return nil, err
	}
	if super != 0 {
		if c.Super, err = className(super); err != nil {
			return nil, err
		}
	}

	for range r.u2() {
		name, err := className(r.u2())
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, name)
	}

	for range r.u2() {
		r.u2() // access flags
		nameIdx := r.u2()
		descIdx := r.u2()
		skipAttributes(r)
		if r.err != nil {
			return nil, r.err
		}

		name, err := utf8(nameIdx)
		if err != nil {
			return nil, err
		}
		desc, err := utf8(descIdx)
		if err != nil {
			return nil, err
		}
		c.Fields = append(c.Fields, Field{Name: name, Type: descriptorClass(desc)})
	}

	for range r.u2() {
		access := r.u2()
		nameIdx := r.u2()
		descIdx := r.u2()
		skipAttributes(r)
		if r.err != nil {
			return nil, r.err
		}

		name, err := utf8(nameIdx)
		if err != nil {
			return nil, err
		}
		if name == "<init>" || name == "<clinit>" || access&accBridge != 0 {
			continue
		}
		desc, err := utf8(descIdx)
		if err != nil {
			return nil, err
		}
		arity, err := DescriptorArity(desc)
		if err != nil {
			return nil, fmt.Errorf("method %s: %w", name, err)
		}
		c.Methods = append(c.Methods, Method{
			Name:    name,
			Arity:   arity,
			Varargs: access&accVarargs != 0,
			Returns: DescriptorReturn(desc),
		})
	}

	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func readPool(r *classReader) ([]poolEntry, error) {
	count := int(r.u2())
	pool := make([]poolEntry, count)
	for i := 1; i < count; i++ {
		tag := r.u1()
		pool[i].tag = tag
		switch tag {
		case tagUtf8:
			// modified UTF-8 matches UTF-8 for everything a class name holds
			pool[i].utf8 = string(r.bytes(int(r.u2())))
		case tagClass, tagString, tagMethodType, tagModule, tagPackage:
			pool[i].ref = r.u2()
		case tagInteger, tagFloat:
			r.u4()
		case tagLong, tagDouble:
			r.u4()
			r.u4()
			// eight-byte constants take two slots
			i++
		case tagFieldref, tagMethodref, tagInterfaceMethodref, tagNameAndType, tagDynamic, tagInvokeDynamic:
			r.u2()
			r.u2()
		case tagMethodHandle:
			r.u1()
			r.u2()
		default:
			if r.err != nil {
				return nil, r.err
			}
			return nil, fmt.Errorf("unknown constant pool tag %d at index %d", tag, i)
		}
		if r.err != nil {
			return nil, r.err
		}
	}
	return pool, r.err
}

func skipAttributes(r *classReader) {
	for range r.u2() {
		r.u2()
		r.bytes(int(r.u4()))
	}
}

// DescriptorArity counts the parameters of a method descriptor such as
// (ILjava/lang/String;[J)V
func DescriptorArity(desc string) (int, error) {
	if !strings.HasPrefix(desc, "(") {
		return 0, fmt.Errorf("invalid method descriptor %q", desc)
	}

	arity := 0
	for i := 1; i < len(desc); {
		switch desc[i] {
		case ')':
			return arity, nil
		case '[':
			i++
			continue
		case 'B', 'C', 'D', 'F', 'I', 'J', 'S', 'Z':
			i++
		case 'L':
			end := strings.IndexByte(desc[i:], ';')
			if end < 0 {
				return 0, fmt.Errorf("invalid method descriptor %q", desc)
			}
			i += end + 1
		default:
			return 0, fmt.Errorf("invalid method descriptor %q", desc)
		}
		arity++
	}
	return 0, fmt.Errorf("invalid method descriptor %q", desc)
}


// DescriptorReturn returns the binary name of the class a method descriptor
// returns, empty for void, primitives and arrays
func DescriptorReturn(desc string) string {
	i := strings.LastIndexByte(desc, ')')
	if i < 0 {
		return ""
	}
	return descriptorClass(desc[i+1:])
}

// descriptorClass turns a field descriptor such as Ljava/util/Map; into
// java.util.Map
func descriptorClass(desc string) string {
	if len(desc) < 3 || desc[0] != 'L' || desc[len(desc)-1] != ';' {
		return ""
	}
	return strings.ReplaceAll(desc[1:len(desc)-1], "/", ".")
}
