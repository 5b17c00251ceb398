package javasrc

import (
	"bytes"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// Position is a 1-based line and column, columns counted in characters
type Position struct {
	Line   int
	Column int
}

// ReceiverKind classifies the expression a method is invoked on
type ReceiverKind int

const (
	// ReceiverImplicit is a call without a receiver or on this
	ReceiverImplicit ReceiverKind = iota
	// ReceiverSuper is a call on super
	ReceiverSuper
	// ReceiverTyped is an expression whose declared type is known
	ReceiverTyped
	// ReceiverName is a bare or dotted name that is not a visible variable.
	// It names a type, a static field chain or an inherited field.
	ReceiverName
	// ReceiverCall is the result of another method invocation
	ReceiverCall
	// ReceiverField is a field read from another receiver
	ReceiverField
	// ReceiverUnknown is any expression whose type needs inference
	ReceiverUnknown
)

// Receiver describes what a method is invoked on
type Receiver struct {
	Kind ReceiverKind
	// Type is the declared type for ReceiverTyped or the name for ReceiverName
	Type string
	// Call is the inner invocation for ReceiverCall
	Call *Invocation
	// Target and Field describe a ReceiverField. A field read through this
	// has an implicit target.
	Target *Receiver
	Field  string
}

// Known reports whether the receiver's type can be followed without
// inference, nested receivers included
func (r Receiver) Known() bool {
	switch r.Kind {
	case ReceiverUnknown:
		return false
	case ReceiverCall:
		return r.Call != nil && r.Call.Receiver.Known()
	case ReceiverField:
		return r.Target != nil && r.Target.Known()
	}
	return true
}

// Invocation is the syntactic content of a method call
type Invocation struct {
	Name     string
	Arity    int
	Receiver Receiver
	// Enclosing is the innermost named type the call appears in
	Enclosing *Type
	// Line is the 1-based line of the call
	Line int
}

// Offset converts pos into a byte offset into the source
func (u *Unit) Offset(pos Position) (uint32, bool) {
	if pos.Line < 1 || pos.Column < 1 {
		return 0, false
	}

	src := u.Source
	start := 0
	for line := 1; line < pos.Line; line++ {
		i := bytes.IndexByte(src[start:], '\n')
		if i < 0 {
			return 0, false
		}
		start += i + 1
	}

	off := start
	for col := 1; col < pos.Column; col++ {
		if off >= len(src) || src[off] == '\n' {
			return 0, false
		}
		_, size := utf8.DecodeRune(src[off:])
		off += size
	}
	if off >= len(src) || src[off] == '\n' {
		return 0, false
	}
	return uint32(off), true
}

// ResolvableNodeAt returns the innermost method invocation whose source
// range contains pos
func (u *Unit) ResolvableNodeAt(pos Position) (*sitter.Node, bool) {
	if u.tree == nil {
		return nil, false
	}
	off, ok := u.Offset(pos)
	if !ok {
		return nil, false
	}

	var found *sitter.Node
	n := u.tree.RootNode()
	for n != nil {
		if n.Type() == "method_invocation" {
			found = n
		}
		n = childContaining(n, off)
	}
	return found, found != nil
}

func childContaining(n *sitter.Node, off uint32) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.StartByte() <= off && off < child.EndByte() {
			return child
		}
	}
	return nil
}

// InvocationAt returns the syntactic description of the call at pos
func (u *Unit) InvocationAt(pos Position) (Invocation, bool) {
	node, ok := u.ResolvableNodeAt(pos)
	if !ok {
		return Invocation{}, false
	}
	return u.invocation(node), true
}

func (u *Unit) invocation(n *sitter.Node) Invocation {
	inv := Invocation{
		Enclosing: u.enclosingType(n),
		Line:      int(n.StartPoint().Row) + 1,
	}
	if name := n.ChildByFieldName("name"); name != nil {
		inv.Name = u.content(name)
	}
	if args := n.ChildByFieldName("arguments"); args != nil {
		for i := 0; i < int(args.NamedChildCount()); i++ {
			if args.NamedChild(i).Type() != "comment" {
				inv.Arity++
			}
		}
	}
	inv.Receiver = u.receiver(n, n.ChildByFieldName("object"))
	return inv
}

func (u *Unit) receiver(call, obj *sitter.Node) Receiver {
	if obj == nil {
		return Receiver{Kind: ReceiverImplicit}
	}

	switch obj.Type() {
	case "this":
		return Receiver{Kind: ReceiverImplicit}
	case "super":
		return Receiver{Kind: ReceiverSuper}
	case "identifier":
		name := u.content(obj)
		if typ, found := u.variableType(call, name); found {
			return typed(typ)
		}
		return Receiver{Kind: ReceiverName, Type: name}
	case "field_access":
		target := obj.ChildByFieldName("object")
		field := obj.ChildByFieldName("field")
		if target == nil || field == nil {
			break
		}
		if target.Type() == "this" {
			if typ, found := u.fieldType(call, u.content(field)); found {
				return typed(typ)
			}
		}
		if name, ok := u.dottedName(obj); ok && !u.startsWithVariable(call, obj) {
			return Receiver{Kind: ReceiverName, Type: name}
		}
		inner := u.receiver(call, target)
		return Receiver{Kind: ReceiverField, Target: &inner, Field: u.content(field)}
	case "method_invocation":
		inner := u.invocation(obj)
		return Receiver{Kind: ReceiverCall, Call: &inner}
	case "scoped_identifier":
		return Receiver{Kind: ReceiverName, Type: u.content(obj)}
	case "object_creation_expression":
		return typed(u.typeName(obj.ChildByFieldName("type")))
	case "parenthesized_expression":
		if inner := obj.NamedChild(0); inner != nil {
			if inner.Type() == "cast_expression" {
				return typed(u.typeName(inner.ChildByFieldName("type")))
			}
			return u.receiver(call, inner)
		}
	}
	return Receiver{Kind: ReceiverUnknown}
}

func typed(name string) Receiver {
	if name == "" {
		return Receiver{Kind: ReceiverUnknown}
	}
	return Receiver{Kind: ReceiverTyped, Type: name}
}

// dottedName returns a.b.c for a chain of field accesses on identifiers
func (u *Unit) dottedName(n *sitter.Node) (string, bool) {
	switch n.Type() {
	case "identifier", "scoped_identifier":
		return u.content(n), true
	case "field_access":
		obj := n.ChildByFieldName("object")
		field := n.ChildByFieldName("field")
		if obj == nil || field == nil {
			return "", false
		}
		prefix, ok := u.dottedName(obj)
		if !ok {
			return "", false
		}
		return prefix + "." + u.content(field), true
	}
	return "", false
}

// startsWithVariable reports whether the leftmost identifier of a dotted
// name is a variable visible from call
func (u *Unit) startsWithVariable(call, n *sitter.Node) bool {
	for n.Type() == "field_access" {
		n = n.ChildByFieldName("object")
		if n == nil {
			return false
		}
	}
	if n.Type() != "identifier" {
		return false
	}
	_, found := u.variableType(call, u.content(n))
	return found
}

// variableType finds the declared type of name as visible from n: locals
// declared before n, parameters, then fields of the enclosing types. found
// is true when a declaration exists even if its type has no class name.
func (u *Unit) variableType(n *sitter.Node, name string) (typ string, found bool) {
	for child, p := n, n.Parent(); p != nil; child, p = p, p.Parent() {
		switch p.Type() {
		case "block", "constructor_body", "switch_block_statement_group", "switch_rule":
			for i := 0; i < int(p.NamedChildCount()); i++ {
				stmt := p.NamedChild(i)
				if stmt.StartByte() >= child.StartByte() {
					break
				}
				if stmt.Type() == "local_variable_declaration" {
					if typ, ok := u.declaredIn(stmt, name); ok {
						return typ, true
					}
				}
			}
		case "for_statement":
			for i := 0; i < int(p.NamedChildCount()); i++ {
				if init := p.NamedChild(i); init.Type() == "local_variable_declaration" {
					if typ, ok := u.declaredIn(init, name); ok {
						return typ, true
					}
				}
			}
		case "enhanced_for_statement", "resource":
			if id := p.ChildByFieldName("name"); id != nil && u.content(id) == name {
				return u.typeName(p.ChildByFieldName("type")), true
			}
		case "catch_clause":
			for i := 0; i < int(p.NamedChildCount()); i++ {
				param := p.NamedChild(i)
				if param.Type() != "catch_formal_parameter" {
					continue
				}
				if id := param.ChildByFieldName("name"); id != nil && u.content(id) == name {
					return u.catchType(param), true
				}
			}
		case "try_with_resources_statement":
			if spec := p.ChildByFieldName("resources"); spec != nil {
				for i := 0; i < int(spec.NamedChildCount()); i++ {
					res := spec.NamedChild(i)
					if id := res.ChildByFieldName("name"); id != nil && u.content(id) == name {
						return u.typeName(res.ChildByFieldName("type")), true
					}
				}
			}
		case "method_declaration", "constructor_declaration":
			if params := p.ChildByFieldName("parameters"); params != nil {
				for i := 0; i < int(params.NamedChildCount()); i++ {
					param := params.NamedChild(i)
					if param.Type() != "formal_parameter" {
						continue
					}
					if id := param.ChildByFieldName("name"); id != nil && u.content(id) == name {
						return u.typeName(param.ChildByFieldName("type")), true
					}
				}
			}
		case "lambda_expression":
			if u.lambdaDeclares(p, name) {
				// inferred parameter types are not tracked
				return "", true
			}
		case "class_body", "enum_body_declarations", "interface_body":
			if typ, ok := u.fieldIn(p, name); ok {
				return typ, true
			}
		}
	}
	return "", false
}

// fieldType looks name up among the fields of the types enclosing n
func (u *Unit) fieldType(n *sitter.Node, name string) (string, bool) {
	for p := n.Parent(); p != nil; p = p.Parent() {
		switch p.Type() {
		case "class_body", "enum_body_declarations", "interface_body":
			if typ, ok := u.fieldIn(p, name); ok {
				return typ, true
			}
		}
	}
	return "", false
}

func (u *Unit) fieldIn(body *sitter.Node, name string) (string, bool) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		if member.Type() == "field_declaration" || member.Type() == "constant_declaration" {
			if typ, ok := u.declaredIn(member, name); ok {
				return typ, true
			}
		}
	}
	return "", false
}

// declaredIn checks a local variable or field declaration for a declarator
// named name and returns the declared type. A local declared with var takes
// the type of its constructor call.
func (u *Unit) declaredIn(decl *sitter.Node, name string) (string, bool) {
	typeNode := decl.ChildByFieldName("type")
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		id := d.ChildByFieldName("name")
		if id == nil || u.content(id) != name {
			continue
		}
		typ := u.typeName(typeNode)
		if typ == "var" {
			typ = ""
			if value := d.ChildByFieldName("value"); value != nil && value.Type() == "object_creation_expression" {
				typ = u.typeName(value.ChildByFieldName("type"))
			}
		}
		return typ, true
	}
	return "", false
}

func (u *Unit) catchType(param *sitter.Node) string {
	for i := 0; i < int(param.NamedChildCount()); i++ {
		child := param.NamedChild(i)
		if child.Type() != "catch_type" {
			continue
		}
		// multi-catch has no single class
		if child.NamedChildCount() == 1 {
			return u.typeName(child.NamedChild(0))
		}
	}
	return ""
}

func (u *Unit) lambdaDeclares(lambda *sitter.Node, name string) bool {
	params := lambda.ChildByFieldName("parameters")
	if params == nil {
		return false
	}
	if params.Type() == "identifier" {
		return u.content(params) == name
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		p := params.NamedChild(i)
		if p.Type() == "identifier" && u.content(p) == name {
			return true
		}
		if id := p.ChildByFieldName("name"); id != nil && u.content(id) == name {
			return true
		}
	}
	return false
}
