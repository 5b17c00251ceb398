// Package javasrc parses Java compilation units with tree-sitter and answers
// the syntactic questions symbol resolution needs: declared types and
// methods, imports, and the method invocation under a cursor.
package javasrc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// ErrNoTree is returned when tree-sitter produced no syntax tree
var ErrNoTree = errors.New("parser returned no syntax tree")

// Import is a single import declaration
type Import struct {
	// Path is the imported name without the trailing ".*"
	Path     string
	Static   bool
	OnDemand bool
}

// Method is a method declaration
type Method struct {
	Name    string
	Arity   int
	Varargs bool
	// Returns is the returned class as written, empty for void, primitives
	// and arrays
	Returns string
	// Line is the 1-based line the declaration starts on, modifiers included
	Line int
}

// Field is a field or record component. Type is empty when it has no class.
type Field struct {
	Name string
	Type string
}

// Accepts reports whether a call with arity arguments can target m
func (m Method) Accepts(arity int) bool {
	if m.Varargs {
		return arity >= m.Arity-1
	}
	return arity == m.Arity
}

// Type is a class, interface, enum or record declaration
type Type struct {
	Name string
	// QualifiedName uses dots for nesting: pkg.Outer.Inner
	QualifiedName string
	Kind          string
	// Super is the extended class as written, empty when there is none
	Super   string
	Methods []Method
	Fields  []Field
	Outer   *Type

	startByte uint32
}

// FindMethod returns the first declaration matching name and arity
func (t *Type) FindMethod(name string, arity int) (Method, bool) {
	for _, m := range t.Methods {
		if m.Name == name && m.Accepts(arity) {
			return m, true
		}
	}
	return Method{}, false
}

// FindField returns the field called name
func (t *Type) FindField(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Unit is a parsed compilation unit. Close releases the syntax tree; the
// extracted declarations stay usable afterwards.
type Unit struct {
	Source  []byte
	Package string
	Imports []Import
	// Types holds every named type declaration, nested ones included,
	// outer types before their members.
	Types []*Type

	tree *sitter.Tree
}

var typeDeclarations = map[string]string{
	"class_declaration":     "class",
	"interface_declaration": "interface",
	"enum_declaration":      "enum",
	"record_declaration":    "record",
}

// Parse parses src. Syntax errors are tolerated the way a lenient parser
// would: whatever tree-sitter recovered is used.
func Parse(ctx context.Context, src []byte) (*Unit, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse canceled before start: %w", err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse failed: %w", err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, ErrNoTree
	}

	u := &Unit{Source: src, tree: tree}
	u.extract(tree.RootNode())
	return u, nil
}

// Close releases the syntax tree
func (u *Unit) Close() {
	if u.tree != nil {
		u.tree.Close()
		u.tree = nil
	}
}

// TopLevel returns the first top-level type, usually the one the file is named after
func (u *Unit) TopLevel() *Type {
	for _, t := range u.Types {
		if t.Outer == nil {
			return t
		}
	}
	return nil
}

// FindType returns the declaration with the given qualified name
func (u *Unit) FindType(qualifiedName string) *Type {
	for _, t := range u.Types {
		if t.QualifiedName == qualifiedName {
			return t
		}
	}
	return nil
}

func (u *Unit) content(n *sitter.Node) string {
	return n.Content(u.Source)
}

func (u *Unit) extract(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_declaration":
			u.Package = u.packageName(child)
		case "import_declaration":
			u.Imports = append(u.Imports, u.importDecl(child))
		default:
			if _, ok := typeDeclarations[child.Type()]; ok {
				u.extractType(child, nil)
			}
		}
	}
}

func (u *Unit) packageName(n *sitter.Node) string {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "scoped_identifier" || child.Type() == "identifier" {
			return u.content(child)
		}
	}
	return ""
}

func (u *Unit) importDecl(n *sitter.Node) Import {
	var imp Import
	for i := 0; i < int(n.ChildCount()); i++ {
		child := n.Child(i)
		switch child.Type() {
		case "static":
			imp.Static = true
		case "scoped_identifier", "identifier":
			imp.Path = u.content(child)
		case "asterisk":
			imp.OnDemand = true
		}
	}
	return imp
}

func (u *Unit) extractType(n *sitter.Node, outer *Type) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		return
	}

	t := &Type{
		Name:      u.content(nameNode),
		Kind:      typeDeclarations[n.Type()],
		Outer:     outer,
		startByte: n.StartByte(),
	}
	switch {
	case outer != nil:
		t.QualifiedName = outer.QualifiedName + "." + t.Name
	case u.Package != "":
		t.QualifiedName = u.Package + "." + t.Name
	default:
		t.QualifiedName = t.Name
	}

	if super := n.ChildByFieldName("superclass"); super != nil {
		for i := 0; i < int(super.NamedChildCount()); i++ {
			if name := u.typeName(super.NamedChild(i)); name != "" {
				t.Super = name
				break
			}
		}
	}

	if components := n.ChildByFieldName("parameters"); components != nil {
		for i := 0; i < int(components.NamedChildCount()); i++ {
			c := components.NamedChild(i)
			if id := c.ChildByFieldName("name"); id != nil {
				t.Fields = append(t.Fields, Field{Name: u.content(id), Type: u.typeName(c.ChildByFieldName("type"))})
			}
		}
	}

	u.Types = append(u.Types, t)

	body := n.ChildByFieldName("body")
	if body == nil {
		return
	}
	u.extractMembers(body, t)
}

func (u *Unit) extractMembers(body *sitter.Node, t *Type) {
	for i := 0; i < int(body.NamedChildCount()); i++ {
		member := body.NamedChild(i)
		switch member.Type() {
		case "method_declaration":
			t.Methods = append(t.Methods, u.method(member))
		case "field_declaration", "constant_declaration":
			t.Fields = append(t.Fields, u.fields(member)...)
		case "enum_constant":
			if name := member.ChildByFieldName("name"); name != nil {
				t.Fields = append(t.Fields, Field{Name: u.content(name), Type: t.Name})
			}
		case "enum_body_declarations":
			u.extractMembers(member, t)
		default:
			if _, ok := typeDeclarations[member.Type()]; ok {
				u.extractType(member, t)
			}
		}
	}
}

func (u *Unit) method(n *sitter.Node) Method {
	m := Method{Line: int(n.StartPoint().Row) + 1}
	if name := n.ChildByFieldName("name"); name != nil {
		m.Name = u.content(name)
	}
	m.Returns = u.typeName(n.ChildByFieldName("type"))
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			switch params.NamedChild(i).Type() {
			case "formal_parameter":
				m.Arity++
			case "spread_parameter":
				m.Arity++
				m.Varargs = true
			}
		}
	}
	return m
}

func (u *Unit) fields(decl *sitter.Node) []Field {
	typ := u.typeName(decl.ChildByFieldName("type"))
	var out []Field
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		d := decl.NamedChild(i)
		if d.Type() != "variable_declarator" {
			continue
		}
		if id := d.ChildByFieldName("name"); id != nil {
			out = append(out, Field{Name: u.content(id), Type: typ})
		}
	}
	return out
}

// typeName returns the class name a type node refers to, without type
// arguments or annotations. Primitive and array types have no name.
func (u *Unit) typeName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	switch n.Type() {
	case "type_identifier":
		return u.content(n)
	case "scoped_type_identifier":
		var parts []string
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "type_identifier" || child.Type() == "scoped_type_identifier" {
				parts = append(parts, u.typeName(child))
			}
		}
		return strings.Join(parts, ".")
	case "generic_type", "annotated_type":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if child.Type() == "type_identifier" || child.Type() == "scoped_type_identifier" {
				return u.typeName(child)
			}
		}
	}
	return ""
}

// enclosingType returns the innermost named type declared around n
func (u *Unit) enclosingType(n *sitter.Node) *Type {
	for p := n.Parent(); p != nil; p = p.Parent() {
		if _, ok := typeDeclarations[p.Type()]; !ok {
			continue
		}
		for _, t := range u.Types {
			if t.startByte == p.StartByte() {
				return t
			}
		}
	}
	return nil
}
