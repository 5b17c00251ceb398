package navigate

import (
	"fmt"
	"strings"

	"github.com/tth05/code-viewer/internal/javasrc"
)

// maxHierarchyDepth bounds supertype walks so cyclic or absurd hierarchies terminate
const maxHierarchyDepth = 32

// resolver resolves invocations of one compilation unit against a solver
type resolver struct {
	unit   *javasrc.Unit
	solver TypeSolver
}

// match is a method found while walking a hierarchy
type match struct {
	decl ResolvedDeclaration
	// owner declares the method; returns is written in its scope
	owner   TypeRef
	returns string
}

// Resolve finds the declaration an invocation in u targets. Types declared
// in u itself resolve as project-local; everything else goes to solver.
// Receivers that are themselves calls or field reads are followed through
// the declared return and field types.
func Resolve(solver TypeSolver, u *javasrc.Unit, inv javasrc.Invocation) (ResolvedDeclaration, error) {
	if !inv.Receiver.Known() {
		return ResolvedDeclaration{}, fmt.Errorf("%w: receiver of %s needs type inference", ErrUnresolved, inv.Name)
	}

	r := &resolver{unit: u, solver: solver}
	m, ok := r.method(inv)
	if !ok {
		return ResolvedDeclaration{}, fmt.Errorf("%w: %s/%d on line %d", ErrUnresolved, inv.Name, inv.Arity, inv.Line)
	}
	return m.decl, nil
}

func (r *resolver) method(inv javasrc.Invocation) (match, bool) {
	if inv.Receiver.Kind == javasrc.ReceiverImplicit {
		return r.implicit(inv)
	}
	ref, ok := r.typeOf(inv.Receiver, inv.Enclosing)
	if !ok {
		return match{}, false
	}
	return r.findMethod(ref, inv.Name, inv.Arity)
}

// typeOf returns the type of the receiver expression recv seen from the
// type declaration from
func (r *resolver) typeOf(recv javasrc.Receiver, from *javasrc.Type) (TypeRef, bool) {
	switch recv.Kind {
	case javasrc.ReceiverImplicit:
		if from == nil {
			return TypeRef{}, false
		}
		return localRef(r.unit, from), true
	case javasrc.ReceiverSuper:
		return r.superType(from)
	case javasrc.ReceiverTyped:
		return r.resolveType(recv.Type, from)
	case javasrc.ReceiverName:
		return r.name(recv.Type, from)
	case javasrc.ReceiverCall:
		if recv.Call == nil {
			return TypeRef{}, false
		}
		m, ok := r.method(*recv.Call)
		if !ok {
			return TypeRef{}, false
		}
		return r.scopedResolve(m.owner, m.returns)
	case javasrc.ReceiverField:
		if recv.Target == nil {
			return TypeRef{}, false
		}
		if recv.Target.Kind == javasrc.ReceiverImplicit {
			return r.implicitField(recv.Field, from)
		}
		target, ok := r.typeOf(*recv.Target, from)
		if !ok {
			return TypeRef{}, false
		}
		return r.fieldOf(target, recv.Field)
	}
	return TypeRef{}, false
}

// name resolves a bare or dotted name that is not a visible variable. The
// first segment may be an inherited field; otherwise the longest prefix
// naming a type is taken and the rest read as static fields.
func (r *resolver) name(name string, from *javasrc.Type) (TypeRef, bool) {
	segments := strings.Split(name, ".")

	if ref, ok := r.implicitField(segments[0], from); ok {
		return r.fieldChain(ref, segments[1:])
	}
	for i := len(segments); i > 0; i-- {
		if ref, ok := r.resolveType(strings.Join(segments[:i], "."), from); ok {
			return r.fieldChain(ref, segments[i:])
		}
	}
	return TypeRef{}, false
}

func (r *resolver) fieldChain(ref TypeRef, fields []string) (TypeRef, bool) {
	for _, f := range fields {
		var ok bool
		if ref, ok = r.fieldOf(ref, f); !ok {
			return TypeRef{}, false
		}
	}
	return ref, true
}

// implicitField looks a field up in the enclosing types and their supertypes
func (r *resolver) implicitField(name string, from *javasrc.Type) (TypeRef, bool) {
	for t := from; t != nil; t = t.Outer {
		if ref, ok := r.fieldOf(localRef(r.unit, t), name); ok {
			return ref, true
		}
	}
	return TypeRef{}, false
}

// fieldOf returns the type of field name of ref, inherited fields included
func (r *resolver) fieldOf(ref TypeRef, name string) (TypeRef, bool) {
	var (
		owner TypeRef
		typ   string
	)
	found := r.walk(ref, func(cur TypeRef) bool {
		switch {
		case cur.Local != nil:
			if f, ok := cur.Local.FindField(name); ok {
				owner, typ = cur, f.Type
				return true
			}
		case cur.Class != nil:
			if f, ok := cur.Class.FindField(name); ok {
				owner, typ = cur, f.Type
				return true
			}
		}
		return false
	})
	if !found {
		return TypeRef{}, false
	}
	return r.scopedResolve(owner, typ)
}

// scopedResolve resolves a type name declared by owner. Source types are
// written in the scope of their unit; class files carry binary names.
func (r *resolver) scopedResolve(owner TypeRef, name string) (TypeRef, bool) {
	if name == "" {
		return TypeRef{}, false
	}
	if owner.Local != nil {
		return r.scoped(owner.Unit).resolveType(name, owner.Local)
	}
	return r.resolveQualified(strings.ReplaceAll(name, "$", "."))
}

// scoped returns a resolver for names written in u
func (r *resolver) scoped(u *javasrc.Unit) *resolver {
	if u == nil || u == r.unit {
		return r
	}
	return &resolver{unit: u, solver: r.solver}
}

func (r *resolver) implicit(inv javasrc.Invocation) (match, bool) {
	for t := inv.Enclosing; t != nil; t = t.Outer {
		if m, ok := r.findMethod(localRef(r.unit, t), inv.Name, inv.Arity); ok {
			return m, true
		}
	}

	// static imports: single member first, then on demand
	for _, imp := range r.unit.Imports {
		if !imp.Static || imp.OnDemand {
			continue
		}
		i := strings.LastIndexByte(imp.Path, '.')
		if i < 0 || imp.Path[i+1:] != inv.Name {
			continue
		}
		if ref, ok := r.resolveQualified(imp.Path[:i]); ok {
			if m, ok := r.findMethod(ref, inv.Name, inv.Arity); ok {
				return m, true
			}
		}
	}
	for _, imp := range r.unit.Imports {
		if !imp.Static || !imp.OnDemand {
			continue
		}
		if ref, ok := r.resolveQualified(imp.Path); ok {
			if m, ok := r.findMethod(ref, inv.Name, inv.Arity); ok {
				return m, true
			}
		}
	}
	return match{}, false
}

// superType resolves the superclass of from, java.lang.Object when it
// extends nothing
func (r *resolver) superType(from *javasrc.Type) (TypeRef, bool) {
	if from == nil {
		return TypeRef{}, false
	}
	name := from.Super
	if name == "" {
		name = "java.lang.Object"
	}
	return r.resolveType(name, from.Outer)
}

// resolveType resolves a type name as written in the unit, seen from the
// type declaration from (nil at the top level)
func (r *resolver) resolveType(name string, from *javasrc.Type) (TypeRef, bool) {
	if name == "" {
		return TypeRef{}, false
	}

	if first, rest, dotted := strings.Cut(name, "."); dotted {
		if ref, ok := r.resolveType(first, from); ok {
			if ref, ok := r.resolveQualified(ref.Name + "." + rest); ok {
				return ref, true
			}
		}
		return r.resolveQualified(name)
	}

	// member types of the enclosing declarations, innermost first
	for t := from; t != nil; t = t.Outer {
		if t.Name == name {
			return localRef(r.unit, t), true
		}
		if nested := r.unit.FindType(t.QualifiedName + "." + name); nested != nil {
			return localRef(r.unit, nested), true
		}
	}

	for _, t := range r.unit.Types {
		if t.Outer == nil && t.Name == name {
			return localRef(r.unit, t), true
		}
	}

	for _, imp := range r.unit.Imports {
		if imp.Static || imp.OnDemand {
			continue
		}
		if imp.Path == name || strings.HasSuffix(imp.Path, "."+name) {
			if ref, ok := r.resolveQualified(imp.Path); ok {
				return ref, true
			}
		}
	}

	if r.unit.Package != "" {
		if ref, ok := r.resolveQualified(r.unit.Package + "." + name); ok {
			return ref, true
		}
	}

	for _, imp := range r.unit.Imports {
		if imp.Static || !imp.OnDemand {
			continue
		}
		if ref, ok := r.resolveQualified(imp.Path + "." + name); ok {
			return ref, true
		}
	}

	if ref, ok := r.resolveQualified("java.lang." + name); ok {
		return ref, true
	}
	if r.unit.Package == "" {
		return r.resolveQualified(name)
	}
	return TypeRef{}, false
}

// resolveQualified resolves a fully qualified source name
func (r *resolver) resolveQualified(name string) (TypeRef, bool) {
	if t := r.unit.FindType(name); t != nil {
		return localRef(r.unit, t), true
	}
	if r.solver == nil {
		return TypeRef{}, false
	}
	return r.solver.SolveType(name)
}

// findMethod looks name/arity up in ref and its supertypes
func (r *resolver) findMethod(ref TypeRef, name string, arity int) (match, bool) {
	var m match
	found := r.walk(ref, func(cur TypeRef) bool {
		var ok bool
		m, ok = declaredIn(cur, name, arity)
		return ok
	})
	return m, found
}

// walk visits ref and its supertypes breadth first until visit returns true
func (r *resolver) walk(ref TypeRef, visit func(TypeRef) bool) bool {
	seen := make(map[string]bool)
	queue := []TypeRef{ref}

	for depth := 0; len(queue) > 0 && depth < maxHierarchyDepth; depth++ {
		var next []TypeRef
		for _, cur := range queue {
			if seen[cur.Name] {
				continue
			}
			seen[cur.Name] = true

			if visit(cur) {
				return true
			}
			next = append(next, r.supertypes(cur)...)
		}
		queue = next
	}
	return false
}

func declaredIn(ref TypeRef, name string, arity int) (match, bool) {
	switch {
	case ref.Local != nil:
		m, ok := ref.Local.FindMethod(name, arity)
		if !ok {
			return match{}, false
		}
		top := ref.Local
		for top.Outer != nil {
			top = top.Outer
		}
		return match{
			decl: ResolvedDeclaration{
				Kind:          ProjectLocal,
				QualifiedName: ref.Local.QualifiedName,
				TopLevelName:  top.QualifiedName,
				Method:        m.Name,
				StartLine:     m.Line,
			},
			owner:   ref,
			returns: m.Returns,
		}, true
	case ref.Class != nil:
		m, ok := ref.Class.FindMethod(name, arity)
		if !ok {
			return match{}, false
		}
		return match{
			decl: ResolvedDeclaration{
				Kind:          Reflective,
				QualifiedName: ref.Class.QualifiedName(),
				TopLevelName:  ref.Class.TopLevelName(),
				Method:        name,
			},
			owner:   ref,
			returns: m.Returns,
		}, true
	}
	return match{}, false
}

// supertypes returns the resolvable direct supertypes of ref
func (r *resolver) supertypes(ref TypeRef) []TypeRef {
	var out []TypeRef
	switch {
	case ref.Local != nil:
		if ref.Local.Super == "" {
			return nil
		}
		// supertypes are written in the scope of the declaring unit
		if s, ok := r.scoped(ref.Unit).resolveType(ref.Local.Super, ref.Local.Outer); ok {
			out = append(out, s)
		}
	case ref.Class != nil:
		names := append([]string{}, ref.Class.Interfaces...)
		if ref.Class.Super != "" {
			names = append([]string{ref.Class.Super}, names...)
		}
		for _, n := range names {
			if r.solver == nil {
				break
			}
			if s, ok := r.solver.SolveType(n); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
