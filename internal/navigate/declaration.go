// Package navigate resolves a click in a helper-side source file to the
// declaration of the method invoked there, decompiling the declaring class
// on the way so the declaration can be shown at its exact line.
package navigate

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when the requested file does not exist under the root
	ErrNotFound = errors.New("source file not found")
	// ErrUnresolved is returned when no method declaration could be found
	ErrUnresolved = errors.New("symbol could not be resolved")
)

// DeclarationKind tells where a resolved declaration came from
type DeclarationKind int

const (
	// Reflective declarations are only known from compiled classes
	Reflective DeclarationKind = iota
	// ProjectLocal declarations come from parsed source and carry a line
	ProjectLocal
)

func (k DeclarationKind) String() string {
	switch k {
	case Reflective:
		return "reflective"
	case ProjectLocal:
		return "project-local"
	default:
		return fmt.Sprintf("DeclarationKind(%d)", int(k))
	}
}

// ResolvedDeclaration is a method declaration found for an invocation
type ResolvedDeclaration struct {
	Kind DeclarationKind
	// QualifiedName is the declaring type in source form, a.b.Outer.Inner
	QualifiedName string
	// TopLevelName is the outermost class of the declaring type, the unit a
	// decompiler produces and a viewer opens
	TopLevelName string
	Method       string
	// StartLine is the 1-based first line of the declaration, set for
	// ProjectLocal only
	StartLine int
}

// Request is a navigation request in helper editor coordinates
type Request struct {
	RelativePath string
	// Row and Column are zero-based
	Row    int
	Column int
}

// ResolvedPosition is where the viewer should be opened
type ResolvedPosition struct {
	ClassName string
	// Line is zero-based
	Line int
}

// position turns a resolved project-local declaration into a viewer position
func position(d ResolvedDeclaration) ResolvedPosition {
	return ResolvedPosition{ClassName: d.TopLevelName, Line: d.StartLine - 1}
}
