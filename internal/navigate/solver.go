package navigate

import (
	"os"
	"sync"
	"time"

	"github.com/tth05/code-viewer/internal/classpath"
	"github.com/tth05/code-viewer/internal/javasrc"
)

// TypeRef is a type found by a solver. Exactly one of Local and Class is set.
type TypeRef struct {
	// Name is the qualified source name
	Name string
	// Local and Unit are set for types known from parsed source
	Local *javasrc.Type
	Unit  *javasrc.Unit
	// Class is set for types only known from the class index
	Class *classpath.Class
}

// TypeSolver finds types by qualified name
type TypeSolver interface {
	SolveType(name string) (TypeRef, bool)
}

func localRef(u *javasrc.Unit, t *javasrc.Type) TypeRef {
	return TypeRef{Name: t.QualifiedName, Local: t, Unit: u}
}

type fileState struct {
	modTime time.Time
	size    int64
	names   []string
}

// PreParsedSolver serves types from compilation units registered with it.
// Registration happens on the navigation path while the watcher may evict
// concurrently, so access is locked.
type PreParsedSolver struct {
	mu    sync.Mutex
	types map[string]TypeRef
	files map[string]fileState
}

// NewPreParsedSolver returns an empty solver
func NewPreParsedSolver() *PreParsedSolver {
	return &PreParsedSolver{
		types: make(map[string]TypeRef),
		files: make(map[string]fileState),
	}
}

// Register makes every type declared in u solvable. path is the file the
// unit was read from; a later change to it evicts the unit again.
func (s *PreParsedSolver) Register(path string, u *javasrc.Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evictLocked(path)

	state := fileState{}
	if info, err := os.Stat(path); err == nil {
		state.modTime = info.ModTime()
		state.size = info.Size()
	}
	for _, t := range u.Types {
		s.types[t.QualifiedName] = localRef(u, t)
		state.names = append(state.names, t.QualifiedName)
	}
	s.files[path] = state
}

// SolveType implements TypeSolver
func (s *PreParsedSolver) SolveType(name string) (TypeRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.types[name]
	return ref, ok
}

// Evict forgets the unit registered from path. It reports whether one was registered.
func (s *PreParsedSolver) Evict(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(path)
}

// EvictIfChanged evicts the unit registered from path unless the file still
// has the size and modification time it had at registration
func (s *PreParsedSolver) EvictIfChanged(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.files[path]
	if !ok {
		return false
	}
	info, err := os.Stat(path)
	if err == nil && info.Size() == state.size && info.ModTime().Equal(state.modTime) {
		return false
	}
	return s.evictLocked(path)
}

func (s *PreParsedSolver) evictLocked(path string) bool {
	state, ok := s.files[path]
	if !ok {
		return false
	}
	for _, name := range state.names {
		delete(s.types, name)
	}
	delete(s.files, path)
	return true
}

// Len returns the number of registered units
func (s *PreParsedSolver) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// ReflectionSolver serves types from the class index
type ReflectionSolver struct {
	Index classpath.Lookuper
}

// SolveType implements TypeSolver
func (s ReflectionSolver) SolveType(name string) (TypeRef, bool) {
	if s.Index == nil {
		return TypeRef{}, false
	}
	c, ok := s.Index.Lookup(name)
	if !ok {
		return TypeRef{}, false
	}
	return TypeRef{Name: c.QualifiedName(), Class: c}, true
}

// CombinedSolver asks each solver in turn
type CombinedSolver []TypeSolver

// SolveType implements TypeSolver
func (c CombinedSolver) SolveType(name string) (TypeRef, bool) {
	for _, s := range c {
		if s == nil {
			continue
		}
		if ref, ok := s.SolveType(name); ok {
			return ref, true
		}
	}
	return TypeRef{}, false
}
