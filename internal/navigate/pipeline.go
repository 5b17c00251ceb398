package navigate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tth05/code-viewer/internal/db"
	"github.com/tth05/code-viewer/internal/javasrc"
)

// NavigationLog records navigation outcomes
type NavigationLog interface {
	LogNavigation(n db.Navigation) error
}

// Viewer opens the decompiled view of a class. A negative line opens it
// without scrolling.
type Viewer interface {
	OpenClass(ctx context.Context, className string, line int) error
}

// Pipeline resolves navigation requests. One request runs at a time per
// receive loop; the solver is shared with the watcher.
type Pipeline struct {
	// Root is the directory request paths are relative to
	Root       string
	Solver     *PreParsedSolver
	Fallback   TypeSolver
	Decompiler Decompiler
	// Log is optional
	Log NavigationLog
}

// NewPipeline creates a pipeline with an empty pre-parsed solver
func NewPipeline(root string, fallback TypeSolver, decompiler Decompiler) *Pipeline {
	return &Pipeline{
		Root:       root,
		Solver:     NewPreParsedSolver(),
		Fallback:   fallback,
		Decompiler: decompiler,
	}
}

// Navigate resolves the invocation at req to its declaration and returns the
// class and zero-based line to open. Failures are logged and returned; the
// caller sends nothing for a failed request.
func (p *Pipeline) Navigate(ctx context.Context, req Request) (ResolvedPosition, error) {
	id := uuid.New().String()
	started := time.Now()
	log := slog.With("request_id", id, "file", req.RelativePath, "row", req.Row, "column", req.Column)

	pos, err := p.navigate(ctx, log, req)

	outcome := "resolved"
	if err != nil {
		outcome = err.Error()
		log.Error("Navigation failed", "error", err)
	} else {
		log.Info("Navigation resolved", "class", pos.ClassName, "line", pos.Line)
	}

	if p.Log != nil {
		n := db.Navigation{
			RequestID:  id,
			File:       req.RelativePath,
			Row:        req.Row,
			Column:     req.Column,
			ClassName:  pos.ClassName,
			Line:       pos.Line,
			Outcome:    outcome,
			DurationMs: time.Since(started).Milliseconds(),
		}
		if logErr := p.Log.LogNavigation(n); logErr != nil {
			log.Warn("Failed to record navigation", "error", logErr)
		}
	}
	return pos, err
}

func (p *Pipeline) navigate(ctx context.Context, log *slog.Logger, req Request) (ResolvedPosition, error) {
	file, err := p.sourcePath(req.RelativePath)
	if err != nil {
		return ResolvedPosition{}, err
	}
	src, err := os.ReadFile(file)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ResolvedPosition{}, fmt.Errorf("%w: %s", ErrNotFound, req.RelativePath)
		}
		return ResolvedPosition{}, fmt.Errorf("failed to read source: %w", err)
	}

	unit, err := javasrc.Parse(ctx, src)
	if err != nil {
		return ResolvedPosition{}, err
	}
	inv, ok := unit.InvocationAt(javasrc.Position{Line: req.Row + 1, Column: req.Column + 1})
	unit.Close()
	if !ok {
		return ResolvedPosition{}, fmt.Errorf("%w: no method invocation at line %d column %d", ErrUnresolved, req.Row+1, req.Column+1)
	}
	log.Debug("Located invocation", "method", inv.Name, "arity", inv.Arity, "line", inv.Line)

	decl, err := Resolve(p.solver(), unit, inv)
	if err != nil {
		return ResolvedPosition{}, err
	}
	if decl.Kind == ProjectLocal {
		return position(decl), nil
	}

	if err := p.load(ctx, decl.TopLevelName); err != nil {
		return ResolvedPosition{}, err
	}

	decl, err = Resolve(p.solver(), unit, inv)
	if err != nil {
		return ResolvedPosition{}, err
	}
	if decl.Kind != ProjectLocal {
		return ResolvedPosition{}, fmt.Errorf("%w: %s still resolves to a compiled class after decompilation", ErrUnresolved, decl.QualifiedName)
	}
	return position(decl), nil
}

// sourcePath joins rel onto the root, refusing paths that leave it
func (p *Pipeline) sourcePath(rel string) (string, error) {
	rel = filepath.FromSlash(rel)
	if !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %s is outside the source root", ErrNotFound, rel)
	}
	file := filepath.Join(p.Root, rel)
	info, err := os.Stat(file)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return file, nil
}

// load decompiles className and registers the result with the solver
func (p *Pipeline) load(ctx context.Context, className string) error {
	if p.Decompiler == nil {
		return errors.New("no decompiler configured")
	}
	if err := p.Decompiler.Decompile(ctx, className); err != nil {
		return err
	}

	path := SourcePath(p.Decompiler, className)
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read decompiled source: %w", err)
	}
	unit, err := javasrc.Parse(ctx, src)
	if err != nil {
		return fmt.Errorf("failed to parse decompiled %s: %w", className, err)
	}
	// only the declarations are needed from here on
	unit.Close()

	p.Solver.Register(path, unit)
	return nil
}

func (p *Pipeline) solver() TypeSolver {
	return CombinedSolver{p.Solver, p.Fallback}
}
