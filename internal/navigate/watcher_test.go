package navigate

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func startWatcher(t *testing.T, dir string, solver *PreParsedSolver) {
	t.Helper()
	w, err := NewWatcher(dir, solver)
	if err != nil {
		t.Fatalf("NewWatcher failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		w.Close()
	})
}

func TestWatcher_EvictsRewrittenUnit(t *testing.T) {
	quietLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "com.foo.Baz.java")
	if err := os.WriteFile(path, []byte(decompiledBaz), 0644); err != nil {
		t.Fatal(err)
	}

	solver := NewPreParsedSolver()
	solver.Register(path, parse(t, decompiledBaz))
	startWatcher(t, dir, solver)

	if err := os.WriteFile(path, []byte(decompiledBaz+"\n// regenerated\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return solver.Len() == 0 }) {
		t.Fatal("expected rewritten unit to be evicted")
	}
	if _, ok := solver.SolveType("com.foo.Baz"); ok {
		t.Error("expected evicted type to be unsolvable")
	}
}

func TestWatcher_EvictsRemovedUnit(t *testing.T) {
	quietLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "com.foo.Baz.java")
	if err := os.WriteFile(path, []byte(decompiledBaz), 0644); err != nil {
		t.Fatal(err)
	}

	solver := NewPreParsedSolver()
	solver.Register(path, parse(t, decompiledBaz))
	startWatcher(t, dir, solver)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, 2*time.Second, func() bool { return solver.Len() == 0 }) {
		t.Fatal("expected removed unit to be evicted")
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	quietLogger(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "com.foo.Baz.java")
	if err := os.WriteFile(path, []byte(decompiledBaz), 0644); err != nil {
		t.Fatal(err)
	}

	solver := NewPreParsedSolver()
	solver.Register(path, parse(t, decompiledBaz))
	startWatcher(t, dir, solver)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if solver.Len() != 1 {
		t.Error("unrelated files must not evict units")
	}
}
