package release

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type fakeQuerier struct {
	releases []Release
	err      error
	calls    int
}

func (f *fakeQuerier) Releases(ctx context.Context) ([]Release, error) {
	f.calls++
	return f.releases, f.err
}

func readMeta(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read meta file: %v", err)
	}
	return string(data)
}

func TestStore_Load_MissingFileInitializesDefaults(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), ".meta")
	q := &fakeQuerier{releases: releases("v1.3.0", "v1.2.8")}

	s := NewStore(path, "v1.2.5", q)
	s.Load(context.Background())

	rec := s.Record()
	if rec.NewestCompatibleVersion != "v1.2.8" {
		t.Errorf("expected newest v1.2.8, got %q", rec.NewestCompatibleVersion)
	}
	if rec.InstalledVersion != "v1.2.8" {
		t.Errorf("expected installed to default to newest, got %q", rec.InstalledVersion)
	}
	if rec.NewestArtifactSize != 1001 {
		t.Errorf("expected artifact size 1001, got %d", rec.NewestArtifactSize)
	}
	if rec.HostVersionChanged {
		t.Error("fresh record must not report a host version change")
	}
	if got := readMeta(t, path); got != "v1.2.5\nv1.2.8\n" {
		t.Errorf("unexpected meta content %q", got)
	}
}

func TestStore_Load_ValidRecord(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), ".meta")
	if err := os.WriteFile(path, []byte("v1.2.5\nv1.2.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, "v1.2.5", &fakeQuerier{releases: releases("v1.2.8")})
	s.Load(context.Background())

	rec := s.Record()
	if rec.InstalledVersion != "v1.2.0" {
		t.Errorf("expected installed v1.2.0, got %q", rec.InstalledVersion)
	}
	if rec.NewestCompatibleVersion != "v1.2.8" {
		t.Errorf("expected newest v1.2.8, got %q", rec.NewestCompatibleVersion)
	}
	if rec.HostVersionChanged {
		t.Error("host version did not change")
	}
}

func TestStore_Load_DetectsHostVersionChange(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), ".meta")
	if err := os.WriteFile(path, []byte("v1.1.0\nv1.1.3\n"), 0644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, "v1.2.5", &fakeQuerier{releases: releases("v1.2.8")})
	s.Load(context.Background())

	if !s.Record().HostVersionChanged {
		t.Fatal("expected host version change to be detected")
	}

	if err := s.MarkInstalled("v1.2.8"); err != nil {
		t.Fatalf("MarkInstalled failed: %v", err)
	}
	if s.Record().HostVersionChanged {
		t.Error("persisting must clear the host version change flag")
	}
	if got := readMeta(t, path); got != "v1.2.5\nv1.2.8\n" {
		t.Errorf("unexpected meta content %q", got)
	}
}

func TestStore_Load_CorruptRecordMatchesFreshState(t *testing.T) {
	quietLogger(t)
	corruptions := map[string]string{
		"empty":       "",
		"one line":    "v1.2.5\n",
		"three lines": "v1.2.5\nv1.2.0\nextra\n",
	}

	freshPath := filepath.Join(t.TempDir(), ".meta")
	fresh := NewStore(freshPath, "v1.2.5", &fakeQuerier{releases: releases("v1.2.8")})
	fresh.Load(context.Background())

	for name, content := range corruptions {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), ".meta")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}

			s := NewStore(path, "v1.2.5", &fakeQuerier{releases: releases("v1.2.8")})
			s.Load(context.Background())

			if s.Record() != fresh.Record() {
				t.Errorf("corrupt record state %+v differs from fresh state %+v", s.Record(), fresh.Record())
			}
			if readMeta(t, path) != readMeta(t, freshPath) {
				t.Errorf("rewritten meta %q differs from fresh meta %q", readMeta(t, path), readMeta(t, freshPath))
			}
		})
	}
}

func TestStore_Refresh_NetworkFailureKeepsStaleValue(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), ".meta")
	q := &fakeQuerier{releases: releases("v1.2.8")}

	s := NewStore(path, "v1.2.5", q)
	s.Load(context.Background())

	q.err = errors.New("connection refused")
	if err := s.RefreshNewestCompatible(context.Background()); err == nil {
		t.Fatal("expected the refresh error to be returned")
	}
	if s.Record().NewestCompatibleVersion != "v1.2.8" {
		t.Errorf("expected stale value v1.2.8 to survive, got %q", s.Record().NewestCompatibleVersion)
	}
}

func TestStore_InitDefaults_OfflineIsUnknown(t *testing.T) {
	quietLogger(t)
	path := filepath.Join(t.TempDir(), ".meta")
	q := &fakeQuerier{err: errors.New("offline")}

	s := NewStore(path, "v1.2.5", q)
	s.Load(context.Background())

	rec := s.Record()
	if rec.NewestKnown() {
		t.Errorf("expected unknown newest version, got %q", rec.NewestCompatibleVersion)
	}
	if rec.InstalledVersion != VersionUnknown {
		t.Errorf("installed must not alias the host version, got %q", rec.InstalledVersion)
	}
	if got := readMeta(t, path); got != "v1.2.5\n\n" {
		t.Errorf("unexpected meta content %q", got)
	}

	// The record with an unknown installed version is still well-formed.
	q.err = nil
	q.releases = releases("v1.2.8")
	again := NewStore(path, "v1.2.5", q)
	again.Load(context.Background())
	if again.Record().InstalledVersion != VersionUnknown {
		t.Errorf("expected installed to stay unknown, got %q", again.Record().InstalledVersion)
	}
	if again.Record().NewestCompatibleVersion != "v1.2.8" {
		t.Errorf("expected newest v1.2.8 after recovery, got %q", again.Record().NewestCompatibleVersion)
	}
}

func TestStore_Peek_IsReadOnly(t *testing.T) {
	quietLogger(t)
	dir := t.TempDir()
	q := &fakeQuerier{releases: releases("v1.2.8")}

	missing := NewStore(filepath.Join(dir, "missing", ".meta"), "v1.2.5", q)
	if _, err := missing.Peek(); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected ErrNotExist for a missing record, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "missing")); !errors.Is(err, os.ErrNotExist) {
		t.Error("peeking a missing record must not create it")
	}

	corruptPath := filepath.Join(dir, "corrupt.meta")
	if err := os.WriteFile(corruptPath, []byte("v1.2.5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStore(corruptPath, "v1.2.5", q).Peek(); err == nil {
		t.Error("expected an error for a malformed record")
	}
	if got := readMeta(t, corruptPath); got != "v1.2.5\n" {
		t.Errorf("peeking must leave a malformed record alone, got %q", got)
	}

	validPath := filepath.Join(dir, "valid.meta")
	if err := os.WriteFile(validPath, []byte("v1.1.0\nv1.1.3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	rec, err := NewStore(validPath, "v1.2.5", q).Peek()
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if rec.InstalledVersion != "v1.1.3" || rec.HostVersionAtLastCheck != "v1.1.0" || !rec.HostVersionChanged {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.NewestKnown() {
		t.Error("Peek must not determine the newest version")
	}
	if q.calls != 0 {
		t.Errorf("Peek queried the index %d times", q.calls)
	}
}

func TestSplitLines(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\nb\n", 2},
		{"a\r\nb\r\n", 2},
		{"a\n\n", 2},
	}
	for _, tt := range tests {
		if got := len(splitLines(tt.in)); got != tt.want {
			t.Errorf("splitLines(%q) has %d lines, want %d", tt.in, got, tt.want)
		}
	}
}
