package release

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// metaLineCount is the exact number of lines a valid record has:
// the host version at last write, then the installed helper version.
const metaLineCount = 2

// Record is the installed vs. newest-compatible helper version state
type Record struct {
	InstalledVersion        string
	NewestCompatibleVersion string
	NewestArtifactSize      uint64
	HostVersionAtLastCheck  string
	// HostVersionChanged is true when the persisted host version differs from
	// the current one and Persist has not run since.
	HostVersionChanged bool
}

// NewestKnown reports whether the newest compatible version could be determined
func (r Record) NewestKnown() bool {
	return r.NewestCompatibleVersion != VersionUnknown
}

// Store persists a Record as a small line-oriented file and refreshes it
// from the release index.
type Store struct {
	path        string
	hostVersion string
	index       Querier
	record      Record
}

// NewStore creates a store for the record at path
func NewStore(path, hostVersion string, index Querier) *Store {
	return &Store{
		path:        path,
		hostVersion: hostVersion,
		index:       index,
	}
}

// Record returns a copy of the current state
func (s *Store) Record() Record {
	return s.record
}

// Path returns the location of the persisted record
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted record. An absent, unreadable or malformed record
// is deleted and replaced by InitDefaults. Load never fails.
func (s *Store) Load(ctx context.Context) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.InitDefaults(ctx)
		return
	}
	if err != nil {
		slog.Error("Unable to read meta file", "path", s.path, "error", err)
		s.discard()
		s.InitDefaults(ctx)
		return
	}

	rec, err := s.parse(data)
	if err != nil {
		slog.Error("Meta file is malformed", "path", s.path, "error", err)
		s.discard()
		s.InitDefaults(ctx)
		return
	}
	s.record = rec
	if rec.HostVersionChanged {
		slog.Info("Detected host version change", "previous", rec.HostVersionAtLastCheck, "current", s.hostVersion)
		s.record.HostVersionAtLastCheck = s.hostVersion
	}

	if err := s.RefreshNewestCompatible(ctx); err != nil {
		slog.Error("Could not determine newest companion app version. Auto-update or downloading might not work", "error", err)
	}

	slog.Info("Loaded meta file",
		"host", s.hostVersion,
		"installed", s.record.InstalledVersion,
		"newest", displayVersion(s.record.NewestCompatibleVersion))
}

// Peek reads the persisted record without touching the file or the index.
// The newest compatible version stays VersionUnknown. HostVersionAtLastCheck
// is the host version the record was written for.
func (s *Store) Peek() (Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Record{}, err
	}
	rec, err := s.parse(data)
	if err != nil {
		return Record{}, err
	}
	s.record = rec
	return rec, nil
}

func (s *Store) parse(data []byte) (Record, error) {
	lines := splitLines(string(data))
	if len(lines) != metaLineCount {
		return Record{}, fmt.Errorf("meta file has %d lines, expected %d", len(lines), metaLineCount)
	}
	return Record{
		InstalledVersion:       lines[1],
		HostVersionAtLastCheck: lines[0],
		HostVersionChanged:     lines[0] != s.hostVersion,
	}, nil
}

// InitDefaults queries the newest compatible version and writes a fresh record
// claiming it as installed. When the index is unreachable the installed
// version stays VersionUnknown so the next run retries.
func (s *Store) InitDefaults(ctx context.Context) {
	s.record = Record{HostVersionAtLastCheck: s.hostVersion}
	if err := s.RefreshNewestCompatible(ctx); err != nil {
		slog.Error("Could not determine newest companion app version. Auto-update or downloading might not work", "error", err)
	}
	s.record.InstalledVersion = s.record.NewestCompatibleVersion

	if err := s.Persist(); err != nil {
		slog.Error("Unable to write meta file", "path", s.path, "error", err)
	}
}

// RefreshNewestCompatible queries the index and updates the newest compatible
// version and its artifact size. On failure the previous values are kept.
func (s *Store) RefreshNewestCompatible(ctx context.Context) error {
	if s.index == nil {
		return errors.New("no release index configured")
	}

	releases, err := s.index.Releases(ctx)
	if err != nil {
		return err
	}

	selected, ok := SelectCompatible(s.hostVersion, releases)
	if !ok {
		return errors.New("release index is empty")
	}

	if Compatible(s.hostVersion, selected.TagName) {
		slog.Info("Found matching companion app version", "version", selected.TagName)
	} else {
		slog.Info("No matching companion app version found, falling back to newest available", "version", selected.TagName)
	}

	s.record.NewestCompatibleVersion = selected.TagName
	s.record.NewestArtifactSize = selected.ArtifactSize()
	return nil
}

// MarkInstalled records version as installed and persists the record
func (s *Store) MarkInstalled(version string) error {
	s.record.InstalledVersion = version
	return s.Persist()
}

// Persist writes the record via a temp file and rename, then clears
// HostVersionChanged.
func (s *Store) Persist() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create meta directory: %w", err)
	}

	content := s.hostVersion + "\n" + s.record.InstalledVersion + "\n"
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write meta file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace meta file: %w", err)
	}

	s.record.HostVersionAtLastCheck = s.hostVersion
	s.record.HostVersionChanged = false
	return nil
}

func (s *Store) discard() {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Unable to delete meta file", "path", s.path, "error", err)
	}
}

// splitLines splits content into lines the way a line reader would:
// a trailing newline does not start another line and "\r\n" counts as one break.
func splitLines(content string) []string {
	if content == "" {
		return nil
	}
	content = strings.TrimSuffix(content, "\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func displayVersion(v string) string {
	if v == VersionUnknown {
		return "unknown"
	}
	return v
}
