package classpath

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
)

// Lookuper finds classes by name
type Lookuper interface {
	Lookup(name string) (*Class, bool)
}

// location is where the bytes of a class live
type location struct {
	entry *zip.File
	file  string
}

// Index maps binary class names to class files in jars and directories.
// Class files are parsed on first lookup.
type Index struct {
	mu      sync.Mutex
	entries map[string]location
	parsed  map[string]*Class
	jars    []*zip.ReadCloser
}

// Open indexes every class found in the given jar files and directories.
// Missing entries are logged and skipped.
func Open(paths []string) (*Index, error) {
	idx := &Index{
		entries: make(map[string]location),
		parsed:  make(map[string]*Class),
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			slog.Warn("Skipping classpath entry", "path", path, "error", err)
			continue
		}

		if info.IsDir() {
			err = idx.addDir(path)
		} else {
			err = idx.addJar(path)
			if err == nil {
				slog.Debug("Indexed jar", "path", path, "size", humanize.Bytes(uint64(info.Size())))
			}
		}
		if err != nil {
			idx.Close()
			return nil, fmt.Errorf("failed to index %s: %w", path, err)
		}
	}

	slog.Debug("Class index ready", "classes", len(idx.entries))
	return idx, nil
}

func (idx *Index) addJar(path string) error {
	jar, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	idx.jars = append(idx.jars, jar)

	for _, f := range jar.File {
		if name, ok := binaryName(f.Name); ok {
			if _, exists := idx.entries[name]; !exists {
				idx.entries[name] = location{entry: f}
			}
		}
	}
	return nil
}

func (idx *Index) addDir(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if name, ok := binaryName(filepath.ToSlash(rel)); ok {
			if _, exists := idx.entries[name]; !exists {
				idx.entries[name] = location{file: path}
			}
		}
		return nil
	})
}

// binaryName turns a/b/C$D.class into a.b.C$D
func binaryName(entry string) (string, bool) {
	if !strings.HasSuffix(entry, ".class") || strings.HasPrefix(entry, "META-INF/") {
		return "", false
	}
	name := strings.TrimSuffix(entry, ".class")
	if name == "module-info" || strings.HasSuffix(name, "/package-info") {
		return "", false
	}
	return strings.ReplaceAll(name, "/", "."), true
}

// Len returns the number of indexed classes
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.entries)
}

// Lookup finds a class by binary name or by source name with dots for
// nesting
func (idx *Index) Lookup(name string) (*Class, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, candidate := range candidateNames(name) {
		if c, ok := idx.parsed[candidate]; ok {
			return c, true
		}
		loc, ok := idx.entries[candidate]
		if !ok {
			continue
		}
		c, err := loc.parse()
		if err != nil {
			slog.Warn("Failed to read class file", "class", candidate, "error", err)
			return nil, false
		}
		idx.parsed[candidate] = c
		return c, true
	}
	return nil, false
}

// candidateNames lists a.b.C.D, a.b.C$D, a.b$C$D and so on for a.b.C.D
func candidateNames(name string) []string {
	names := []string{name}
	for i := strings.LastIndexByte(name, '.'); i > 0; i = strings.LastIndexByte(name[:i], '.') {
		name = name[:i] + "$" + name[i+1:]
		names = append(names, name)
	}
	return names
}

func (l location) parse() (*Class, error) {
	var data []byte
	var err error
	if l.entry != nil {
		var rc io.ReadCloser
		rc, err = l.entry.Open()
		if err != nil {
			return nil, err
		}
		data, err = io.ReadAll(rc)
		rc.Close()
	} else {
		data, err = os.ReadFile(l.file)
	}
	if err != nil {
		return nil, err
	}
	return ParseClass(data)
}

// Close releases the open jar files
func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var firstErr error
	for _, jar := range idx.jars {
		if err := jar.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	idx.jars = nil
	return firstErr
}

// MapIndex is an in-memory Lookuper keyed by binary name
type MapIndex map[string]*Class

// Add registers c under its binary name
func (m MapIndex) Add(c *Class) {
	m[c.Name] = c
}

func (m MapIndex) Lookup(name string) (*Class, bool) {
	for _, candidate := range candidateNames(name) {
		if c, ok := m[candidate]; ok {
			return c, true
		}
	}
	return nil, false
}
