package core

import (
	"fmt"
	"runtime/debug"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the bridge's own build version. It doubles as the default host
// version the helper release has to be compatible with.
var Version = buildVersion()

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "devel"
	}

	// Tagged module versions win; pseudo-versions fall through to VCS info.
	if v := info.Main.Version; v != "" && v != "(devel)" && !isPseudoVersion(v) {
		return v
	}

	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return "devel"
	}

	if len(revision) > 7 {
		revision = revision[:7]
	}
	v := fmt.Sprintf("devel-%s", revision)
	if dirty {
		v += "-dirty"
	}
	return v
}

// NormalizeVersion returns v with a leading "v", the form release tags use.
//   - "1.2.5" → "v1.2.5"
//   - "v1.2.5" → "v1.2.5"
//   - "" → ""
func NormalizeVersion(v string) string {
	if v == "" || strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// ParseHostVersion normalizes a configured host version and checks that it is
// a semantic version release tags can be compared against.
func ParseHostVersion(v string) (string, error) {
	v = NormalizeVersion(strings.TrimSpace(v))
	if !semver.IsValid(v) {
		return "", fmt.Errorf("host version %q is not a semantic version", v)
	}
	return v, nil
}

// FormatVersion formats the version string for display.
// Tagged releases have the "v" prefix stripped; devel versions pass through as-is.
func FormatVersion(v string) string {
	return strings.TrimPrefix(v, "v")
}

// isPseudoVersion reports whether v looks like a Go module pseudo-version,
// e.g. v0.0.0-20260217105831-82903d1d8810.
func isPseudoVersion(v string) bool {
	if i := strings.Index(v, "+"); i >= 0 {
		v = v[:i]
	}
	i := strings.LastIndex(v, "-")
	if i < 0 {
		return false
	}
	hash := v[i+1:]
	if len(hash) != 12 {
		return false
	}
	for _, c := range hash {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
