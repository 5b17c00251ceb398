// Package release tracks which helper release is installed, finds the newest
// release compatible with the host version, and downloads release archives.
package release

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/mod/semver"
)

// VersionUnknown marks a version that could not be determined, e.g. when the
// release index was unreachable on first run. It never compares equal to a
// real tag, so it is never mistaken for "up to date".
const VersionUnknown = ""

// Asset is a downloadable file attached to a release
type Asset struct {
	Size uint64 `json:"size"`
}

// Release is one entry of the release index
type Release struct {
	TagName string  `json:"tag_name"`
	Assets  []Asset `json:"assets"`
}

// ArtifactSize returns the size of the release's first asset, or 0 when it has none
func (r Release) ArtifactSize() uint64 {
	if len(r.Assets) == 0 {
		return 0
	}
	return r.Assets[0].Size
}

// Querier lists releases, newest first
type Querier interface {
	Releases(ctx context.Context) ([]Release, error)
}

// TokenSource returns an API token, or "" for anonymous requests
type TokenSource func() string

// Index queries a GitHub-style release listing endpoint
type Index struct {
	URL    string
	Client *http.Client
	Token  TokenSource
}

// NewIndex creates an index client for url. token may be nil.
func NewIndex(url string, token TokenSource) *Index {
	return &Index{
		URL:    url,
		Client: &http.Client{Timeout: 15 * time.Second},
		Token:  token,
	}
}

// Releases fetches the release list in the index's own order (newest first)
func (i *Index) Releases(ctx context.Context) ([]Release, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build release index request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if i.Token != nil {
		if token := i.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := i.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query release index: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("release index returned %s", resp.Status)
	}

	var releases []Release
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		return nil, fmt.Errorf("failed to decode release index: %w", err)
	}
	return releases, nil
}

// Compatible reports whether two versions share the same MAJOR.MINOR prefix
func Compatible(hostVersion, candidate string) bool {
	mm := semver.MajorMinor(hostVersion)
	return mm != "" && mm == semver.MajorMinor(candidate)
}

// SelectCompatible picks the greatest release whose MAJOR.MINOR matches
// hostVersion. When none matches it falls back to the first (newest) entry.
// ok is false only for an empty list.
//
// Example for host v1.2.5:
//   - v1.3.0 is used only if no v1.2.x exists
//   - v1.2.8 is the newest compatible
//   - v1.1.5 is never compatible
func SelectCompatible(hostVersion string, releases []Release) (selected Release, ok bool) {
	if len(releases) == 0 {
		return Release{}, false
	}

	found := false
	for _, r := range releases {
		if !Compatible(hostVersion, r.TagName) {
			continue
		}
		if !found || semver.Compare(r.TagName, selected.TagName) > 0 {
			selected = r
			found = true
		}
	}
	if found {
		return selected, true
	}
	return releases[0], true
}
