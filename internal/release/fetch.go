package release

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ProgressFunc receives a best-effort completion percentage in [0, 100]
type ProgressFunc func(percent int)

// Fetcher downloads release archives and extracts them
type Fetcher struct {
	// URLTemplate is the download URL with {version} as placeholder
	URLTemplate string
	Client      *http.Client
}

// NewFetcher creates a fetcher for the given URL template. Downloads have no
// overall timeout; cancel through the context instead.
func NewFetcher(urlTemplate string) *Fetcher {
	return &Fetcher{
		URLTemplate: urlTemplate,
		Client:      &http.Client{},
	}
}

// URL returns the archive URL for version
func (f *Fetcher) URL(version string) string {
	return strings.ReplaceAll(f.URLTemplate, "{version}", version)
}

// Fetch downloads the archive of version and extracts it into destDir.
// expectedSize is the release asset size. Progress is reported while the
// archive downloads (capped at 99) and again while it is extracted; it never
// goes backwards and ends with 100. A failed fetch leaves already extracted
// files in place; the caller retries the whole fetch next time.
func (f *Fetcher) Fetch(ctx context.Context, version, destDir string, expectedSize uint64, onProgress ProgressFunc) error {
	url := f.URL(version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return fmt.Errorf("unable to reach release host, does release %s exist?: %w", version, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("download of %s returned %s", version, resp.Status)
	}

	onProgress = monotonic(onProgress)

	// archive/zip needs random access, so the body is spooled first
	spool, err := os.CreateTemp("", "codeviewer-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create download spool: %w", err)
	}
	defer func() {
		spool.Close()
		os.Remove(spool.Name())
	}()

	body := io.Reader(resp.Body)
	if expectedSize > 0 {
		body = &progressReader{r: resp.Body, total: expectedSize, onProgress: onProgress}
	}
	size, err := io.Copy(spool, body)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", version, err)
	}

	if err := Extract(spool, size, destDir, expectedSize, onProgress); err != nil {
		return err
	}

	slog.Info("Successfully downloaded companion app", "version", version, "path", destDir)
	return nil
}

// monotonic drops progress values at or below the last one reported
func monotonic(onProgress ProgressFunc) ProgressFunc {
	if onProgress == nil {
		return func(int) {}
	}
	last := -1
	return func(percent int) {
		if percent <= last {
			return
		}
		last = percent
		onProgress(percent)
	}
}

// progressReader reports the share of total read so far. It stops at 99,
// 100 is left for the end of extraction.
type progressReader struct {
	r          io.Reader
	read       uint64
	total      uint64
	onProgress ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.read += uint64(n)
		p.onProgress(int(min(99, p.read*100/p.total)))
	}
	return n, err
}

// Extract unpacks the ZIP archive r into destDir entry by entry. After each
// file, onProgress receives written*100/expectedSize capped at 100; once all
// entries are written a final 100 is always reported.
func Extract(r io.ReaderAt, size int64, destDir string, expectedSize uint64, onProgress ProgressFunc) error {
	if onProgress == nil {
		onProgress = func(int) {}
	}

	archive, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("unable to read archive: %w", err)
	}

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create install directory: %w", err)
	}

	var written uint64
	for _, entry := range archive.File {
		target, err := entryPath(destDir, entry.Name)
		if err != nil {
			return err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", entry.Name, err)
			}
			continue
		}

		n, err := extractFile(entry, target)
		if err != nil {
			return err
		}
		written += uint64(n)

		if expectedSize > 0 {
			onProgress(int(min(100, written*100/expectedSize)))
		}
	}

	// the estimate rarely matches exactly
	onProgress(100)
	return nil
}

func extractFile(entry *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return 0, fmt.Errorf("failed to create directory for %s: %w", entry.Name, err)
	}

	src, err := entry.Open()
	if err != nil {
		return 0, fmt.Errorf("unable to read %s from archive: %w", entry.Name, err)
	}
	defer src.Close()

	mode := entry.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", target, err)
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return n, fmt.Errorf("failed to write %s: %w", target, err)
	}
	return n, nil
}

// entryPath joins name onto destDir and rejects entries escaping it
func entryPath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	root := filepath.Clean(destDir)
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes install directory", name)
	}
	return target, nil
}
