package fetch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// SaveIfAbsent downloads req into path unless a file is already there.
// Cached reports are immutable: an existing file is never rewritten. The
// body is written to a temporary file and renamed into place, so a crash
// never leaves a truncated report behind. It reports whether a download
// happened.
func SaveIfAbsent(ctx context.Context, f Fetcher, req Request, path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("failed to create cache directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return false, fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(resp.Body); err != nil {
		_ = tmp.Close()
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("failed to move download into %s: %w", path, err)
	}
	return true, nil
}
