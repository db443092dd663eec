package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"rapidkrill/internal/fileutil"
)

// listBatchFiles returns every matching file in dir, sorted by name so runs
// over the same directory are deterministic.
func listBatchFiles(ctx context.Context, dir string, extensions []string, timeout time.Duration) ([]string, error) {
	entries, err := fileutil.ListDirTimeout(ctx, dir, timeout)
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !matchesExtension(entry.Name(), extensions) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

func matchesExtension(name string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range extensions {
		if ext == want {
			return true
		}
	}
	return false
}
