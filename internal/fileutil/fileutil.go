// Package fileutil bounds filesystem calls against an unresponsive network
// mount. Stat and directory listing on a dead CIFS share can block far past
// any socket timeout; running them in a goroutine with a deadline keeps a
// single hung call from stalling the whole poll loop.
package fileutil

import (
	"context"
	"io/fs"
	"os"
	"time"

	"rapidkrill/internal/services"
)

type statResult struct {
	info fs.FileInfo
	err  error
}

// StatTimeout stats path, giving up after timeout. The abandoned goroutine
// is left to finish on its own; its result is discarded.
func StatTimeout(ctx context.Context, path string, timeout time.Duration) (fs.FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan statResult, 1)
	go func() {
		info, err := os.Stat(path)
		ch <- statResult{info: info, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.info, res.err
	case <-timer.C:
		return nil, services.Wrap(services.ErrTransient, "fileutil", "stat",
			path+" timed out", context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type listResult struct {
	entries []fs.DirEntry
	err     error
}

// ListDirTimeout reads the directory entries of path, giving up after timeout.
func ListDirTimeout(ctx context.Context, path string, timeout time.Duration) ([]fs.DirEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := make(chan listResult, 1)
	go func() {
		entries, err := os.ReadDir(path)
		ch <- listResult{entries: entries, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		return res.entries, res.err
	case <-timer.C:
		return nil, services.Wrap(services.ErrTransient, "fileutil", "list",
			path+" timed out", context.DeadlineExceeded)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
