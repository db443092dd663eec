package detector

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"rapidkrill/internal/config"
	"rapidkrill/internal/fileutil"
	"rapidkrill/internal/logging"
	"rapidkrill/internal/services"
)

// observation is the live watch state for one file.
type observation struct {
	size        int64
	modTime     time.Time
	firstSeen   time.Time
	stableSince time.Time
	stablePolls int
}

// Ready identifies a file that finished transferring, ordered oldest-first.
type Ready struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Options configures a Detector.
type Options struct {
	Dir          string
	StablePolls  int
	MinStableAge time.Duration
	StatTimeout  time.Duration
	Extensions   []string
}

// FromConfig derives detector options from the application config.
func FromConfig(cfg *config.Config) Options {
	return Options{
		Dir:          cfg.Paths.WatchDir,
		StablePolls:  cfg.Watch.StablePolls,
		MinStableAge: time.Duration(cfg.Watch.MinStableSeconds) * time.Second,
		StatTimeout:  time.Duration(cfg.Watch.StatTimeout) * time.Second,
		Extensions:   cfg.Watch.IncludeExtensions,
	}
}

// Detector tracks candidate files across polls. It owns only in-memory watch
// state; ledger writes belong to the processing engine. A ready file keeps
// being emitted until MarkProcessed confirms its ledger row, so a failed tick
// downstream cannot lose it.
type Detector struct {
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	tracked map[string]*observation
	skip    map[string]struct{}

	lastCount int
}

// New builds a detector. seed lists file identities that must never be
// emitted again, typically ledger.ProcessedPaths at startup.
func New(opts Options, seed map[string]struct{}, logger *slog.Logger) *Detector {
	if opts.StablePolls < 2 {
		opts.StablePolls = 2
	}
	if opts.StatTimeout <= 0 {
		opts.StatTimeout = 15 * time.Second
	}
	skip := make(map[string]struct{}, len(seed))
	for path := range seed {
		skip[path] = struct{}{}
	}
	return &Detector{
		opts:      opts,
		logger:    logging.NewComponentLogger(logger, "detector"),
		now:       time.Now,
		tracked:   make(map[string]*observation),
		skip:      skip,
		lastCount: -1,
	}
}

// Poll scans the watched directory once and returns the files currently
// ready, oldest modification time first. A listing failure against the mount
// is returned as a transient error with no files: the caller retries with
// backoff. A stat failure on a single file is also transient, but the rest of
// the scan still runs and its ready files are returned alongside the error so
// one bad entry cannot starve the others.
func (d *Detector) Poll(ctx context.Context) ([]Ready, error) {
	entries, err := fileutil.ListDirTimeout(ctx, d.opts.Dir, d.opts.StatTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrTransient, "detector", "list watch dir", d.opts.Dir, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	present := make(map[string]struct{}, len(entries))
	var ready []Ready
	var scanErr error
	candidates := 0

	for _, entry := range entries {
		if entry.IsDir() || !d.matchesExtension(entry.Name()) {
			continue
		}
		candidates++
		path := filepath.Join(d.opts.Dir, entry.Name())
		present[path] = struct{}{}

		if _, skipped := d.skip[path]; skipped {
			continue
		}

		info, err := fileutil.StatTimeout(ctx, path, d.opts.StatTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ready, ctx.Err()
			}
			if os.IsNotExist(err) {
				// Deleted between list and stat; drop silently.
				delete(d.tracked, path)
				continue
			}
			if scanErr == nil {
				scanErr = services.Wrap(services.ErrTransient, "detector", "stat", path, err)
			}
			continue
		}

		obs, known := d.tracked[path]
		if !known {
			d.tracked[path] = &observation{
				size:        info.Size(),
				modTime:     info.ModTime(),
				firstSeen:   now,
				stableSince: now,
			}
			continue
		}

		if obs.size != info.Size() || !obs.modTime.Equal(info.ModTime()) {
			// Still being written (or truncated and rewritten); start over.
			obs.size = info.Size()
			obs.modTime = info.ModTime()
			obs.stableSince = now
			obs.stablePolls = 0
			continue
		}

		obs.stablePolls++
		if obs.stablePolls >= d.opts.StablePolls-1 && now.Sub(obs.stableSince) >= d.opts.MinStableAge {
			ready = append(ready, Ready{Path: path, Size: obs.size, ModTime: obs.modTime})
		}
	}

	d.forgetMissing(present)
	d.logScanDelta(candidates)

	sort.Slice(ready, func(i, j int) bool {
		if !ready[i].ModTime.Equal(ready[j].ModTime) {
			return ready[i].ModTime.Before(ready[j].ModTime)
		}
		return ready[i].Path < ready[j].Path
	})
	return ready, scanErr
}

// MarkProcessed confirms that a file's ledger row exists and excludes the
// identity from future emission. Until this is called a ready file stays
// tracked and is emitted again on the next poll.
func (d *Detector) MarkProcessed(path string) {
	d.mu.Lock()
	d.skip[path] = struct{}{}
	delete(d.tracked, path)
	d.mu.Unlock()
}

// TrackedCount returns how many files are currently under observation.
func (d *Detector) TrackedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tracked)
}

func (d *Detector) matchesExtension(name string) bool {
	if len(d.opts.Extensions) == 0 {
		return true
	}
	ext := strings.ToLower(filepath.Ext(name))
	for _, want := range d.opts.Extensions {
		if ext == want {
			return true
		}
	}
	return false
}

func (d *Detector) forgetMissing(present map[string]struct{}) {
	for path := range d.tracked {
		if _, ok := present[path]; !ok {
			d.logger.Debug("watched file disappeared before readiness", logging.String(logging.FieldFile, path))
			delete(d.tracked, path)
		}
	}
}

func (d *Detector) logScanDelta(candidates int) {
	switch {
	case d.lastCount < 0:
		d.logger.Info("watching directory", logging.String("dir", d.opts.Dir), logging.Int("candidates", candidates))
	case candidates == d.lastCount:
		d.logger.Debug("no new files")
	case candidates < d.lastCount:
		d.logger.Warn("files have been deleted from the watch directory",
			logging.Int("before", d.lastCount), logging.Int("after", candidates))
	}
	d.lastCount = candidates
}
