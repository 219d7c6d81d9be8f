// Package reload keeps the alias registry in sync with the automation API.
package reload

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"
	"github.com/fsnotify/fsnotify"

	"github.com/nextlevelbuilder/opsclaw/internal/aliases"
)

// Fetcher lists the current alias definitions.
type Fetcher interface {
	ListAliases(ctx context.Context) ([]aliases.Definition, error)
}

// Loader publishes a new alias generation and returns its matcher count.
type Loader interface {
	Reload(defs []aliases.Definition) int
}

// Options configures a Scheduler.
type Options struct {
	Interval             time.Duration // fixed period; ignored when Cron is set
	Cron                 string        // cron expression
	WatchPaths           []string      // files whose changes trigger a reload
	ExitOnInitialFailure bool
	Debounce             time.Duration // coalesces bursts of file events (default 500ms)
}

// Scheduler drives startup, periodic, signalled and file-triggered reloads.
type Scheduler struct {
	fetch   Fetcher
	loader  Loader
	opts    Options
	trigger chan string
	now     func() time.Time
}

// New creates a scheduler.
func New(fetch Fetcher, loader Loader, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}
	return &Scheduler{
		fetch:   fetch,
		loader:  loader,
		opts:    opts,
		trigger: make(chan string, 1),
		now:     time.Now,
	}
}

// LoadInitial performs the startup load. The error is returned only when
// ExitOnInitialFailure is set; otherwise it is logged.
func (s *Scheduler) LoadInitial(ctx context.Context) error {
	err := s.load(ctx, "startup")
	if err != nil && s.opts.ExitOnInitialFailure {
		return fmt.Errorf("initial alias load: %w", err)
	}
	return nil
}

// Trigger requests a reload. Requests arriving while one is queued coalesce.
func (s *Scheduler) Trigger(reason string) {
	select {
	case s.trigger <- reason:
	default:
	}
}

// Run serves reload triggers until ctx is done. Reload failures keep the
// previous generation and never end the loop.
func (s *Scheduler) Run(ctx context.Context) error {
	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	if len(s.opts.WatchPaths) > 0 {
		w, err := s.watch()
		if err != nil {
			return err
		}
		defer w.Close()
		fsEvents, fsErrors = w.Events, w.Errors
	}

	next, err := s.nextTick()
	if err != nil {
		return err
	}
	timer := time.NewTimer(next)
	defer timer.Stop()

	var debounce <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-timer.C:
			s.loadLogged(ctx, "timer")
			if next, err = s.nextTick(); err != nil {
				return err
			}
			timer.Reset(next)

		case reason := <-s.trigger:
			s.loadLogged(ctx, reason)

		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if s.watched(ev.Name) && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				slog.Debug("reload: watched file changed", "path", ev.Name, "op", ev.Op.String())
				debounce = time.After(s.opts.Debounce)
			}

		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			slog.Warn("reload: file watcher error", "error", err)

		case <-debounce:
			debounce = nil
			s.loadLogged(ctx, "file change")
		}
	}
}

func (s *Scheduler) nextTick() (time.Duration, error) {
	if s.opts.Cron == "" {
		if s.opts.Interval <= 0 {
			return 0, fmt.Errorf("reload interval must be positive")
		}
		return s.opts.Interval, nil
	}
	now := s.now()
	at, err := gronx.NextTickAfter(s.opts.Cron, now, false)
	if err != nil {
		return 0, fmt.Errorf("reload cron %q: %w", s.opts.Cron, err)
	}
	return at.Sub(now), nil
}

// watch subscribes to the parent directories of the watched files so
// atomic replace-on-save is seen as well as in-place writes.
func (s *Scheduler) watch() (*fsnotify.Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	dirs := map[string]bool{}
	for _, p := range s.opts.WatchPaths {
		dir := filepath.Dir(filepath.Clean(p))
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			w.Close()
			return nil, fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = true
		slog.Info("reload: watching", "dir", dir)
	}
	return w, nil
}

func (s *Scheduler) watched(name string) bool {
	name = filepath.Clean(name)
	for _, p := range s.opts.WatchPaths {
		if filepath.Clean(p) == name {
			return true
		}
	}
	return false
}

func (s *Scheduler) loadLogged(ctx context.Context, reason string) {
	if err := s.load(ctx, reason); err != nil {
		slog.Warn("reload: keeping previous aliases", "reason", reason, "error", err)
	}
}

func (s *Scheduler) load(ctx context.Context, reason string) error {
	slog.Info("loading commands", "reason", reason)
	defs, err := s.fetch.ListAliases(ctx)
	if err != nil {
		slog.Error("failed to retrieve commands", "reason", reason, "error", err)
		return err
	}
	n := s.loader.Reload(defs)
	slog.Info("commands loaded", "count", n, "aliases", len(defs))
	return nil
}
