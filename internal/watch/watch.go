// Copyright 2026 Conductor OSS
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.

// Package watch converts documents as they appear in a directory.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 500 * time.Millisecond

// alwaysIgnored covers VCS metadata, editor swap files and the temporary
// files docbridge writes before renaming outputs into place.
var alwaysIgnored = []string{
	"**/.git/**",
	"**/*.swp",
	"**/*~",
	"**/.DS_Store",
	"**/.docbridge-*",
}

// ConvertFunc converts the file at the absolute path.
type ConvertFunc func(ctx context.Context, path string) error

// Config configures a Watcher.
type Config struct {
	// Dir is the directory to watch, recursively.
	Dir string
	// OutputDir holds converted files; nothing inside it is converted. Empty
	// means outputs are written next to their inputs.
	OutputDir string
	// Include and Ignore are doublestar patterns relative to Dir. An empty
	// Include matches every file.
	Include []string
	Ignore  []string
	// SkipExtensions lists extensions of files the conversion itself
	// produces, so outputs are never converted again.
	SkipExtensions []string
	Debounce       time.Duration
	// Concurrency bounds simultaneous conversions; values below 1 mean 1.
	Concurrency int
	// Initial converts the matching files already present when Run starts.
	Initial bool
	Convert ConvertFunc
	Logger  *log.Logger
}

// Watcher debounces filesystem events and converts each changed file. A path
// is never converted by two goroutines at once: a change that arrives while
// the path is being converted schedules one more run after it finishes.
type Watcher struct {
	cfg       Config
	fsw       *fsnotify.Watcher
	dir       string
	outputDir string
	ignores   []string
	skipExt   map[string]bool
	debounce  time.Duration
	sem       chan struct{}
	logger    *log.Logger
	started   atomic.Bool

	mu       sync.Mutex
	pending  map[string]struct{}
	timer    *time.Timer
	inflight map[string]bool // value: rerun requested
	closed   bool
	wg       sync.WaitGroup
}

// New validates cfg and registers every non-ignored directory under Dir.
func New(cfg Config) (*Watcher, error) {
	if cfg.Convert == nil {
		return nil, errors.New("watch: no convert function")
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("watch: resolve directory: %w", err)
	}
	if fi, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	} else if !fi.IsDir() {
		return nil, fmt.Errorf("watch: %s is not a directory", dir)
	}
	for _, pats := range [][]string{cfg.Include, cfg.Ignore} {
		if err := validatePatterns(pats); err != nil {
			return nil, err
		}
	}

	w := &Watcher{
		cfg:      cfg,
		dir:      dir,
		ignores:  append(slices.Clone(alwaysIgnored), cfg.Ignore...),
		skipExt:  make(map[string]bool),
		debounce: cfg.Debounce,
		logger:   cfg.Logger,
		pending:  make(map[string]struct{}),
		inflight: make(map[string]bool),
	}
	if cfg.OutputDir != "" {
		if w.outputDir, err = filepath.Abs(cfg.OutputDir); err != nil {
			return nil, fmt.Errorf("watch: resolve output directory: %w", err)
		}
	}
	for _, ext := range cfg.SkipExtensions {
		w.skipExt[strings.ToLower(ext)] = true
	}
	if w.debounce <= 0 {
		w.debounce = defaultDebounce
	}
	n := cfg.Concurrency
	if n < 1 {
		n = 1
	}
	w.sem = make(chan struct{}, n)
	if w.logger == nil {
		w.logger = log.New(io.Discard)
	}

	if w.fsw, err = fsnotify.NewWatcher(); err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	if err := w.addDirectories(w.dir); err != nil {
		w.fsw.Close()
		return nil, err
	}
	return w, nil
}

// Run processes events until ctx is cancelled, then waits for running
// conversions to finish.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return errors.New("watch: Run called more than once")
	}
	defer func() {
		w.mu.Lock()
		w.closed = true
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		w.wg.Wait()
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("close watcher", "err", err)
		}
	}()

	if w.cfg.Initial {
		w.scan(ctx)
	}
	w.logger.Info("watching", "dir", w.dir, "debounce", w.debounce)

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			w.handle(ctx, evt)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			w.logger.Warn("watcher error", "err", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, evt fsnotify.Event) {
	if !evt.Has(fsnotify.Create) && !evt.Has(fsnotify.Write) {
		return
	}
	fi, err := os.Stat(evt.Name)
	if err != nil {
		return
	}
	if fi.IsDir() {
		if evt.Has(fsnotify.Create) && !w.skipDir(evt.Name) {
			if err := w.addDirectories(evt.Name); err != nil {
				w.logger.Warn("watch new directory", "dir", evt.Name, "err", err)
			}
		}
		return
	}
	if !fi.Mode().IsRegular() || !w.Wants(evt.Name) {
		return
	}

	w.mu.Lock()
	w.pending[evt.Name] = struct{}{}
	if w.timer == nil {
		w.timer = time.AfterFunc(w.debounce, func() { w.flush(ctx) })
	} else {
		w.timer.Reset(w.debounce)
	}
	w.mu.Unlock()
}

// flush dispatches every pending path once the debounce window closes.
func (w *Watcher) flush(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.mu.Lock()
	paths := slices.Sorted(maps.Keys(w.pending))
	clear(w.pending)
	w.mu.Unlock()
	for _, p := range paths {
		w.dispatch(ctx, p)
	}
}

// dispatch converts path in the background unless it is already being
// converted, in which case a rerun is requested.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if _, busy := w.inflight[path]; busy {
		w.inflight[path] = true
		w.mu.Unlock()
		return
	}
	w.inflight[path] = false
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		for {
			w.convert(ctx, path)

			w.mu.Lock()
			again := w.inflight[path]
			if !again || ctx.Err() != nil {
				delete(w.inflight, path)
				w.mu.Unlock()
				return
			}
			w.inflight[path] = false
			w.mu.Unlock()
		}
	}()
}

func (w *Watcher) convert(ctx context.Context, path string) {
	select {
	case w.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}
	defer func() { <-w.sem }()

	start := time.Now()
	if err := w.cfg.Convert(ctx, path); err != nil {
		w.logger.Error("conversion failed", "file", w.rel(path), "err", err)
		return
	}
	w.logger.Info("converted", "file", w.rel(path), "elapsed", time.Since(start).Round(time.Millisecond))
}

func (w *Watcher) scan(ctx context.Context) {
	filepath.WalkDir(w.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != w.dir && w.skipDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && w.Wants(path) {
			w.dispatch(ctx, path)
		}
		return nil
	})
}

// Wants reports whether a file at the absolute path should be converted.
func (w *Watcher) Wants(path string) bool {
	if w.inOutputDir(path) {
		return false
	}
	if w.skipExt[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	rel := w.rel(path)
	if matchAny(w.ignores, rel) {
		return false
	}
	return len(w.cfg.Include) == 0 || matchAny(w.cfg.Include, rel)
}

func (w *Watcher) skipDir(path string) bool {
	if w.inOutputDir(path) {
		return true
	}
	rel := w.rel(path)
	return matchAny(w.ignores, rel) || matchAny(w.ignores, rel+"/")
}

func (w *Watcher) inOutputDir(path string) bool {
	if w.outputDir == "" {
		return false
	}
	rel, err := filepath.Rel(w.outputDir, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) addDirectories(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("skipping inaccessible path", "path", path, "err", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && w.skipDir(path) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch: walk %s: %w", root, err)
	}
	return nil
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

func matchAny(patterns []string, rel string) bool {
	for _, pat := range patterns {
		if ok, err := doublestar.Match(pat, rel); err == nil && ok {
			return true
		}
	}
	return false
}

func validatePatterns(patterns []string) error {
	for _, pat := range patterns {
		if !doublestar.ValidatePattern(pat) {
			return fmt.Errorf("watch: invalid pattern %q", pat)
		}
	}
	return nil
}
