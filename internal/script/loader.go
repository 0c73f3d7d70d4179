// ============================================================================
// Wiener - Robot Agent Control Middleware
// ============================================================================
//
// Package:     script
// Description: YAML script loader with hot-reload support
// Created:     2026-09-30
// License:     MIT
// ============================================================================

package script

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/msto63/wiener/pkg/core/logging"
	"gopkg.in/yaml.v3"
)

// Loader reads script definitions from a directory into a Library
type Loader struct {
	dir      string
	library  *Library
	logger   *logging.Logger
	onReload func(*Registry)

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	running bool
}

// NewLoader creates a loader publishing into library
func NewLoader(dir string, library *Library) *Loader {
	return &Loader{
		dir:     dir,
		library: library,
		logger:  logging.New("script-loader"),
	}
}

// SetOnReload sets a callback invoked after each successful reload
func (l *Loader) SetOnReload(fn func(*Registry)) {
	l.onReload = fn
}

// Parse decodes one YAML document
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &f, nil
}

// Build turns parsed files into a registry. Sources are used in error
// messages and recorded on each template.
func Build(files map[string]*File) (*Registry, error) {
	sources := make([]string, 0, len(files))
	for src := range files {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	var types []TypeDef
	var nodes []*Node
	for _, src := range sources {
		f := files[src]
		types = append(types, f.Types...)
		for i := range f.Scripts {
			def := f.Scripts[i]
			def.Defaults()
			if err := def.Validate(); err != nil {
				return nil, fmt.Errorf("%s: %w", src, err)
			}
			n, err := def.Build(src)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", src, err)
			}
			nodes = append(nodes, n)
		}
	}
	return NewRegistry(types, nodes)
}

// LoadAll reads every *.yaml and *.yml file in the directory, builds a
// registry and installs it. On error the current registry is kept.
func (l *Loader) LoadAll() (*Registry, error) {
	files, err := yamlFiles(l.dir)
	if err != nil {
		return nil, err
	}

	parsed := make(map[string]*File, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		f, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		parsed[filepath.Base(path)] = f
	}

	reg, err := Build(parsed)
	if err != nil {
		return nil, err
	}
	l.library.Swap(reg)
	l.logger.Info("Scripts loaded", "count", reg.Len(), "files", len(files), "dir", l.dir)
	if l.onReload != nil {
		l.onReload(reg)
	}
	return reg, nil
}

func yamlFiles(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list script files: %w", err)
	}
	ymlFiles, _ := filepath.Glob(filepath.Join(dir, "*.yml"))
	files = append(files, ymlFiles...)
	sort.Strings(files)
	return files, nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// StartWatching reloads the whole directory whenever a YAML file changes.
// Cross-file references make single-file reloads unsafe.
func (l *Loader) StartWatching(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory: %w", err)
	}
	l.watcher = watcher
	l.stopCh = make(chan struct{})
	l.running = true
	l.logger.Info("Started watching for script changes", "dir", l.dir)

	go l.watchLoop(ctx, watcher, l.stopCh)
	return nil
}

// Stop ends the watch loop
func (l *Loader) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		close(l.stopCh)
		l.running = false
	}
}

const reloadDebounce = 500 * time.Millisecond

func (l *Loader) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, stopCh <-chan struct{}) {
	defer watcher.Close()

	// Editors emit bursts of events; reload once the burst settles.
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("Stopping script watcher (context cancelled)")
			return
		case <-stopCh:
			l.logger.Info("Stopping script watcher (stop signal)")
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !isYAMLFile(event.Name) {
				continue
			}
			l.logger.Debug("Script file changed", "file", filepath.Base(event.Name), "op", event.Op.String())
			timer.Reset(reloadDebounce)
		case <-timer.C:
			if _, err := l.LoadAll(); err != nil {
				l.logger.Error("Script reload failed, keeping previous scripts", "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("Watcher error", "error", err)
		}
	}
}
