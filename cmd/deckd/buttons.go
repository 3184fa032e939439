package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ============================================================================
// Button Store
// ============================================================================
// The button map binds serial tokens (BUTTON_1 .. BUTTON_9, or any custom
// identifier the firmware emits) to Actions. It is persisted as a single JSON
// object of {key: {type, value}} entries, loaded once at startup (created with
// defaults if absent) and rewritten wholesale on every edit.
//
// Reader safety: the dispatcher reads through Snapshot(), which is an atomic
// pointer load of an immutable map. Writers (IPC edits, the file watcher)
// replace the whole map, never mutate in place, so the dispatch loop can never
// observe a partially-written map.
// ============================================================================

// ButtonMap is an immutable snapshot of the key -> Action bindings.
type ButtonMap map[string]Action

// ButtonStore owns the persisted button map and its file.
type ButtonStore struct {
	path   string
	logger *slog.Logger

	snapshot atomic.Pointer[ButtonMap]

	// Serializes mutate-and-save sequences; snapshot reads never take it.
	mu sync.Mutex
}

// NewButtonStore loads the button map from path, creating the file with
// defaults if it does not exist yet.
func NewButtonStore(path string, logger *slog.Logger) (*ButtonStore, error) {
	s := &ButtonStore{
		path:   path,
		logger: logger,
	}

	m, err := loadButtonFile(path)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn("button map not found, creating defaults", "path", path)
		m = DefaultButtonMap()
		if err := writeButtonFile(path, m); err != nil {
			return nil, fmt.Errorf("write default button map: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	s.snapshot.Store(&m)
	logger.Info("button map loaded", "path", path, "buttons", len(m))
	return s, nil
}

// DefaultButtonMap returns the first-run content: nine unbound buttons, with
// BUTTON_1 seeded with a demonstration link.
func DefaultButtonMap() ButtonMap {
	m := make(ButtonMap, defaultButtonCount)
	for i := 1; i <= defaultButtonCount; i++ {
		m[fmt.Sprintf("BUTTON_%d", i)] = NoAction{}
	}
	m[demoButtonKey] = OpenLink{URL: demoButtonLink}
	return m
}

// Snapshot returns the current immutable button map.
func (s *ButtonStore) Snapshot() ButtonMap {
	return *s.snapshot.Load()
}

// Lookup resolves a serial token against the current snapshot.
func (s *ButtonStore) Lookup(key string) (Action, bool) {
	a, ok := s.Snapshot()[key]
	return a, ok
}

// Keys returns the configured keys in sorted order (for state snapshots).
func (s *ButtonStore) Keys() []string {
	m := s.Snapshot()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set binds key to action and synchronously persists the whole map.
func (s *ButtonStore) Set(key string, action Action) error {
	if key == "" {
		return errors.New("button key must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.Snapshot()
	next := make(ButtonMap, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[key] = action

	if err := writeButtonFile(s.path, next); err != nil {
		return fmt.Errorf("save button map: %w", err)
	}

	s.snapshot.Store(&next)
	s.logger.Info("button updated", "key", key, "action", describeAction(action))
	return nil
}

// Reload re-reads the button map from disk and swaps the snapshot.
func (s *ButtonStore) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, err := loadButtonFile(s.path)
	if err != nil {
		return err
	}

	s.snapshot.Store(&m)
	s.logger.Info("button map reloaded", "path", s.path, "buttons", len(m))
	return nil
}

// Watch reloads the button map when the file changes on disk (external edits
// from a UI or editor). It blocks until ctx is canceled.
//
// Editors replace files non-atomically, so each event is retried with short
// sleeps instead of failing on the first transient read error.
func (s *ButtonStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(s.path); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.logger.Debug("button map file event", "event", event.String())

			for i := 0; i < 15; i++ {
				time.Sleep(30 * time.Millisecond)
				if err := s.Reload(); err != nil {
					s.logger.Warn("button map reload failed, retrying", "error", err)
					continue
				}
				break
			}

			// Rename/replace drops the watch on some platforms; re-add.
			_ = watcher.Add(s.path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("button map watcher error", "error", err)
		}
	}
}

// ============================================================================
// File format
// ============================================================================

func loadButtonFile(path string) (ButtonMap, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]actionJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("parse button map: %w", err)
	}

	m := make(ButtonMap, len(raw))
	for key, entry := range raw {
		action, err := actionFromJSON(entry)
		if err != nil {
			return nil, fmt.Errorf("button %q: %w", key, err)
		}
		m[key] = action
	}
	return m, nil
}

func writeButtonFile(path string, m ButtonMap) error {
	raw := make(map[string]actionJSON, len(m))
	for key, action := range m {
		raw[key] = actionToJSON(action)
	}

	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0644)
}
