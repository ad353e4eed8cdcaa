// Package snapshot reads offline-captured visit snapshots.
//
// Field devices that captured visits and orders while disconnected drop them
// as JSON files into a snapshots directory. The dashboard merges these
// records with remote and queued data so not-yet-synced work still counts
// toward revenue and progress. A watcher emits VisitDataChanged whenever
// files appear or change.
package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/salesbeat/fieldsync/internal/events"
	"github.com/salesbeat/fieldsync/internal/model"
)

// File is the on-disk snapshot format: the visits and orders one device
// captured while offline.
type File struct {
	UserID     string        `json:"user_id"`
	CapturedAt time.Time     `json:"captured_at"`
	Visits     []model.Visit `json:"visits,omitempty"`
	Orders     []model.Order `json:"orders,omitempty"`
}

// ReadDir loads every snapshot file (*.json) in dir, filtered by userID and
// date. Individual unreadable files are logged and skipped; the read
// continues with the rest. A missing directory is treated as empty.
func ReadDir(dir, userID, date string, logger *log.Logger) (*File, error) {
	merged := &File{UserID: userID}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return merged, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshots directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		file, err := readFile(path)
		if err != nil {
			if logger != nil {
				logger.Printf("WARNING: skipping snapshot %s: %v", entry.Name(), err)
			}
			continue
		}
		if file.UserID != "" && file.UserID != userID {
			continue
		}

		for _, v := range file.Visits {
			if v.Date == date {
				merged.Visits = append(merged.Visits, v)
			}
		}
		for _, o := range file.Orders {
			if o.Date == date {
				merged.Orders = append(merged.Orders, o)
			}
		}
	}

	return merged, nil
}

func readFile(path string) (*File, error) {
	// #nosec G304 - controlled path under the snapshots directory
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot file: %w", err)
	}
	return &file, nil
}

// Write stores a snapshot file in dir, named by capture time. Used by tests
// and by hosts handing off offline captures.
func Write(dir string, file *File) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	if file.CapturedAt.IsZero() {
		file.CapturedAt = time.Now()
	}
	name := fmt.Sprintf("snapshot-%d.json", file.CapturedAt.UnixMilli())
	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write snapshot file: %w", err)
	}
	return path, nil
}

// Watcher emits VisitDataChanged when snapshot files change on disk.
// Rapid bursts of file events are batched through a debounce window.
type Watcher struct {
	dir      string
	bus      *events.Bus
	debounce time.Duration
	logger   *log.Logger

	watcher *fsnotify.Watcher

	pendingMu sync.Mutex
	pending   bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWatcher creates a snapshot directory watcher.
//
// The directory is created if missing so the watch can be established before
// the first capture arrives. If logger is nil, a default logger writing to
// stderr is used.
func NewWatcher(dir string, bus *events.Bus, debounce time.Duration, logger *log.Logger) (*Watcher, error) {
	if dir == "" {
		return nil, fmt.Errorf("snapshots directory cannot be empty")
	}
	if debounce == 0 {
		debounce = 500 * time.Millisecond
	}
	if logger == nil {
		logger = log.New(os.Stderr, "[snapshot] ", log.LstdFlags)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		dir:      dir,
		bus:      bus,
		debounce: debounce,
		logger:   logger,
		watcher:  fw,
	}, nil
}

// Start begins watching. Call Stop to shut down.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch snapshots directory: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(2)
	go w.watchLoop(ctx)
	go w.flushLoop(ctx)

	w.logger.Printf("Watching snapshots: %s", w.dir)
	return nil
}

// Stop halts the watcher and waits for its goroutines.
func (w *Watcher) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	if err := w.watcher.Close(); err != nil {
		w.logger.Printf("Error closing watcher: %v", err)
	}
	w.wg.Wait()
}

func (w *Watcher) watchLoop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			w.pendingMu.Lock()
			w.pending = true
			w.pendingMu.Unlock()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Printf("Watcher error: %v", err)
		}
	}
}

// flushLoop delivers at most one VisitDataChanged per debounce window no
// matter how many file events arrived.
func (w *Watcher) flushLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pendingMu.Lock()
			fire := w.pending
			w.pending = false
			w.pendingMu.Unlock()

			if fire && w.bus != nil {
				w.bus.PublishVisitDataChanged(events.VisitDataChanged{})
			}
		}
	}
}
