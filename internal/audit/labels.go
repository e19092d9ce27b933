// labels.go provides the injected table-identifier → display-label mapping used when
// rendering audit summaries, with optional hot reload of the mapping file.
package audit

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// TableLabels maps internal table identifiers (e.g. "inventory") to the
// human-readable labels shown in audit summaries ("Inventory"). Identifiers
// without a mapping pass through unchanged. The zero value is usable and
// performs pure passthrough.
type TableLabels struct {
	mu     sync.RWMutex
	labels map[string]string
}

// NewTableLabels builds a lookup from a static mapping. The map is copied so
// callers cannot mutate the lookup after construction.
func NewTableLabels(labels map[string]string) *TableLabels {
	copied := make(map[string]string, len(labels))
	for k, v := range labels {
		copied[k] = v
	}
	return &TableLabels{labels: copied}
}

// Lookup returns the display label for a table identifier, or the identifier
// itself when no mapping exists.
func (tl *TableLabels) Lookup(tableName string) string {
	if tl == nil {
		return tableName
	}
	tl.mu.RLock()
	defer tl.mu.RUnlock()
	if label, ok := tl.labels[tableName]; ok {
		return label
	}
	return tableName
}

// LoadLabelsFile reads a YAML mapping of table identifiers to display labels.
//
//	inventory: Inventory
//	categories: Categories
//	stock_locations: Locations
func LoadLabelsFile(path string) (*TableLabels, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read labels file: %w", err)
	}
	labels := make(map[string]string)
	if err := yaml.Unmarshal(data, &labels); err != nil {
		return nil, fmt.Errorf("failed to parse labels file: %w", err)
	}
	return NewTableLabels(labels), nil
}

// Watch reloads the mapping whenever the labels file changes on disk, so label
// edits take effect without a restart. The watcher goroutine runs until stop
// is closed. A reload that fails to parse keeps the previous mapping.
func (tl *TableLabels) Watch(path string, stop <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create labels watcher: %w", err)
	}
	// Watch the directory rather than the file itself: editors and config
	// managers typically replace the file, which invalidates a file watch.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				reloaded, err := LoadLabelsFile(target)
				if err != nil {
					slog.Warn("failed to reload table labels, keeping previous mapping",
						"path", target, "error", err)
					continue
				}
				tl.mu.Lock()
				tl.labels = reloaded.labels
				tl.mu.Unlock()
				slog.Info("table labels reloaded", "path", target, "entries", len(reloaded.labels))
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("labels watcher error", "error", err)
			case <-stop:
				return
			}
		}
	}()
	return nil
}
