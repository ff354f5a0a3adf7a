// Package docs implements the internal documentation source connector. It
// indexes a local directory of markdown files (a checked-out docs repo or a
// mounted volume) and can watch the directory to trigger re-syncs on change.
package docs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driven"
	"github.com/theotherzach/project-brain-bot/internal/logger"
)

// Ensure Connector implements the interface.
var _ driven.Connector = (*Connector)(nil)

// indexable file extensions.
var extensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// maxFileSize skips files too large to be prose documentation.
const maxFileSize = 1 << 20

// Connector reads markdown files from a local directory tree.
type Connector struct {
	root    string
	watcher *fsnotify.Watcher
}

// New creates a docs connector rooted at dir.
func New(dir string) (*Connector, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("docs directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", domain.ErrInvalidInput, dir)
	}
	return &Connector{root: dir}, nil
}

// Kind returns the source kind.
func (c *Connector) Kind() domain.SourceKind {
	return domain.SourceDocs
}

// Capabilities returns what this connector supports. Docs are index-only:
// the indexed copy is always as fresh as the watched directory, so a live
// fetch would add nothing.
func (c *Connector) Capabilities() driven.ConnectorCapabilities {
	return driven.ConnectorCapabilities{SupportsIndexing: true}
}

// Close stops the watcher if one is running.
func (c *Connector) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// LiveFetch is unsupported: docs are served from the index.
func (c *Connector) LiveFetch(_ context.Context, _ string) ([]domain.Snippet, error) {
	return nil, fmt.Errorf("%w: docs connector has no live fetch", domain.ErrNotSupported)
}

// ListDocumentsSince streams files modified after the given timestamp.
func (c *Connector) ListDocumentsSince(ctx context.Context, since time.Time) (<-chan domain.DocumentChange, <-chan error) {
	changesCh := make(chan domain.DocumentChange)
	errsCh := make(chan error, 1)

	go func() {
		defer close(changesCh)
		defer close(errsCh)

		err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != c.root {
					return filepath.SkipDir
				}
				return nil
			}
			if !extensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return err
			}
			if !info.ModTime().After(since) || info.Size() > maxFileSize {
				return nil
			}

			doc, err := c.document(path, info.ModTime())
			if err != nil {
				return err
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case changesCh <- domain.DocumentChange{Type: domain.ChangeUpserted, Document: doc}:
				return nil
			}
		})
		if err != nil {
			errsCh <- fmt.Errorf("%w: docs walk: %w", domain.ErrUpstream, err)
		}
	}()

	return changesCh, errsCh
}

// document reads one file into a Document.
func (c *Connector) document(path string, modTime time.Time) (domain.Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return domain.Document{}, fmt.Errorf("read %s: %w", path, err)
	}

	rel, err := filepath.Rel(c.root, path)
	if err != nil {
		rel = path
	}

	return domain.Document{
		ID:        "docs:" + filepath.ToSlash(rel),
		Kind:      domain.SourceDocs,
		Title:     title(rel, string(content)),
		Body:      string(content),
		URL:       "file://" + path,
		UpdatedAt: modTime,
		Metadata: map[string]string{
			"path": filepath.ToSlash(rel),
		},
	}, nil
}

// title takes the first markdown heading, falling back to the file name.
func title(rel, content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			return strings.TrimSpace(strings.TrimLeft(line, "# "))
		}
		if line != "" {
			break
		}
	}
	return strings.TrimSuffix(filepath.Base(rel), filepath.Ext(rel))
}

// Watch starts a recursive directory watcher and invokes onChange
// (debounced) whenever an indexable file is created, written, renamed or
// removed. It blocks until the context is cancelled.
func (c *Connector) Watch(ctx context.Context, debounce time.Duration, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	c.watcher = watcher

	err = filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != c.root {
				return filepath.SkipDir
			}
			return watcher.Add(path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("watch %s: %w", c.root, err)
	}

	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	var timer *time.Timer
	fire := make(chan struct{}, 1)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			// New directories need their own watch.
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			if !extensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			logger.Debug("Docs change: %s %s", event.Op, event.Name)
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Docs watcher error: %v", err)

		case <-fire:
			onChange()
		}
	}
}
