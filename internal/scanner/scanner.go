// Package scanner implements C7a: a cancellable filesystem walk that
// discovers photo files under a folder, plus an fsnotify watch that calls
// back when the folder's contents change on disk. Nothing in the catalog
// starts a watch, so filesystem changes do not trigger rescans.
package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/maukemana/catalog/internal/catalogerr"
)

// supportedExtensions are the file extensions the catalog will pick up:
// JPEG and Sony raw. Matching is case-insensitive and by extension only —
// format is confirmed later by magic-byte sniffing in
// imaging.ValidateImage. Any other extension, including other raw and
// still-image formats, is ignored by the scanner.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".arw":  true,
}

// File describes one discovered photo on disk.
type File struct {
	AbsolutePath string
	RelativePath string
	SizeBytes    int64
	ModTime      time.Time
}

// Walk recursively enumerates every supported photo file under root,
// calling visit for each one in the order the filesystem yields them.
// Walk checks ctx between every file so a cancelled scan stops promptly
// rather than running to completion; cancellation during the walk returns
// a catalogerr.ScanCancelled error, which callers are
// expected to swallow rather than propagate as a user-facing failure.
func Walk(ctx context.Context, root string, visit func(File) error) error {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return catalogerr.FolderNotFound(fmt.Sprintf("folder does not exist: %s", root), err)
		}
		if os.IsPermission(err) {
			return catalogerr.PermissionDenied(fmt.Sprintf("cannot read folder: %s", root), err)
		}
		return fmt.Errorf("stat folder: %w", err)
	}
	if !info.IsDir() {
		return catalogerr.FolderNotFound(fmt.Sprintf("not a directory: %s", root), nil)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return catalogerr.ScanCancelled("scan cancelled")
		default:
		}

		if err != nil {
			if os.IsPermission(err) {
				return catalogerr.PermissionDenied(fmt.Sprintf("cannot read: %s", path), err)
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		return visit(File{AbsolutePath: path, RelativePath: rel, SizeBytes: fi.Size(), ModTime: fi.ModTime()})
	})
}

// Watcher wraps fsnotify to invoke a callback whenever root's tree changes
// on disk. It does no debouncing: the callback fires once per fsnotify
// event.
type Watcher struct {
	fsw    *fsnotify.Watcher
	root   string
	onEvent func()
	done   chan struct{}
}

// Watch starts watching root (recursively) and calls onEvent at least once
// per burst of filesystem activity. Call Close to stop.
func Watch(root string, onEvent func()) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{fsw: fsw, root: root, onEvent: onEvent, done: make(chan struct{})}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // best-effort: a single unreadable subdir shouldn't kill the watch
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch folder tree: %w", err)
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case _, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if w.onEvent != nil {
				w.onEvent()
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watch.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
