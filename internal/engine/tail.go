package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// pollDefault is the catch-up interval used alongside fsnotify, which can
// miss events on some filesystems.
const pollDefault = 2 * time.Second

// maxPartial bounds the buffered tail of an unterminated line.
const maxPartial = 1 << 20

// tailer follows one append-only feed file. It is not safe for concurrent
// use; FeedCapture serializes access.
type tailer struct {
	path    string
	offset  int64
	partial []byte
}

// read returns the complete lines appended since the last read. A missing
// file yields no lines. A file shorter than the last offset is treated as
// truncated or rotated and re-read from the start.
func (t *tailer) read() ([][]byte, error) {
	f, err := os.Open(t.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < t.offset {
		t.offset = 0
		t.partial = nil
	}
	if info.Size() == t.offset {
		return nil, nil
	}

	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	t.offset += int64(len(data))

	buf := append(t.partial, data...)
	var lines [][]byte
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if line := bytes.TrimSpace(buf[:i]); len(line) > 0 {
			lines = append(lines, append([]byte(nil), line...))
		}
		buf = buf[i+1:]
	}
	if len(buf) > maxPartial {
		buf = nil
	}
	t.partial = append([]byte(nil), buf...)
	return lines, nil
}

// feedWatcher signals when any feed file may have grown.
type feedWatcher struct {
	watcher  *fsnotify.Watcher
	files    map[string]bool
	interval time.Duration
}

// newFeedWatcher watches the parent directory of every feed so files created
// after Start are picked up.
func newFeedWatcher(paths []string, interval time.Duration) (*feedWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("engine: create file watcher: %w", err)
	}

	files := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			watcher.Close()
			return nil, fmt.Errorf("engine: resolve %q: %w", p, err)
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("engine: watch %q: %w", dir, err)
		}
	}

	if interval == 0 {
		interval = pollDefault
	}
	return &feedWatcher{watcher: watcher, files: files, interval: interval}, nil
}

// Run calls onChange after relevant file events and on every poll tick.
// Blocks until ctx is cancelled.
func (w *feedWatcher) Run(ctx context.Context, onChange func(), onError func(error)) {
	defer func() { _ = w.watcher.Close() }()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			onChange()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.files[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				onChange()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			onError(err)
		}
	}
}
