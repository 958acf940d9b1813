// Reloads a collection when its documents are edited outside the process.

package jsonldb

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
)

// Watcher reloads a collection's index when document files change on disk.
//
// Bursts of events are coalesced: at most one reload runs per interval.
// Events for documents matching the index, such as the ones written by
// [Collection.Commit] and removed by [Collection.Delete], are ignored.
// metadata.json is not watched since the index is rebuilt from the documents.
type Watcher struct {
	c       *Collection
	fsw     *fsnotify.Watcher
	limiter *rate.Limiter
	cancel  context.CancelFunc
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	reloads int
}

// Watch starts watching the collection directory until ctx is canceled or
// the watcher is closed. The watcher is also closed by [DB.Close].
func (c *Collection) Watch(ctx context.Context, interval time.Duration) (*Watcher, error) {
	if interval <= 0 {
		interval = time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(c.dir); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", c.dir, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		c:       c,
		fsw:     fsw,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go w.run(ctx)
	c.db.addWatcher(w)
	return w, nil
}

// Reloads returns the number of reloads triggered so far.
func (w *Watcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops the watcher and waits for it to exit. It is safe to call more
// than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()
	w.cancel()
	<-w.done
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)
	defer func() { _ = w.fsw.Close() }()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isDocumentEvent(event) || fire != nil || w.c.inSync(filepath.Base(event.Name)) {
				continue
			}
			// The first event of a burst reserves the next reload slot; the
			// reload reads every file so later events need no slot.
			timer = time.NewTimer(w.limiter.Reserve().Delay())
			fire = timer.C
		case <-fire:
			fire = nil
			if err := w.c.ReloadAll(w.c.db.cfg.ChunkSize); err != nil {
				slog.WarnContext(ctx, "Failed to reload collection", "collection", w.c.name, "err", err)
				continue
			}
			w.mu.Lock()
			w.reloads++
			w.mu.Unlock()
			slog.DebugContext(ctx, "Reloaded collection", "collection", w.c.name, "rows", w.c.Count())
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.WarnContext(ctx, "Error watching collection", "collection", w.c.name, "err", err)
		}
	}
}

func isDocumentEvent(e fsnotify.Event) bool {
	name := filepath.Base(e.Name)
	if strings.HasPrefix(name, tmpPrefix) || !strings.HasSuffix(name, documentSuffix) {
		return false
	}
	return e.Has(fsnotify.Create) || e.Has(fsnotify.Write) || e.Has(fsnotify.Remove) || e.Has(fsnotify.Rename)
}

// inSync reports whether the document file name holds exactly the indexed row
// for its id, or is absent while the id is not indexed.
func (c *Collection) inSync(name string) bool {
	id, err := strconv.ParseInt(strings.TrimSuffix(name, documentSuffix), 10, 64)
	if err != nil {
		return false
	}
	c.mu.RLock()
	row, ok := c.rows.get(id)
	var want []byte
	if ok {
		want, err = encodeRow(row)
	}
	c.mu.RUnlock()
	if err != nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(c.dir, name)) //nolint:gosec // G304: name comes from the watched directory
	if errors.Is(err, fs.ErrNotExist) {
		return !ok
	}
	return err == nil && ok && bytes.Equal(data, want)
}
