package registry

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watch reloads the target list whenever the backing file changes on disk,
// so operators can edit the JSON directly while the exporter runs. onRemoved
// is called for each target an edit removed, letting the caller drop its
// metric series; it may be nil. Watch blocks until ctx is done.
//
// The registry's own persist cycles also fire events, but they carry the
// in-memory membership and reload as a no-op.
func (r *Registry) Watch(ctx context.Context, onRemoved func(target string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: the atomic rename on persist swaps
	// the inode, which silently drops a watch placed on the file itself. On a
	// fresh install the directory does not exist until the first persist, so
	// create it here or the watch cannot bind.
	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Name != r.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			r.reload(onRemoved)
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(watchErr).Warn("target list watcher error")
		}
	}
}

func (r *Registry) reload(onRemoved func(target string)) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		// The file can be briefly absent mid-replace; the next event catches up.
		return
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		logrus.WithError(err).Warn("ignoring unparseable target list edit")
		return
	}

	next := make(map[string]struct{}, len(list))
	for _, target := range list {
		if target != "" {
			next[target] = struct{}{}
		}
	}

	var removed []string
	r.mu.Lock()
	if membersEqual(r.targets, next) {
		r.mu.Unlock()
		return
	}
	for target := range r.targets {
		if _, ok := next[target]; !ok {
			removed = append(removed, target)
		}
	}
	r.targets = next
	count := len(next)
	r.mu.Unlock()

	logrus.WithField("targets", count).Info("target list reloaded from disk")
	if onRemoved != nil {
		for _, target := range removed {
			onRemoved(target)
		}
	}
}

func membersEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
