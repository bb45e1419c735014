// Package fswatch notifies callers when files in a workspace change.
package fswatch

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/sidkik/kdeploy/pkg/errors"
	"github.com/sidkik/kdeploy/pkg/ignore"
)

var fs = afero.NewOsFs()

// Watcher sends an event on Changes whenever a file in the workspace that
// isn't ignored changes. Bursts of changes may be combined into one event.
type Watcher struct {
	Changes <-chan struct{}

	watcher *fsnotify.Watcher
}

// Watch starts watching the workspace at root.
func Watch(root string, filter *ignore.Filter) (*Watcher, error) {
	dirs, err := getDirsToWatch(root, filter)
	if err != nil {
		return nil, errors.WithContext(err, "get paths")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WithContext(err, "create watcher")
	}

	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			// Close the watcher so that we release the file handlers for the
			// previously added paths.
			if err := watcher.Close(); err != nil {
				log.WithError(err).Warn("Failed to close file watcher")
			}

			return nil, errors.WithContext(err, fmt.Sprintf("watch %q", dir))
		}
	}

	go logErrors(watcher.Errors)
	return &Watcher{
		Changes: combineUpdates(root, filter, watcher.Events, watcher.Add),
		watcher: watcher,
	}, nil
}

// Close stops watching. Changes is closed once the pending events have been
// drained.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func logErrors(errs <-chan error) {
	for err := range errs {
		log.WithError(err).Debug("File watcher error")
	}
}

// combineUpdates drops updates to ignored files, and merges the rest so that
// a slow consumer only sees one pending event. Newly created directories are
// passed to `watch` since fsnotify doesn't watch recursively.
func combineUpdates(root string, filter *ignore.Filter, updates <-chan fsnotify.Event,
	watch func(string) error) chan struct{} {

	combined := make(chan struct{}, 1)
	go func() {
		defer close(combined)
		for event := range updates {
			rel, err := filepath.Rel(root, event.Name)
			if err != nil {
				continue
			}

			if filter != nil && filter.Ignores(rel) {
				continue
			}

			if event.Op&fsnotify.Create != 0 && watch != nil {
				if fi, err := fs.Stat(event.Name); err == nil && fi.IsDir() {
					if err := watch(event.Name); err != nil {
						log.WithError(err).WithField("path", event.Name).Warn(
							"Failed to watch new directory")
					}
				}
			}

			select {
			case combined <- struct{}{}:
			default:
			}
		}
	}()
	return combined
}

// getDirsToWatch returns root and every directory beneath it that isn't
// ignored. Watching a directory reports changes to the files inside it.
func getDirsToWatch(root string, filter *ignore.Filter) (dirs []string, err error) {
	fi, err := fs.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileNotFound{Path: root}
		}
		return nil, errors.WithContext(err, "stat")
	}

	if !fi.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", root)
	}

	err = afero.Walk(fs, root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return errors.WithContext(err, "walk error")
		}

		if !fi.IsDir() {
			return nil
		}

		if path != root && filter != nil {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return errors.WithContext(err, "normalize path")
			}

			if filter.IgnoresDir(rel) {
				return filepath.SkipDir
			}
		}

		dirs = append(dirs, path)
		return nil
	})
	return dirs, err
}

// Debounce sends an event on the returned channel once `quiet` has passed
// without any events on `in`. The returned channel is closed when `in` is.
func Debounce(clock clockwork.Clock, in <-chan struct{}, quiet time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			if _, ok := <-in; !ok {
				return
			}

			timer := clock.NewTimer(quiet)
		wait:
			for {
				select {
				case _, ok := <-in:
					if !ok {
						timer.Stop()
						return
					}
					timer.Reset(quiet)
				case <-timer.Chan():
					break wait
				}
			}

			select {
			case out <- struct{}{}:
			default:
			}
		}
	}()
	return out
}
