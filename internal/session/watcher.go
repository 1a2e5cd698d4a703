package session

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay absorbs bursts of write events while the recorder is still
// flushing the file.
const settleDelay = 500 * time.Millisecond

// mediaWatcher watches one media file and invokes onChange after writes to
// it settle. The recorder appends to the active session's file, so a replay
// opened mid-recording must re-probe when the file grows.
type mediaWatcher struct {
	watcher *fsnotify.Watcher
	done    chan struct{}
}

func watchMedia(path string, log *slog.Logger, onChange func()) (*mediaWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors and recorders often replace the file,
	// which drops a watch placed on the file itself.
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	mw := &mediaWatcher{watcher: w, done: make(chan struct{})}
	base := filepath.Base(path)

	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(settleDelay)
					fire = timer.C
				} else {
					timer.Reset(settleDelay)
				}
			case <-fire:
				timer = nil
				fire = nil
				log.Debug("media file changed", slog.String("path", path))
				onChange()
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("media watcher error", slog.String("error", err.Error()))
			case <-mw.done:
				return
			}
		}
	}()

	return mw, nil
}

func (mw *mediaWatcher) stop() {
	close(mw.done)
	mw.watcher.Close()
}
