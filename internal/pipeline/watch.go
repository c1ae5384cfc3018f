package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch starts an fsnotify watcher on the given tier directories and calls
// sync after the directories settle, until ctx is cancelled. Events arriving
// in bursts (a copy of many workbooks, an Office save cycle) are debounced
// so each burst triggers a single sync.
func Watch(ctx context.Context, dirs []string, settle time.Duration, logger *slog.Logger, sync func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	for _, dir := range dirs {
		if err := w.Add(dir); err != nil {
			return err
		}
	}

	logger.Info("watcher: started", slog.Any("dirs", dirs))

	// syncTimer debounces bursts of workbook events into one sync.
	var syncTimer *time.Timer
	var syncCh <-chan time.Time

	schedule := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(settle)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(settle)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-syncCh:
			sync()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			// Office lock files churn constantly while a workbook is open.
			if strings.HasPrefix(name, "~$") || !strings.EqualFold(filepath.Ext(name), ".xlsx") {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				logger.Debug("watcher: workbook changed",
					slog.String("name", name),
					slog.String("op", ev.Op.String()))
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
