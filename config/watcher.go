package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/linchenxuan/lobbyd/event"
	"github.com/linchenxuan/lobbyd/log"
)

// Watcher reloads the configuration when the env file changes and publishes the new
// *Config on event.ReloadConfig.
type Watcher struct {
	path    string
	pub     *event.Publisher
	watcher *fsnotify.Watcher
}

// NewWatcher watches the directory holding envFile, so editors that replace the file by
// rename are seen too.
func NewWatcher(envFile string, pub *event.Publisher) (*Watcher, error) {
	abs, err := filepath.Abs(envFile)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{path: abs, pub: pub, watcher: w}, nil
}

// Run handles file events until ctx is done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Str("file", w.path).Msg("config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		log.Warn().Err(err).Str("file", w.path).Msg("config reload rejected")
		return
	}
	log.Info().Str("file", w.path).Msg("config reloaded")
	if err := w.pub.Publish(event.ReloadConfig, cfg); err != nil {
		log.Warn().Err(err).Msg("config reload publish failed")
	}
}
