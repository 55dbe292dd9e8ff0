package settings

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/dropDatabas3/tcpoidc/internal/events"
	"github.com/dropDatabas3/tcpoidc/internal/observability/logger"
)

// Watcher relee un File cuando cambia en disco y publica SettingsSaved con las keys modificadas.
// Cubre ediciones fuera del proceso (otro nodo, un operador con el editor).
type Watcher struct {
	file     *File
	bus      *events.Dispatcher
	debounce time.Duration

	fsw    *fsnotify.Watcher
	mu     sync.Mutex
	timer  *time.Timer
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher observa el directorio del archivo para soportar escrituras atómicas (rename).
func NewWatcher(file *File, bus *events.Dispatcher, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("settings: create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(file.Path())); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("settings: watch dir: %w", err)
	}
	return &Watcher{file: file, bus: bus, debounce: debounce, fsw: fsw, stopCh: make(chan struct{})}, nil
}

// Start lanza el loop; ctx se usa para los eventos publicados.
func (w *Watcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.loop(ctx)
}

// Stop detiene el loop y libera el watcher.
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.wg.Wait()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()
	log := logger.From(ctx).With(logger.Component("settings.watcher"))

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.file.Path() {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.schedule(ctx)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error", logger.Err(err))
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) reload(ctx context.Context) {
	log := logger.From(ctx).With(logger.Component("settings.watcher"), logger.Op("reload"))
	changed, err := w.file.Reload()
	if err != nil {
		log.Warn("reload failed", logger.Err(err))
		return
	}
	if len(changed) == 0 {
		return
	}
	log.Info("settings changed on disk", logger.Count(len(changed)))
	w.bus.PublishSettingsSaved(ctx, events.SettingsSaved{Keys: changed})
}
