// Package watcher reloads a loaded geometry when its source file changes on
// disk. Filesystem events are debounced, since editors and exporters often
// produce bursts of writes for one logical save.
package watcher

import (
	"context"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/peterdachuan/displaz/pkg/geometry"
)

// DefaultDebounce is the settle time between the last filesystem event and
// the reload.
const DefaultDebounce = 250 * time.Millisecond

// Watcher reloads one geometry on source file changes.
type Watcher struct {
	geom     geometry.Geometry
	budget   int
	settle   time.Duration
	fsw      *fsnotify.Watcher
	onReload func(error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides the settle time.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.settle = d }
}

// WithReloadCallback registers a callback invoked after every reload
// attempt with its result.
func WithReloadCallback(fn func(error)) Option {
	return func(w *Watcher) { w.onReload = fn }
}

// New watches the source file of an already-loaded geometry. Reloads reuse
// the given vertex budget.
func New(geom geometry.Geometry, budget int, opts ...Option) (*Watcher, error) {
	fileName := geom.FileName()
	if fileName == "" {
		return nil, errors.New("watcher: geometry has no loaded file")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "watcher")
	}
	if err := fsw.Add(fileName); err != nil {
		fsw.Close()
		return nil, errors.Wrap(err, "watcher")
	}
	w := &Watcher{geom: geom, budget: budget, settle: DefaultDebounce, fsw: fsw}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run consumes filesystem events until ctx is cancelled or the watcher is
// closed, reloading the geometry after each debounced change burst.
func (w *Watcher) Run(ctx context.Context) error {
	deb := debounce.New(w.settle)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				deb(func() { w.reload(ctx) })
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logrus.WithError(err).Warn("watch error")
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	err := w.geom.ReloadFile(ctx, w.budget)
	if err != nil {
		logrus.WithError(err).WithField("file", w.geom.FileName()).Warn("reload failed")
	} else {
		logrus.WithFields(logrus.Fields{
			"file":   w.geom.FileName(),
			"points": w.geom.PointCount(),
		}).Info("reloaded")
	}
	if w.onReload != nil {
		w.onReload(err)
	}
}

// Close stops event delivery; a pending Run returns.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
