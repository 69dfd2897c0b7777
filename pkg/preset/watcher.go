package preset

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/NERVsystems/overpassqb/pkg/osm"
)

// DefaultDebounce is how long a preset file must be quiet before it is
// reloaded.
const DefaultDebounce = 300 * time.Millisecond

// Operation is the kind of change seen on a preset file.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Event reports a reloaded preset. For deletions Preset is nil. Err holds
// a load or build error; Query is the regenerated query otherwise.
type Event struct {
	Path      string
	Operation Operation
	Preset    *Preset
	Query     string
	Err       error
}

// Handler is called with every debounced preset change.
type Handler func(ctx context.Context, ev Event)

// WatcherConfig holds watcher configuration.
type WatcherConfig struct {
	Debounce time.Duration
}

// Watcher keeps a Store in sync with its directory and regenerates the
// query of every changed preset.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	store     *Store
	handler   Handler
	logger    *slog.Logger
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*osm.Latest[*Preset]
	ops     map[string]Operation
}

// NewWatcher creates a watcher for the store's directory.
func NewWatcher(cfg WatcherConfig, store *Store, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		fsWatcher: fsWatcher,
		store:     store,
		handler:   handler,
		logger:    logger,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*osm.Latest[*Preset]),
		ops:       make(map[string]Operation),
	}, nil
}

// Start begins watching. Events are processed until ctx is done or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	dir, err := filepath.Abs(w.store.Dir())
	if err != nil {
		return err
	}
	if err := w.fsWatcher.Add(dir); err != nil {
		return err
	}
	w.logger.Info("watching presets", "path", dir)

	go w.eventLoop(ctx)
	return nil
}

// Stop stops the watcher and drops pending reloads.
func (w *Watcher) Stop() error {
	err := w.fsWatcher.Close()

	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]*osm.Latest[*Preset])
	w.mu.Unlock()

	for _, l := range pending {
		l.Stop()
	}
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(ctx, event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleFsEvent records the operation and restarts the file's debounce.
// A delete followed by a create collapses into a create; a delete always
// wins over a modify.
func (w *Watcher) handleFsEvent(ctx context.Context, event fsnotify.Event) {
	if !IsPresetFile(event.Name) {
		return
	}
	op := fsnotifyOpToOperation(event.Op)
	w.logger.Debug("preset file event", "path", event.Name, "op", op.String())

	w.mu.Lock()
	prev, seen := w.ops[event.Name]
	switch {
	case !seen:
		w.ops[event.Name] = op
	case prev == OpDelete && op == OpCreate:
		w.ops[event.Name] = OpCreate
	case op == OpDelete:
		w.ops[event.Name] = OpDelete
	}

	l, ok := w.pending[event.Name]
	if !ok {
		var created *osm.Latest[*Preset]
		created = osm.NewLatest(w.debounce,
			func(ctx context.Context, path string) (*Preset, error) { return Load(path) },
			func(path string, p *Preset, err error) { w.deliver(ctx, created, path, p, err) },
		)
		l = created
		w.pending[event.Name] = l
	}
	w.mu.Unlock()

	l.Update(ctx, event.Name)
}

func (w *Watcher) deliver(ctx context.Context, l *osm.Latest[*Preset], path string, p *Preset, loadErr error) {
	w.mu.Lock()
	op := w.ops[path]
	delete(w.ops, path)
	w.mu.Unlock()

	ev := Event{Path: path, Operation: op}
	switch {
	case errors.Is(loadErr, fs.ErrNotExist):
		ev.Operation = OpDelete
		w.store.Remove(path)
	case loadErr != nil:
		ev.Err = loadErr
	default:
		if op == OpDelete {
			// recreated before the debounce fired
			ev.Operation = OpCreate
		}
		w.store.Put(p)
		ev.Preset = p
		ev.Query, ev.Err = p.Build()
	}

	if ev.Operation == OpDelete {
		w.forget(path, l)
	}

	w.logger.Info("preset reloaded",
		"path", path,
		"operation", ev.Operation.String(),
		"error", ev.Err,
	)
	if w.handler != nil {
		w.handler(ctx, ev)
	}
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}

// forget drops the debouncer of a deleted file unless a newer event
// already replaced it.
func (w *Watcher) forget(path string, l *osm.Latest[*Preset]) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending[path] == l {
		delete(w.pending, path)
	}
}
