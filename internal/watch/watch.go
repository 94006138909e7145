// Package watch turns edits of the panel's data files into callbacks.
//
// A Watcher tracks individual files. It watches each file's directory so
// that editors which replace a file by rename are still seen, and it
// debounces bursts of events per file into a single callback. Callbacks run
// one at a time on the goroutine that called Run.
package watch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce is the quiet period before a file's callback fires.
const DefaultDebounce = 100 * time.Millisecond

// Common errors returned by watcher operations.
var (
	ErrWatcherClosed   = errors.New("watcher is closed")
	ErrAlreadyWatching = errors.New("file is already being watched")
	ErrNotWatching     = errors.New("file is not being watched")
)

// Op is a set of file operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

func (op Op) String() string {
	if op == 0 {
		return "NONE"
	}
	var names []string
	for _, e := range opTable {
		if op.Has(e.op) {
			names = append(names, e.name)
		}
	}
	return strings.Join(names, "|")
}

// Event is one debounced change of a watched file. Op accumulates every
// operation seen during the quiet period.
type Event struct {
	Path string
	Op   Op
	At   time.Time
}

// Handler is called with each debounced event of its file.
type Handler func(ctx context.Context, ev Event)

// Stats reports watcher activity.
type Stats struct {
	Files  int
	Raw    int64
	Fired  int64
	Errors int64
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values use DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(w *Watcher) {
		w.log = l
	}
}

type pending struct {
	ev    Event
	timer *time.Timer
}

// Watcher watches a set of files.
type Watcher struct {
	fsw   *fsnotify.Watcher
	delay time.Duration
	log   zerolog.Logger

	mu       sync.Mutex
	files    map[string]Handler
	dirs     map[string]int
	pending  map[string]*pending
	closed   bool
	closeCh  chan struct{}
	fired    chan string
	raw      atomic.Int64
	firedN   atomic.Int64
	errCount atomic.Int64
}

// New creates a watcher. Call Run to start delivering callbacks.
func New(opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsw:     fsw,
		delay:   DefaultDebounce,
		log:     zerolog.Nop(),
		files:   make(map[string]Handler),
		dirs:    make(map[string]int),
		pending: make(map[string]*pending),
		closeCh: make(chan struct{}),
		fired:   make(chan string, 16),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Add watches the file at path. The file need not exist yet but its
// directory must.
func (w *Watcher) Add(path string, h Handler) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.files[abs]; ok {
		return ErrAlreadyWatching
	}
	if w.dirs[dir] == 0 {
		if _, err := os.Stat(dir); err != nil {
			return err
		}
		if err := w.fsw.Add(dir); err != nil {
			return err
		}
	}
	w.dirs[dir]++
	w.files[abs] = h
	w.log.Debug().Str("file", abs).Msg("watching")
	return nil
}

// Remove stops watching the file at path and drops its pending event.
func (w *Watcher) Remove(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.files[abs]; !ok {
		return ErrNotWatching
	}
	delete(w.files, abs)
	if p, ok := w.pending[abs]; ok {
		p.timer.Stop()
		delete(w.pending, abs)
	}
	w.dirs[dir]--
	if w.dirs[dir] == 0 {
		delete(w.dirs, dir)
		return w.fsw.Remove(dir)
	}
	return nil
}

// Files returns the watched file paths.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	return out
}

// Run delivers callbacks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.closeCh:
			return nil

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.errCount.Add(1)
			w.log.Warn().Err(err).Msg("watch error")

		case path := <-w.fired:
			w.deliver(ctx, path)
		}
	}
}

func (w *Watcher) handle(fe fsnotify.Event) {
	op := convertOp(fe.Op)
	if op == 0 {
		return
	}
	abs, err := filepath.Abs(fe.Name)
	if err != nil {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if _, ok := w.files[abs]; !ok {
		return
	}
	w.raw.Add(1)

	if p, ok := w.pending[abs]; ok {
		p.ev.Op |= op
		p.ev.At = time.Now()
		p.timer.Reset(w.delay)
		return
	}
	p := &pending{ev: Event{Path: abs, Op: op, At: time.Now()}}
	p.timer = time.AfterFunc(w.delay, func() {
		select {
		case w.fired <- abs:
		case <-w.closeCh:
		}
	})
	w.pending[abs] = p
}

func (w *Watcher) deliver(ctx context.Context, path string) {
	w.mu.Lock()
	p, ok := w.pending[path]
	if ok {
		delete(w.pending, path)
	}
	h := w.files[path]
	w.mu.Unlock()

	if !ok || h == nil {
		return
	}
	w.firedN.Add(1)
	w.log.Debug().Str("file", path).Str("op", p.ev.Op.String()).Msg("file changed")

	defer func() {
		if r := recover(); r != nil {
			w.errCount.Add(1)
			w.log.Error().Interface("panic", r).Str("file", path).Msg("watch handler panicked")
		}
	}()
	h(ctx, p.ev)
}

// Stats returns watcher statistics.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	files := len(w.files)
	w.mu.Unlock()
	return Stats{
		Files:  files,
		Raw:    w.raw.Load(),
		Fired:  w.firedN.Load(),
		Errors: w.errCount.Load(),
	}
}

// Close stops the watcher. Pending events are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.fsw.Close()
}

var opTable = []struct {
	fs   fsnotify.Op
	op   Op
	name string
}{
	{fsnotify.Create, OpCreate, "CREATE"},
	{fsnotify.Write, OpWrite, "WRITE"},
	{fsnotify.Remove, OpRemove, "REMOVE"},
	{fsnotify.Rename, OpRename, "RENAME"},
	{fsnotify.Chmod, OpChmod, "CHMOD"},
}

func convertOp(fsOp fsnotify.Op) Op {
	var op Op
	for _, e := range opTable {
		if fsOp.Has(e.fs) {
			op |= e.op
		}
	}
	return op
}
