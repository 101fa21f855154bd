// Package watch runs the redaction pipeline over record files dropped
// into an inbox directory. New files are debounce-collected from
// filesystem events and dispatched to a fixed worker pool; processed
// inputs are archived to done/ or failed/ beside their redacted output.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/veildata/veil/internal/record"
)

// DefaultWorkers is the size of the processing pool.
const DefaultWorkers = 4

// defaultDebounce batches bursts of filesystem events before dispatch.
const defaultDebounce = 200 * time.Millisecond

// queueSize buffers the work queue well past the pool size so a burst of
// dropped files never blocks the debounce flush.
const queueSize = 200

const dirPerm = 0o750

// Runner is the slice of the orchestrator the watcher drives. The result
// is never nil; file-level failures come back as status failed.
type Runner interface {
	ProcessFile(ctx context.Context, inPath, outPath string) *record.JobResult
}

// Watcher owns one inbox directory and its out/, done/ and failed/
// subdirectories.
type Watcher struct {
	inbox    string
	runner   Runner
	workers  int
	debounce time.Duration
	schedule string

	mu       sync.Mutex
	inFlight map[string]bool
}

// Option configures the Watcher.
type Option func(*Watcher)

// WithWorkers sets the processing pool size.
func WithWorkers(n int) Option {
	return func(w *Watcher) {
		if n > 0 {
			w.workers = n
		}
	}
}

// WithDebounce sets the event batching interval.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithSchedule sets the cron spec for the periodic full resweep.
func WithSchedule(spec string) Option {
	return func(w *Watcher) { w.schedule = spec }
}

// NewWatcher builds a watcher over inbox backed by runner.
func NewWatcher(inbox string, runner Runner, opts ...Option) *Watcher {
	w := &Watcher{
		inbox:    inbox,
		runner:   runner,
		workers:  DefaultWorkers,
		debounce: defaultDebounce,
		inFlight: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OutDir is where redacted outputs land.
func (w *Watcher) OutDir() string { return filepath.Join(w.inbox, "out") }

// DoneDir is where successfully processed inputs are archived.
func (w *Watcher) DoneDir() string { return filepath.Join(w.inbox, "done") }

// FailedDir is where inputs that failed processing are archived.
func (w *Watcher) FailedDir() string { return filepath.Join(w.inbox, "failed") }

// EnsureDirs creates the inbox layout. Idempotent.
func (w *Watcher) EnsureDirs() error {
	for _, dir := range []string{w.inbox, w.OutDir(), w.DoneDir(), w.FailedDir()} {
		if err := os.MkdirAll(dir, dirPerm); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Run watches the inbox until ctx is cancelled. Files already present at
// startup are swept in, and a cron resweep catches anything the
// filesystem events missed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.EnsureDirs(); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("starting filesystem watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(w.inbox); err != nil {
		return fmt.Errorf("watching %s: %w", w.inbox, err)
	}

	// ready collects paths between debounce fires. A single timer resets
	// on each event; when it fires, the whole batch flushes to the work
	// queue. No per-file goroutines.
	var mu sync.Mutex
	ready := make(map[string]bool)
	queue := make(chan string, queueSize)

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range queue {
				w.process(ctx, path)
			}
		}()
	}

	debounceTimer := time.NewTimer(w.debounce)
	debounceTimer.Stop()

	enqueue := func(path string) {
		mu.Lock()
		ready[path] = true
		if !debounceTimer.Stop() {
			select {
			case <-debounceTimer.C:
			default:
			}
		}
		debounceTimer.Reset(w.debounce)
		mu.Unlock()
	}

	flush := func() {
		mu.Lock()
		batch := make([]string, 0, len(ready))
		for p := range ready {
			batch = append(batch, p)
		}
		ready = make(map[string]bool)
		mu.Unlock()

		for _, p := range batch {
			select {
			case queue <- p:
			case <-ctx.Done():
				return
			}
		}
	}

	sweep := func() {
		entries, err := os.ReadDir(w.inbox)
		if err != nil {
			log.Warn().Err(err).Str("inbox", w.inbox).Msg("inbox sweep failed")
			return
		}
		queued := 0
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			path := filepath.Join(w.inbox, e.Name())
			if !isRecordFile(path) {
				continue
			}
			enqueue(path)
			queued++
		}
		if queued > 0 {
			log.Info().Int("files", queued).Msg("inbox sweep queued files")
		}
	}

	// Catch files that arrived while the watcher was down.
	sweep()

	sweeper, err := NewSweeper(w.schedule, sweep)
	if err != nil {
		return err
	}
	sweeper.Start()

	defer func() {
		sweeper.Stop()
		debounceTimer.Stop()
		flush()
		close(queue)
		wg.Wait()
	}()

	log.Info().
		Str("inbox", w.inbox).
		Int("workers", w.workers).
		Msg("watching inbox")

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-debounceTimer.C:
			flush()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !isRecordFile(event.Name) {
				continue
			}
			enqueue(event.Name)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("filesystem watcher error")
		}
	}
}

// process runs one inbox file through the pipeline and archives it.
// The fsnotify path and the cron sweep can both queue the same file, so
// entry is deduplicated against the in-flight set and a vanished file
// (already archived by an earlier pass) is skipped silently.
func (w *Watcher) process(ctx context.Context, path string) {
	if ctx.Err() != nil {
		// Shutting down. Leave the file for the next startup sweep
		// instead of recording a spurious failure.
		return
	}

	w.mu.Lock()
	if w.inFlight[path] {
		w.mu.Unlock()
		return
	}
	w.inFlight[path] = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.inFlight, path)
		w.mu.Unlock()
	}()

	if _, err := os.Stat(path); err != nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("path", path).Str("panic", fmt.Sprint(r)).Msg("inbox processing panicked")
		}
	}()

	outPath := filepath.Join(w.OutDir(), record.RedactedName(filepath.Base(path)))
	result := w.runner.ProcessFile(ctx, path, outPath)

	dest := w.DoneDir()
	if result.Status == record.StatusFailed {
		dest = w.FailedDir()
	}
	if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
		log.Error().Err(err).Str("path", path).Msg("archiving processed file failed")
	}
}

// isRecordFile reports whether path names a processable record file:
// .json or .jsonl, not a .tmp partial write, not a dotfile.
func isRecordFile(path string) bool {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".json" || ext == ".jsonl"
}
