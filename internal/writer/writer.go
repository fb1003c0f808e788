// Package writer runs the background batch writer: the long-running task
// that drains the write queue on a size or time trigger and commits each
// drain as one store transaction.
package writer

import (
	"context"
	"time"

	"github.com/mqttsql/persist/internal/interfaces"
	"github.com/mqttsql/persist/internal/queue"
	"github.com/mqttsql/persist/internal/store"
)

// Config wires a Writer to the queue it drains, the store it commits
// into, and the flush interval governing its timeout wakeups.
type Config struct {
	Queue         *queue.Queue
	Store         store.API
	FlushInterval time.Duration
	Logger        interfaces.Logger
	Observer      interfaces.Observer
}

// Writer owns the single background goroutine that empties the queue
// into the store. Its lifecycle is tied to Start/Close, mirroring the
// plugin's Running/Draining states.
type Writer struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Writer bound to parent; cancel it by calling Close.
func New(parent context.Context, cfg Config) *Writer {
	ctx, cancel := context.WithCancel(parent)
	return &Writer{cfg: cfg, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start launches the writer's loop in its own goroutine.
func (w *Writer) Start() {
	go w.loop()
}

func (w *Writer) loop() {
	defer close(w.done)

	timer := time.NewTimer(w.cfg.FlushInterval)
	defer timer.Stop()

	for {
		select {
		case <-w.ctx.Done():
			// Draining: one final drain with no timeout, then exit.
			w.drainAndCommit(context.Background())
			return
		case <-w.cfg.Queue.Signal():
			drainTimer(timer, w.cfg.FlushInterval)
			w.drainAndCommit(w.ctx)
		case <-timer.C:
			w.drainAndCommit(w.ctx)
			timer.Reset(w.cfg.FlushInterval)
		}
	}
}

// drainTimer stops and resets t so a size-triggered wakeup doesn't leave
// a stale timeout pending.
func drainTimer(t *time.Timer, interval time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(interval)
}

func (w *Writer) drainAndCommit(ctx context.Context) {
	entries := w.cfg.Queue.Drain()
	if len(entries) == 0 {
		return
	}

	start := time.Now()
	result, err := w.cfg.Store.ExecBatch(ctx, entries)
	took := uint64(time.Since(start).Nanoseconds())

	if err != nil {
		if w.cfg.Logger != nil {
			w.cfg.Logger.Errorf("batch commit failed, dropping %d entries: %v", len(entries), err)
		}
		if w.cfg.Observer != nil {
			w.cfg.Observer.ObserveBatch(0, 0, len(entries), took)
		}
		return
	}

	if w.cfg.Logger != nil {
		w.cfg.Logger.Debugf("batch committed: %d inserted, %d deleted, %d failed", result.Inserted, result.Deleted, result.Failed)
	}
	if w.cfg.Observer != nil {
		w.cfg.Observer.ObserveBatch(result.Inserted, result.Deleted, result.Failed, took)
	}
}

// Close signals the writer to drain and stop, and blocks until its final
// drain completes.
func (w *Writer) Close() {
	w.cancel()
	<-w.done
}
