// Package retention implements the periodic sweeper that purges rows
// older than the configured retention horizon. It runs independently of
// the batch writer, on its own hourly ticker, serializing its access to
// the store through the same adapter the writer uses.
package retention

import (
	"context"
	"time"

	"github.com/mqttsql/persist/internal/interfaces"
	"github.com/mqttsql/persist/internal/store"
	"github.com/mqttsql/persist/internal/ulid"
)

// Config wires a Sweeper to the store it purges and the horizon it
// enforces. Horizon <= 0 means the sweeper is inert: its loop only waits
// for Close and never purges.
type Config struct {
	Store    store.API
	Horizon  time.Duration
	Interval time.Duration // defaults to an hour if zero
	Logger   interfaces.Logger
}

// Sweeper owns the hourly purge goroutine.
type Sweeper struct {
	cfg    Config
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Sweeper bound to parent. Call Start to launch it.
func New(parent context.Context, cfg Config) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	ctx, cancel := context.WithCancel(parent)
	return &Sweeper{cfg: cfg, ctx: ctx, cancel: cancel, done: make(chan struct{})}
}

// Start launches the sweep loop. When Horizon is zero or negative, the
// sweeper is inert: the loop still runs so Close behaves uniformly, but
// it never purges anything.
func (s *Sweeper) Start() {
	go s.loop()
}

func (s *Sweeper) loop() {
	defer close(s.done)

	if s.cfg.Horizon <= 0 {
		<-s.ctx.Done()
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	boundary := time.Now().Add(-s.cfg.Horizon)
	prefix := ulid.Prefix(boundary)

	removed, err := s.cfg.Store.Retention(s.ctx, prefix)
	if err != nil {
		if s.cfg.Logger != nil {
			s.cfg.Logger.Errorf("retention sweep failed: %v", err)
		}
		return
	}
	if s.cfg.Logger != nil && removed > 0 {
		s.cfg.Logger.Infof("retention sweep removed %d rows older than %s", removed, boundary.Format(time.RFC3339))
	}
}

// Close stops the sweeper and waits for its loop to exit.
func (s *Sweeper) Close() {
	s.cancel()
	<-s.done
}
