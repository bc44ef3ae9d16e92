// Package world drives every live view at a fixed tick rate.
package world

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/zeusync/hephaestus/internal/core/observability/log"
	"github.com/zeusync/hephaestus/internal/core/registry"
	"github.com/zeusync/hephaestus/internal/core/view"
	"github.com/zeusync/hephaestus/pkg/concurrent"
)

// DefaultTickRate is the classic 20 ticks per second.
const DefaultTickRate = 20

type Stats struct {
	Ticks    uint64
	Failures uint64
	Panics   uint64
	Views    int
}

type World struct {
	registry *registry.Registry
	interval time.Duration
	workers  int
	logger   log.Log

	ticks    atomic.Uint64
	failures atomic.Uint64
	panics   atomic.Uint64
}

type Option func(*World)

// WithWorkers ticks up to n views in parallel.
func WithWorkers(n int) Option {
	return func(w *World) {
		if n > 0 {
			w.workers = n
		}
	}
}

// New creates a world ticking the registry's views tickRate times per second.
func New(reg *registry.Registry, tickRate int, logger log.Log, opts ...Option) *World {
	if tickRate <= 0 {
		tickRate = DefaultTickRate
	}
	if logger == nil {
		logger = log.Nop()
	}
	w := &World{
		registry: reg,
		interval: time.Second / time.Duration(tickRate),
		workers:  1,
		logger:   logger.With(log.String("component", "world")),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *World) Interval() time.Duration {
	return w.interval
}

// Step ticks every live view once. A failing view is logged and counted and
// never stops the others; destroyed views are dropped from the registry.
func (w *World) Step() {
	w.ticks.Add(1)
	_ = concurrent.ForEach(w.registry.Views(), w.workers, func(v *view.View) error {
		err := w.tick(v)
		if err == nil {
			return nil
		}
		if errors.Is(err, view.ErrViewDestroyed) {
			w.registry.RemoveView(v.ID())
			return nil
		}
		w.failures.Add(1)
		w.logger.Warn("view tick failed",
			log.Stringer("view", v.ID()),
			log.String("model", v.Model().Name()),
			log.Error(err),
		)
		return nil
	})
}

func (w *World) tick(v *view.View) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.panics.Add(1)
			err = fmt.Errorf("view tick panicked: %v", r)
		}
	}()
	return v.Tick()
}

// Run steps the world until ctx is done.
func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("world started", log.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("world stopped", log.Uint64("ticks", w.ticks.Load()))
			return nil
		case <-ticker.C:
			w.Step()
		}
	}
}

func (w *World) Stats() Stats {
	return Stats{
		Ticks:    w.ticks.Load(),
		Failures: w.failures.Load(),
		Panics:   w.panics.Load(),
		Views:    len(w.registry.Views()),
	}
}
