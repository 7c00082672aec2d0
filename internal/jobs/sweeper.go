// Package jobs corre el mantenimiento en segundo plano. Nada de lo que hace
// es necesario para la correctitud: el vencimiento siempre se calcula al
// leer.
package jobs

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"patient-records-access/internal/platform/logger"
)

const DefaultInterval = time.Minute

// Task es una pasada idempotente que devuelve cuántas filas tocó.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

type Sweeper struct {
	tasks    []Task
	interval time.Duration
	log      logger.Logger

	startOnce sync.Once
	started   atomic.Bool
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

func NewSweeper(interval time.Duration, log logger.Logger, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Sweeper{
		tasks:    tasks,
		interval: interval,
		log:      log.With(map[string]any{"component": "sweeper"}),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start lanza el loop en una goroutine. Se detiene con Stop o al cancelar ctx.
// Llamarlo más de una vez no lanza otro loop.
func (s *Sweeper) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.started.Store(true)
		s.log.Info("starting sweeper", map[string]any{"interval": s.interval.String(), "tasks": len(s.tasks)})
		go s.loop(ctx)
	})
}

// Stop corta el loop y espera a que termine la pasada en curso. Sin Start
// previo no hay nada que esperar.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started.Load() {
		<-s.done
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.done)

	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.stop:
			s.log.Info("sweeper stopped", nil)
			return
		case <-ctx.Done():
			s.log.Info("sweeper cancelled", nil)
			return
		}
	}
}

// RunOnce corre cada tarea una vez. Un error en una tarea no frena a las
// demás.
func (s *Sweeper) RunOnce(ctx context.Context) map[string]int {
	out := make(map[string]int, len(s.tasks))
	for _, t := range s.tasks {
		if ctx.Err() != nil {
			return out
		}
		n, err := t.Run(ctx)
		if err != nil {
			s.log.Error("sweep task failed", map[string]any{"task": t.Name, "error": err.Error()})
			continue
		}
		out[t.Name] = n
		if n > 0 {
			s.log.Info("sweep task done", map[string]any{"task": t.Name, "rows": n})
		}
	}
	return out
}
