package service

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SweepTask is one periodic cleanup job.
type SweepTask struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) (int, error)
}

// Sweeper runs each task on its own ticker until the context is cancelled.
type Sweeper struct {
	tasks []SweepTask
	wg    sync.WaitGroup
}

func NewSweeper(tasks ...SweepTask) *Sweeper {
	return &Sweeper{tasks: tasks}
}

func (s *Sweeper) Start(ctx context.Context) {
	for _, task := range s.tasks {
		if task.Interval <= 0 || task.Run == nil {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, task)
	}
}

// Wait blocks until every loop has observed cancellation.
func (s *Sweeper) Wait() {
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context, task SweepTask) {
	defer s.wg.Done()

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, task)
		}
	}
}

func (s *Sweeper) runOnce(ctx context.Context, task SweepTask) {
	removed, err := task.Run(ctx)
	if err != nil {
		slog.Error("sweep failed", "task", task.Name, "error", err)
		return
	}
	if removed > 0 {
		slog.Info("sweep completed", "task", task.Name, "removed", removed)
	}
}
