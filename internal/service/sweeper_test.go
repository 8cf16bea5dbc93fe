package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSweeperRunsTasksUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	var failures atomic.Int32

	sweeper := NewSweeper(
		SweepTask{Name: "count", Interval: 5 * time.Millisecond, Run: func(context.Context) (int, error) {
			runs.Add(1)
			return 1, nil
		}},
		SweepTask{Name: "fail", Interval: 5 * time.Millisecond, Run: func(context.Context) (int, error) {
			failures.Add(1)
			return 0, errors.New("store down")
		}},
		SweepTask{Name: "disabled", Interval: 0, Run: func(context.Context) (int, error) {
			t.Error("disabled task must not run")
			return 0, nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	sweeper.Start(ctx)

	assert.Eventually(t, func() bool {
		return runs.Load() >= 2 && failures.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	sweeper.Wait()

	settled := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, runs.Load())
}
