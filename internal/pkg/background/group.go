package background

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Group runs side-effect work off the request-handling critical path while
// keeping it inside the process's graceful-drain window. Tasks get a context
// detached from the request (the inbound response must not wait on them) but
// bounded by a per-task timeout.
type Group struct {
	wg          sync.WaitGroup
	log         *zap.Logger
	taskTimeout time.Duration
}

func NewGroup(log *zap.Logger, taskTimeout time.Duration) *Group {
	return &Group{log: log, taskTimeout: taskTimeout}
}

// Go runs fn in a tracked goroutine. Panics are recovered and logged so one
// bad side effect cannot take the process down.
func (g *Group) Go(name string, fn func(ctx context.Context)) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				g.log.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", r),
				)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), g.taskTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Drain blocks until all running tasks finish or the timeout elapses.
func (g *Group) Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		g.log.Warn("background drain timed out", zap.Duration("timeout", timeout))
		return false
	}
}
