package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers is a fixed set of goroutines sharing one cancelable context.
type StoppableWorkers interface {
	// Stop cancels the workers' context and blocks until every worker has returned. Calling it
	// more than once is safe.
	Stop()
}

type workerGroup struct {
	cancel context.CancelFunc
	done   sync.WaitGroup
}

// NewStoppableWorkers starts each function in its own goroutine. A panicking worker is logged
// and counts as returned.
func NewStoppableWorkers(funcs ...func(context.Context)) StoppableWorkers {
	ctx, cancel := context.WithCancel(context.Background())
	g := &workerGroup{cancel: cancel}
	g.done.Add(len(funcs))
	for _, f := range funcs {
		goutils.PanicCapturingGo(func() {
			defer g.done.Done()
			f(ctx)
		})
	}
	return g
}

func (g *workerGroup) Stop() {
	g.cancel()
	g.done.Wait()
}
