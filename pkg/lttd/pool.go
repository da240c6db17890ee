package lttd

import (
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// workerPool runs the session goroutines and tracks how many are alive
type workerPool struct {
	group  errgroup.Group
	logger *zap.Logger

	running atomic.Int32
}

func newWorkerPool(logger *zap.Logger) *workerPool {
	return &workerPool{logger: logger}
}

// Go launches a named goroutine
func (p *workerPool) Go(name string, fn func() error) {
	p.running.Add(1)

	p.group.Go(func() error {
		defer p.running.Add(-1)

		p.logger.Debug("Starting goroutine", zap.String("name", name))
		defer p.logger.Debug("Goroutine stopped", zap.String("name", name))

		return fn()
	})
}

// Wait blocks until every goroutine returned and reports the first error
func (p *workerPool) Wait() error {
	return p.group.Wait()
}

// Running returns the number of goroutines still alive
func (p *workerPool) Running() int32 {
	return p.running.Load()
}
