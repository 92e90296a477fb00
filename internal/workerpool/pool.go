// Package workerpool runs a fixed number of long-lived goroutines pulling
// work off a shared queue, supervised by a tomb.Tomb so a pool failure or
// shutdown signal tears every worker down together.
package workerpool

import (
	"github.com/rs/zerolog/log"
	tomb "gopkg.in/tomb.v2"
)

// TaskChanSize bounds how many queued tasks AddTask will buffer before it
// blocks the caller.
const TaskChanSize = 100

// WorkerFunction processes one task. Returning a non-nil error kills the
// worker that was running it; t.Go will then propagate the failure to the
// rest of the tomb.
type WorkerFunction = func(t *tomb.Tomb, task any) error

// WorkerPool is a fixed-size pool of workers draining a shared task queue.
type WorkerPool struct {
	n     int
	tasks chan any
}

// NewWorkerPool constructs a pool sized for size concurrent workers.
func NewWorkerPool(size int) WorkerPool {
	return WorkerPool{
		tasks: make(chan any, TaskChanSize),
		n:     size,
	}
}

// AddTask enqueues task for a worker to pick up. Blocks if the queue is
// full.
func (pool *WorkerPool) AddTask(task any) {
	pool.tasks <- task
}

// Setup starts pool.n workers under t, each running work against tasks
// pulled from the queue until t is dying.
func (pool *WorkerPool) Setup(t *tomb.Tomb, work WorkerFunction) {
	log.Info().Int("workers", pool.n).Msg("starting worker pool")
	for i := 0; i < pool.n; i++ {
		t.Go(func() error {
			return pool.worker(t, work)
		})
	}
}

func (pool *WorkerPool) worker(t *tomb.Tomb, work WorkerFunction) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case task := <-pool.tasks:
			if err := work(t, task); err != nil {
				log.Error().Err(err).Msg("worker task failed")
				return err
			}
		}
	}
}
