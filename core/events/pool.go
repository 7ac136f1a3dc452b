package events

import (
	"context"
	"sync"
)

// workerPool distributes jobs across a fixed number of workers and collects
// their results.
type workerPool[Job any, Result any] struct {
	numWorkers int
	jobs       chan Job
	results    chan Result
	wg         sync.WaitGroup
}

// newWorkerPool creates a pool with numWorkers workers and room for buffer
// queued jobs. numWorkers below one is raised to one.
func newWorkerPool[Job any, Result any](numWorkers, buffer int) *workerPool[Job, Result] {
	if numWorkers <= 0 {
		numWorkers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &workerPool[Job, Result]{
		numWorkers: numWorkers,
		jobs:       make(chan Job, buffer),
		results:    make(chan Result, buffer),
	}
}

// start begins the workers. workerFn is called for each job.
func (p *workerPool[Job, Result]) start(workerFn func(Job) Result) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				p.results <- workerFn(job)
			}
		}()
	}
}

// submit queues a job, blocking while the queue is full.
func (p *workerPool[Job, Result]) submit(ctx context.Context, job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops accepting jobs. The results channel is closed once every
// queued job has been processed.
func (p *workerPool[Job, Result]) close() {
	close(p.jobs)
	go func() {
		p.wg.Wait()
		close(p.results)
	}()
}

// resultsChan returns the channel results are delivered on.
func (p *workerPool[Job, Result]) resultsChan() <-chan Result {
	return p.results
}
