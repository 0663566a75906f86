package httpapi

import (
	"fmt"

	"github.com/provable-labs/remote-prover/internal/prover"
)

// proveJob is one unit of CPU-bound proving work submitted to the
// workerPool once its submitter holds an admission permit.
type proveJob struct {
	resolved *prover.Resolved
	ctx      contextLike
	result   chan proveJobResult
}

type proveJobResult struct {
	result *prover.Result
	err    error
}

// contextLike is the subset of context.Context the worker pool needs;
// kept separate from the context import here purely so this file reads
// top-to-bottom without re-importing "context" for a single method.
type contextLike interface {
	Done() <-chan struct{}
	Err() error
}

// workerPool runs a fixed number of goroutines draining a shared job
// channel, the Go idiom for "never run CPU-bound work on an unbounded
// number of goroutines": the admission semaphore caps how many callers
// are admitted, and the pool caps how many are actually running a proof
// at once, recovering from a panicking proof at a single point per
// worker rather than per request.
type workerPool struct {
	jobs chan proveJob
}

func newWorkerPool(size int, run func(*prover.Resolved, contextLike) (*prover.Result, error)) *workerPool {
	if size < 1 {
		size = 1
	}
	p := &workerPool{jobs: make(chan proveJob)}
	for i := 0; i < size; i++ {
		go p.worker(run)
	}
	return p
}

func (p *workerPool) worker(run func(*prover.Resolved, contextLike) (*prover.Result, error)) {
	for job := range p.jobs {
		job.result <- p.runJob(job, run)
	}
}

func (p *workerPool) runJob(job proveJob, run func(*prover.Resolved, contextLike) (*prover.Result, error)) (out proveJobResult) {
	defer func() {
		if rec := recover(); rec != nil {
			out = proveJobResult{err: fmt.Errorf("proving panicked: %v", rec)}
		}
	}()
	result, err := run(job.resolved, job.ctx)
	return proveJobResult{result: result, err: err}
}

// submit enqueues a job and blocks for its result, respecting ctx
// cancellation while waiting for a free worker.
func (p *workerPool) submit(ctx contextLike, resolved *prover.Resolved) (*prover.Result, error) {
	job := proveJob{resolved: resolved, ctx: ctx, result: make(chan proveJobResult, 1)}
	select {
	case p.jobs <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-job.result:
		return res.result, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
