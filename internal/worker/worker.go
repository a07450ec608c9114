package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
)

type JobType string

const (
	Run  JobType = "run"
	Stop JobType = "stop"
)

// Task is the unit of work executed on a pool worker.
type Task func(ctx context.Context) (interface{}, error)

type Result struct {
	Value interface{}
	Err   error
}

const (
	jobQueued int32 = iota
	jobStarted
	jobAbandoned
)

type Job struct {
	Type      JobType
	SessionID string

	ctx      context.Context
	task     Task
	resultCh chan Result
	// state is shared with the submitter: a worker moves it to jobStarted,
	// a caller that stops waiting moves it to jobAbandoned. Whoever gets
	// there first wins.
	state *atomic.Int32
}

// claim marks the job as started. It fails when the caller already gave up.
func (j Job) claim() bool {
	return j.state == nil || j.state.CompareAndSwap(jobQueued, jobStarted)
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	dispatcher *Dispatcher
	jobChannel chan Job
	logger     *zap.Logger
}

func NewWorker(id int, pool *jobChannelPool, dispatcher *Dispatcher) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		dispatcher: dispatcher,
		jobChannel: make(chan Job),
		logger:     dispatcher.logger.With(zap.Int("worker_id", id)),
	}
}

// Start runs the worker loop. A worker hands itself back to the pool after
// every job and exits on a Stop job.
func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				w.logger.Debug("worker retired")
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job)
			w.dispatcher.finish(job.SessionID)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *Worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job panicked", zap.String("session_id", job.SessionID), zap.Any("panic", r))
			job.resultCh <- Result{Err: fmt.Errorf("worker: job panicked: %v", r)}
		}
	}()

	ctx := job.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil || !job.claim() {
		// caller gave up while the job was queued
		if err == nil {
			err = ErrJobCancelled
		}
		job.resultCh <- Result{Err: err}
		return
	}
	w.logger.Debug("job started", zap.String("session_id", job.SessionID))
	value, err := job.task(ctx)
	job.resultCh <- Result{Value: value, Err: err}
}
