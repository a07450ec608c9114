package worker

import (
	"container/list"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrDispatcherBusy is returned when the pending job limit is reached.
	ErrDispatcherBusy = errors.New("worker: dispatcher queue full")
	// ErrDispatcherClosed is returned for jobs submitted or queued after Close.
	ErrDispatcherClosed = errors.New("worker: dispatcher closed")
	// ErrJobCancelled is returned for queued jobs dropped by CancelSession.
	ErrJobCancelled = errors.New("worker: job cancelled")
)

type sessionQueue struct {
	jobs     []Job
	enqueued bool // sits in the ready list
	running  bool // a worker holds one of its jobs
}

// Dispatcher hands jobs to pool workers, one session at a time. Sessions with
// pending work take turns in a FIFO ready list, and a session only re-enters
// the list once its running job has finished.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job // interface for outer jobs get in the dispatcher
	logger   *zap.Logger

	mu        sync.Mutex
	queues    map[string]*sessionQueue
	ready     *list.List
	positions map[string]*list.Element

	limit   int64
	pending atomic.Int64
	wake    chan struct{}
	done    chan struct{}
	closed  atomic.Bool
}

func NewDispatcher(minWorkers, maxWorkers, queueSize int, idleTimeout time.Duration, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		JobQueue:  make(chan Job, queueSize),
		logger:    workerLogger(logger),
		queues:    make(map[string]*sessionQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
		limit:     int64(queueSize),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	d.pool = newJobChannelPool(minWorkers, maxWorkers, idleTimeout, d)

	for i := 0; i < d.pool.min; i++ {
		d.pool.spawnWorker()
	}

	go d.run()
	return d
}

// Submit queues job without blocking. It fails with ErrDispatcherBusy once
// queueSize jobs are pending or running.
func (d *Dispatcher) Submit(job Job) error {
	if d.closed.Load() {
		return ErrDispatcherClosed
	}
	if d.pending.Add(1) > d.limit {
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}
	select {
	case d.JobQueue <- job:
		return nil
	default:
		d.pending.Add(-1)
		return ErrDispatcherBusy
	}
}

// Pending reports jobs accepted but not yet finished.
func (d *Dispatcher) Pending() int {
	return int(d.pending.Load())
}

// queued reports jobs waiting behind the session's running one.
func (d *Dispatcher) queued(sessionID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q := d.queues[sessionID]; q != nil {
		return len(q.jobs)
	}
	return 0
}

func (d *Dispatcher) run() {
	for {
		if d.dispatchOne() {
			// pick up new work without blocking
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			default:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.done:
			d.drain()
			return
		}
	}
}

// CancelSession drops the session's queued jobs. A job already running is
// left alone.
func (d *Dispatcher) CancelSession(sessionID string) {
	d.mu.Lock()
	q := d.queues[sessionID]
	if q == nil {
		d.mu.Unlock()
		return
	}
	dropped := q.jobs
	q.jobs = nil
	if elem, ok := d.positions[sessionID]; ok {
		d.ready.Remove(elem)
		delete(d.positions, sessionID)
		q.enqueued = false
	}
	if !q.running {
		delete(d.queues, sessionID)
	}
	d.mu.Unlock()

	for _, job := range dropped {
		d.reject(job, ErrJobCancelled)
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.SessionID]
	if q == nil {
		q = &sessionQueue{}
		d.queues[job.SessionID] = q
	}
	q.jobs = append(q.jobs, job)
	d.markReadyLocked(job.SessionID, q)
}

func (d *Dispatcher) markReadyLocked(sessionID string, q *sessionQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[sessionID] = d.ready.PushBack(sessionID)
}

// dispatchOne hands the head session's oldest job to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	sessionID := elem.Value.(string)
	q := d.queues[sessionID]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.running = true
	q.enqueued = false
	d.ready.Remove(elem)
	delete(d.positions, sessionID)
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		d.reject(job, ErrDispatcherClosed)
		d.settle(sessionID, false)
		return true
	}
	d.logger.Debug("assign job", zap.String("type", string(job.Type)), zap.String("session_id", sessionID))
	workerChan <- job
	return true
}

// finish is called by a worker once its job returned.
func (d *Dispatcher) finish(sessionID string) {
	d.settle(sessionID, true)
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) settle(sessionID string, ran bool) {
	d.mu.Lock()
	if q := d.queues[sessionID]; q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, sessionID)
		} else {
			d.markReadyLocked(sessionID, q)
		}
	}
	d.mu.Unlock()
	if ran {
		d.pending.Add(-1)
	}
}

func (d *Dispatcher) reject(job Job, err error) {
	d.pending.Add(-1)
	if job.resultCh != nil {
		job.resultCh <- Result{Err: err}
	}
}

// Close stops accepting work, fails whatever is still queued and retires the
// workers once they are done.
func (d *Dispatcher) Close() {
	if d.closed.Swap(true) {
		return
	}
	d.pool.close()
	close(d.done)
}

func (d *Dispatcher) drain() {
	for {
		select {
		case job := <-d.JobQueue:
			d.reject(job, ErrDispatcherClosed)
		default:
			d.mu.Lock()
			var dropped []Job
			for id, q := range d.queues {
				dropped = append(dropped, q.jobs...)
				q.jobs = nil
				if !q.running {
					delete(d.queues, id)
				}
			}
			d.ready.Init()
			d.positions = make(map[string]*list.Element)
			d.mu.Unlock()
			for _, job := range dropped {
				d.reject(job, ErrDispatcherClosed)
			}
			return
		}
	}
}
