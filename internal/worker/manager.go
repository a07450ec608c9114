package worker

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

type DispatcherConfig struct {
	MinWorkers        int
	MaxWorkers        int
	QueueSize         int
	WorkerIdleTimeout time.Duration
}

// Manager is the entry point used by services: it runs tasks so that at most
// one task per session executes at any time, while different sessions run in
// parallel on the shared pool.
type Manager struct {
	dispatcher *Dispatcher
	logger     *zap.Logger
}

func NewManager(cfg DispatcherConfig, logger *zap.Logger) *Manager {
	if cfg.MinWorkers <= 0 {
		cfg.MinWorkers = 1
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = cfg.MinWorkers
	}
	d := NewDispatcher(cfg.MinWorkers, cfg.MaxWorkers, cfg.QueueSize, cfg.WorkerIdleTimeout, logger)
	return &Manager{
		dispatcher: d,
		logger:     d.logger,
	}
}

// Do runs task on the session's queue and waits for its result. The task
// receives ctx. If ctx ends while the task is still queued, Do returns
// ctx.Err() and the task is skipped; once the task has started, Do waits for
// it to return so its result is never lost.
func (m *Manager) Do(ctx context.Context, sessionID string, task Task) (interface{}, error) {
	resultCh := make(chan Result, 1)
	state := new(atomic.Int32)
	job := Job{
		Type:      Run,
		SessionID: sessionID,
		ctx:       ctx,
		task:      task,
		resultCh:  resultCh,
		state:     state,
	}
	if err := m.dispatcher.Submit(job); err != nil {
		m.logger.Warn("job rejected", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}

	select {
	case res := <-resultCh:
		return res.Value, res.Err
	case <-ctx.Done():
		if state.CompareAndSwap(jobQueued, jobAbandoned) {
			return nil, ctx.Err()
		}
		res := <-resultCh
		return res.Value, res.Err
	}
}

// CancelSession drops the session's queued tasks.
func (m *Manager) CancelSession(sessionID string) {
	m.dispatcher.CancelSession(sessionID)
}

func (m *Manager) Pending() int {
	return m.dispatcher.Pending()
}

func (m *Manager) Close() {
	m.dispatcher.Close()
}
