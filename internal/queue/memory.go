package queue

import (
	"context"
	"sync"
)

// Handler consumes a job payload. The memory queue invokes it inline, which
// keeps the synchronous test path and the queued production path on the same
// processing code.
type Handler func(ctx context.Context, payload []byte) error

// Memory is an in-process queue. With a handler attached it dispatches
// immediately; without one it records jobs for assertions.
type Memory struct {
	mu      sync.Mutex
	jobs    []RecordedJob
	handler Handler
}

// RecordedJob is a captured enqueue call.
type RecordedJob struct {
	Job     string
	Payload []byte
}

func NewMemory() *Memory {
	return &Memory{}
}

// OnJob attaches an inline handler for subsequent enqueues.
func (m *Memory) OnJob(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = h
}

func (m *Memory) Enqueue(ctx context.Context, job string, payload []byte) error {
	m.mu.Lock()
	m.jobs = append(m.jobs, RecordedJob{Job: job, Payload: append([]byte{}, payload...)})
	h := m.handler
	m.mu.Unlock()

	if h != nil {
		return h(ctx, payload)
	}
	return nil
}

// Jobs returns a copy of everything enqueued so far.
func (m *Memory) Jobs() []RecordedJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedJob{}, m.jobs...)
}
