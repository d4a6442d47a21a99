// Package queue defines the job dispatch collaborator used to hand DSR
// processing off to workers. Processing logic itself is a pure function of
// (request, collaborators); this package is only the transport adapter.
package queue

import "context"

// Job names
const (
	JobProcessDSR = "dsr.process"
)

// Enqueuer hands a job to the dispatch backend. Implementations must be safe
// for concurrent use.
type Enqueuer interface {
	Enqueue(ctx context.Context, job string, payload []byte) error
}
