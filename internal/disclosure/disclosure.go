// Package disclosure keeps the log of data disclosures: every time subject
// data leaves the system (an access response, a portability export), a
// record of what went to whom and why is appended here. Subjects can review
// their own log.
package disclosure

import (
	"context"
	"sort"
	"sync"
	"time"

	"consentry/internal/datacat"
	id "consentry/pkg/domain"
)

// Record is one disclosure event.
type Record struct {
	ID          id.DisclosureID
	SubjectID   id.SubjectID
	Recipient   id.ActorID
	Purpose     string
	Categories  []datacat.Category
	DisclosedAt time.Time
}

// Store is the append-only disclosure ledger.
type Store interface {
	Append(ctx context.Context, rec Record) error
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]Record, error)
}

// InMemoryStore keeps disclosure records in a slice guarded by a mutex.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Categories = append([]datacat.Category{}, rec.Categories...)
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.SubjectID == subjectID {
			cp := rec
			cp.Categories = append([]datacat.Category{}, rec.Categories...)
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DisclosedAt.Before(out[j].DisclosedAt) })
	return out, nil
}
