package store

import (
	"context"
	"sync"
	"time"

	"consentry/internal/consent/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// InMemoryStore keeps the consent version ledger in memory. Rows are only
// ever appended; the latest version of a record is the last row carrying its
// ConsentID.
type InMemoryStore struct {
	mu sync.RWMutex
	// history per subject and type, in version order
	ledger map[id.SubjectID]map[models.Type][]*models.Record
	// byID indexes the latest version of each consent record
	byID map[id.ConsentID]*models.Record
}

// New constructs an empty in-memory consent store.
func New() *InMemoryStore {
	return &InMemoryStore{
		ledger: make(map[id.SubjectID]map[models.Type][]*models.Record),
		byID:   make(map[id.ConsentID]*models.Record),
	}
}

func (s *InMemoryStore) Append(_ context.Context, rec *models.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	types, ok := s.ledger[rec.SubjectID]
	if !ok {
		types = make(map[models.Type][]*models.Record)
		s.ledger[rec.SubjectID] = types
	}
	history := types[rec.Type]
	rec.Version = len(history) + 1
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	copyRec := *rec
	types[rec.Type] = append(history, &copyRec)
	s.byID[rec.ID] = &copyRec
	return nil
}

func (s *InMemoryStore) AppendVersion(_ context.Context, rec *models.Record, expectedVersion int) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	latest, ok := s.byID[rec.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if latest.Version != expectedVersion {
		return sentinel.ErrConflict
	}

	history := s.ledger[latest.SubjectID][latest.Type]
	rec.Version = len(history) + 1

	copyRec := *rec
	s.ledger[latest.SubjectID][latest.Type] = append(history, &copyRec)
	s.byID[rec.ID] = &copyRec
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, consentID id.ConsentID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[consentID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copyRec := *rec
	return &copyRec, nil
}

func (s *InMemoryStore) FindLatest(_ context.Context, subjectID id.SubjectID, t models.Type) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.ledger[subjectID][t]
	if len(history) == 0 {
		return nil, sentinel.ErrNotFound
	}
	copyRec := *history[len(history)-1]
	return &copyRec, nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID, filter *models.RecordFilter) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := time.Now()
	var result []*models.Record
	for t, history := range s.ledger[subjectID] {
		if len(history) == 0 {
			continue
		}
		latest := history[len(history)-1]
		if filter != nil {
			if filter.Type != nil && t != *filter.Type {
				continue
			}
			if filter.Status != nil && latest.ComputeStatus(now) != *filter.Status {
				continue
			}
		}
		copyRec := *latest
		result = append(result, &copyRec)
	}
	return result, nil
}

func (s *InMemoryStore) ListVersions(_ context.Context, subjectID id.SubjectID, t models.Type) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.ledger[subjectID][t]
	result := make([]*models.Record, 0, len(history))
	for _, rec := range history {
		copyRec := *rec
		result = append(result, &copyRec)
	}
	return result, nil
}
