package store

import (
	"context"
	"sync"

	"consentry/internal/identity/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// InMemoryStore stores subjects in memory for tests and single-process runs.
type InMemoryStore struct {
	mu       sync.RWMutex
	subjects map[id.SubjectID]*models.Subject
}

// New constructs an empty in-memory subject store.
func New() *InMemoryStore {
	return &InMemoryStore{subjects: make(map[id.SubjectID]*models.Subject)}
}

func (s *InMemoryStore) Save(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copySubject := *subject
	s.subjects[subject.ID] = &copySubject
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, subjectID id.SubjectID) (*models.Subject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subject, ok := s.subjects[subjectID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copySubject := *subject
	return &copySubject, nil
}

func (s *InMemoryStore) Update(_ context.Context, subject *models.Subject) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subjects[subject.ID]; !ok {
		return sentinel.ErrNotFound
	}
	copySubject := *subject
	s.subjects[subject.ID] = &copySubject
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, subjectID id.SubjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subjects, subjectID)
	return nil
}
