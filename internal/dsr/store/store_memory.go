package store

import (
	"context"
	"sort"
	"sync"

	"consentry/internal/datacat"
	"consentry/internal/dsr/models"
	"consentry/internal/sentinel"
	id "consentry/pkg/domain"
)

// InMemoryStore keeps requests in a map guarded by a RWMutex. All reads and
// writes copy, so callers never share memory with the store.
type InMemoryStore struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
}

func New() *InMemoryStore {
	return &InMemoryStore{requests: make(map[id.RequestID]*models.Request)}
}

func (s *InMemoryStore) Save(_ context.Context, req *models.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *InMemoryStore) Update(_ context.Context, req *models.Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; !exists {
		return sentinel.ErrNotFound
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *InMemoryStore) UpdateFrom(_ context.Context, req *models.Request, expected models.Status) error {
	if err := req.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.requests[req.ID]
	if !exists {
		return sentinel.ErrNotFound
	}
	if current.Status != expected {
		return sentinel.ErrConflict
	}
	s.requests[req.ID] = copyRequest(req)
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyRequest(req), nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if req.SubjectID == subjectID {
			out = append(out, copyRequest(req))
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *InMemoryStore) ListOpen(_ context.Context) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if !req.Status.Terminal() {
			out = append(out, copyRequest(req))
		}
	}
	sortBySubmission(out)
	return out, nil
}

func (s *InMemoryStore) ListPending(_ context.Context, limit int) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Request
	for _, req := range s.requests {
		if req.Status == models.StatusPending {
			out = append(out, copyRequest(req))
		}
	}
	sortBySubmission(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func sortBySubmission(reqs []*models.Request) {
	sort.Slice(reqs, func(i, j int) bool {
		if reqs[i].SubmittedAt.Equal(reqs[j].SubmittedAt) {
			return reqs[i].ID < reqs[j].ID
		}
		return reqs[i].SubmittedAt.Before(reqs[j].SubmittedAt)
	})
}

func copyRequest(req *models.Request) *models.Request {
	out := *req
	if req.Corrections != nil {
		out.Corrections = make(map[string]string, len(req.Corrections))
		for k, v := range req.Corrections {
			out.Corrections[k] = v
		}
	}
	if req.Result != nil {
		r := *req.Result
		r.Deleted = append([]datacat.Category{}, req.Result.Deleted...)
		r.Retained = append([]models.RetainedCategory{}, req.Result.Retained...)
		r.UpdatedFields = append([]string{}, req.Result.UpdatedFields...)
		out.Result = &r
	}
	return &out
}
