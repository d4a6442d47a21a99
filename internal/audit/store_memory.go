package audit

import (
	"context"
	"sync"

	"consentry/internal/platform/privacy"
	id "consentry/pkg/domain"
)

// InMemoryStore keeps audit events per subject. It also backs the audit_logs
// data category: events are anonymized in place, never deleted, to preserve
// the compliance trail through an erasure.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[id.SubjectID][]Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[id.SubjectID][]Event)}
}

func (s *InMemoryStore) Append(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.SubjectID] = append(s.events[event.SubjectID], event)
	return nil
}

func (s *InMemoryStore) ListBySubject(_ context.Context, subjectID id.SubjectID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event{}, s.events[subjectID]...), nil
}

// AnonymizeSubject scrubs actor and subject identifiers from every retained
// event for the subject, rekeying the trail under a stable pseudonym.
func (s *InMemoryStore) AnonymizeSubject(_ context.Context, subjectID id.SubjectID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, ok := s.events[subjectID]
	if !ok || len(events) == 0 {
		return 0, nil
	}

	pseudo := id.SubjectID(privacy.Pseudonym(string(subjectID)))
	for i := range events {
		events[i].SubjectID = pseudo
		if events[i].ActorID == subjectID.Actor() {
			events[i].ActorID = pseudo.Actor()
		} else if !events[i].ActorID.IsEmpty() {
			events[i].ActorID = id.ActorID(privacy.Pseudonym(string(events[i].ActorID)))
		}
		if ip, ok := events[i].Detail["ip_address"]; ok {
			events[i].Detail["ip_address"] = privacy.AnonymizeIP(ip)
		}
	}

	delete(s.events, subjectID)
	s.events[pseudo] = events
	return len(events), nil
}

// Clear resets the store; test helper.
func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = make(map[id.SubjectID][]Event)
}
