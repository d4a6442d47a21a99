package datacat

import (
	"context"
	"sync"

	"consentry/internal/platform/privacy"
)

// MemoryHandler is an in-memory category handler. Production deployments
// register handlers backed by the real stores; the memory variant serves
// tests and single-process runs with identical semantics.
type MemoryHandler struct {
	category        Category
	subjectProvided bool
	// internalFields are excluded from Collect output (e.g. password hashes).
	internalFields map[string]bool

	mu   sync.RWMutex
	rows map[string][]map[string]any
}

// MemoryOption configures a MemoryHandler.
type MemoryOption func(*MemoryHandler)

// WithInternalFields marks fields that never leave the store via Collect.
func WithInternalFields(fields ...string) MemoryOption {
	return func(h *MemoryHandler) {
		for _, f := range fields {
			h.internalFields[f] = true
		}
	}
}

func NewMemoryHandler(category Category, subjectProvided bool, opts ...MemoryOption) *MemoryHandler {
	h := &MemoryHandler{
		category:        category,
		subjectProvided: subjectProvided,
		internalFields:  make(map[string]bool),
		rows:            make(map[string][]map[string]any),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MemoryHandler) Category() Category    { return h.category }
func (h *MemoryHandler) SubjectProvided() bool { return h.subjectProvided }

// Put stores a row for a subject; seeding helper.
func (h *MemoryHandler) Put(subjectID string, row map[string]any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rows[subjectID] = append(h.rows[subjectID], copyRow(row))
}

// Rows returns the subject's raw rows, internal fields included; test helper.
func (h *MemoryHandler) Rows(subjectID string) []map[string]any {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return copyRows(h.rows[subjectID])
}

func (h *MemoryHandler) Collect(_ context.Context, subjectID string) ([]map[string]any, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []map[string]any
	for _, row := range h.rows[subjectID] {
		filtered := make(map[string]any, len(row))
		for k, v := range row {
			if h.internalFields[k] {
				continue
			}
			filtered[k] = v
		}
		out = append(out, filtered)
	}
	return out, nil
}

func (h *MemoryHandler) Snapshot(_ context.Context, subjectID string) (RestoreFunc, error) {
	h.mu.RLock()
	saved := copyRows(h.rows[subjectID])
	_, existed := h.rows[subjectID]
	h.mu.RUnlock()

	return func(context.Context) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existed {
			h.rows[subjectID] = saved
		} else {
			delete(h.rows, subjectID)
		}
		return nil
	}, nil
}

func (h *MemoryHandler) Delete(_ context.Context, subjectID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rows, subjectID)
	return nil
}

func (h *MemoryHandler) Anonymize(_ context.Context, subjectID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	rows := h.rows[subjectID]
	for _, row := range rows {
		row["subject_id"] = subjectID
		privacy.ScrubFields(row, privacy.DefaultRemoveFields)
	}
	if len(rows) > 0 {
		// Rekey under the pseudonym so the original identifier is gone.
		delete(h.rows, subjectID)
		h.rows[privacy.Pseudonym(subjectID)] = rows
	}
	return nil
}

func copyRow(row map[string]any) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[k] = v
	}
	return out
}

func copyRows(rows []map[string]any) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = copyRow(row)
	}
	return out
}

// FailingHandler wraps a Handler and fails the chosen operation; exists so
// tests can prove the cascade rolls back on mid-run failure.
type FailingHandler struct {
	Handler
	FailDelete    bool
	FailAnonymize bool
	FailSnapshot  bool
	Err           error
}

func (f *FailingHandler) Snapshot(ctx context.Context, subjectID string) (RestoreFunc, error) {
	if f.FailSnapshot {
		return nil, f.Err
	}
	return f.Handler.Snapshot(ctx, subjectID)
}

func (f *FailingHandler) Delete(ctx context.Context, subjectID string) error {
	if f.FailDelete {
		return f.Err
	}
	return f.Handler.Delete(ctx, subjectID)
}

func (f *FailingHandler) Anonymize(ctx context.Context, subjectID string) error {
	if f.FailAnonymize {
		return f.Err
	}
	return f.Handler.Anonymize(ctx, subjectID)
}
