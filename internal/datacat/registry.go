package datacat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	dErrors "consentry/pkg/domain-errors"
)

// Registry holds every category handler the system knows about.
type Registry struct {
	handlers map[Category]Handler
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger, handlers ...Handler) *Registry {
	r := &Registry{
		handlers: make(map[Category]Handler, len(handlers)),
		logger:   logger,
	}
	for _, h := range handlers {
		r.handlers[h.Category()] = h
	}
	return r
}

// Register adds or replaces a handler.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Category()] = h
}

// Categories lists registered categories in stable order.
func (r *Registry) Categories() []Category {
	cats := make([]Category, 0, len(r.handlers))
	for c := range r.handlers {
		cats = append(cats, c)
	}
	sort.Slice(cats, func(i, j int) bool { return cats[i] < cats[j] })
	return cats
}

// Handler returns the handler for a category, or nil.
func (r *Registry) Handler(c Category) Handler {
	return r.handlers[c]
}

// CascadeResult reports what a committed cascade actually touched.
type CascadeResult struct {
	Deleted    []Category
	Anonymized []Category
}

// Touched reports whether at least one category was deleted or anonymized.
func (cr CascadeResult) Touched() bool {
	return len(cr.Deleted)+len(cr.Anonymized) > 0
}

// Plan partitions categories for one cascade run.
type Plan struct {
	Delete    []Category
	Anonymize []Category
}

// Cascade deletes and anonymizes the planned categories for one subject as a
// single atomic unit. Before any mutation, every affected handler is
// snapshotted; if any step fails, all prior changes are restored and the
// whole run reports failure with zero observable changes.
func (r *Registry) Cascade(ctx context.Context, subjectID string, plan Plan) (CascadeResult, error) {
	type step struct {
		category Category
		restore  RestoreFunc
	}

	var done []step
	rollback := func() {
		// Restore in reverse order; restore failures are logged, not masked.
		for i := len(done) - 1; i >= 0; i-- {
			if err := done[i].restore(ctx); err != nil && r.logger != nil {
				r.logger.ErrorContext(ctx, "cascade rollback failed for category",
					"category", done[i].category,
					"subject_id", subjectID,
					"error", err,
				)
			}
		}
	}

	var result CascadeResult

	for _, c := range plan.Delete {
		h, ok := r.handlers[c]
		if !ok {
			rollback()
			return CascadeResult{}, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no handler registered for category %s", c))
		}
		restore, err := h.Snapshot(ctx, subjectID)
		if err != nil {
			rollback()
			return CascadeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("snapshot %s failed", c))
		}
		if err := h.Delete(ctx, subjectID); err != nil {
			rollback()
			return CascadeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("delete %s failed", c))
		}
		done = append(done, step{category: c, restore: restore})
		result.Deleted = append(result.Deleted, c)
	}

	for _, c := range plan.Anonymize {
		h, ok := r.handlers[c]
		if !ok {
			rollback()
			return CascadeResult{}, dErrors.New(dErrors.CodeInternal, fmt.Sprintf("no handler registered for category %s", c))
		}
		restore, err := h.Snapshot(ctx, subjectID)
		if err != nil {
			rollback()
			return CascadeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("snapshot %s failed", c))
		}
		if err := h.Anonymize(ctx, subjectID); err != nil {
			rollback()
			return CascadeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("anonymize %s failed", c))
		}
		done = append(done, step{category: c, restore: restore})
		result.Anonymized = append(result.Anonymized, c)
	}

	return result, nil
}

// Collect gathers the subject's data for the given categories. Used by
// access and portability handlers; minimization happens inside each handler.
func (r *Registry) Collect(ctx context.Context, subjectID string, categories []Category) (map[Category][]map[string]any, error) {
	out := make(map[Category][]map[string]any, len(categories))
	for _, c := range categories {
		h, ok := r.handlers[c]
		if !ok {
			continue
		}
		rows, err := h.Collect(ctx, subjectID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, fmt.Sprintf("collect %s failed", c))
		}
		out[c] = rows
	}
	return out, nil
}

// SubjectProvidedCategories lists categories whose data the subject supplied
// themselves, in stable order.
func (r *Registry) SubjectProvidedCategories() []Category {
	var cats []Category
	for _, c := range r.Categories() {
		if r.handlers[c].SubjectProvided() {
			cats = append(cats, c)
		}
	}
	return cats
}
