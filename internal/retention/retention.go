// Package retention resolves which data categories may be deleted for a
// subject and which must be kept to satisfy statutory retention duties.
// Erasure handling consults the resolver before any deletion so that legally
// mandated records are anonymized in place instead of removed.
package retention

import (
	"sort"
	"time"

	"consentry/internal/datacat"
)

// Rule binds a data category to the legal ground that prevents its deletion.
type Rule struct {
	Category        datacat.Category
	LegalBasis      string
	MinDurationDays int
}

// Covers reports whether the rule still applies to a record created at the
// given time. A zero MinDurationDays means the obligation never lapses.
func (r Rule) Covers(createdAt, now time.Time) bool {
	if r.MinDurationDays == 0 {
		return true
	}
	return now.Before(createdAt.AddDate(0, 0, r.MinDurationDays))
}

// Legal bases cited on retention decisions. These surface verbatim in DSR
// results and disclosure records, so changing one is a contract change.
const (
	BasisTaxRequirement = "tax_requirement"
	BasisAuditTrail     = "audit_trail"
)

// Seven years, the longest period tax authorities can demand supporting
// records for.
const taxRetentionDays = 2555

// Decision is the outcome of resolving retention policy for one subject.
// CanDelete and MustRetain partition the categories under consideration.
type Decision struct {
	CanDelete  []datacat.Category
	MustRetain []Rule
}

// Retained reports whether any category is blocked from deletion.
func (d Decision) Retained() bool { return len(d.MustRetain) > 0 }

// RetainedCategories lists only the category names of MustRetain.
func (d Decision) RetainedCategories() []datacat.Category {
	out := make([]datacat.Category, 0, len(d.MustRetain))
	for _, r := range d.MustRetain {
		out = append(out, r.Category)
	}
	return out
}

// Resolver evaluates retention rules against the categories held for a
// subject. The zero-argument constructor installs the statutory defaults;
// tests override them with WithRules.
type Resolver struct {
	rules map[datacat.Category]Rule
}

type Option func(*Resolver)

// WithRules replaces the default rule set entirely.
func WithRules(rules ...Rule) Option {
	return func(r *Resolver) {
		r.rules = make(map[datacat.Category]Rule, len(rules))
		for _, rule := range rules {
			r.rules[rule.Category] = rule
		}
	}
}

func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		rules: map[datacat.Category]Rule{
			datacat.CategoryFinancialRecords: {
				Category:        datacat.CategoryFinancialRecords,
				LegalBasis:      BasisTaxRequirement,
				MinDurationDays: taxRetentionDays,
			},
			datacat.CategoryAuditLogs: {
				Category:        datacat.CategoryAuditLogs,
				LegalBasis:      BasisAuditTrail,
				MinDurationDays: taxRetentionDays,
			},
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve partitions the given categories into deletable and retained sets.
// Categories with no matching rule are always deletable. The output is
// sorted so decisions are stable across runs.
func (r *Resolver) Resolve(categories []datacat.Category) Decision {
	var d Decision
	for _, c := range categories {
		if rule, ok := r.rules[c]; ok {
			d.MustRetain = append(d.MustRetain, rule)
			continue
		}
		d.CanDelete = append(d.CanDelete, c)
	}
	sort.Slice(d.CanDelete, func(i, j int) bool { return d.CanDelete[i] < d.CanDelete[j] })
	sort.Slice(d.MustRetain, func(i, j int) bool { return d.MustRetain[i].Category < d.MustRetain[j].Category })
	return d
}

// RuleFor returns the retention rule covering a category, if any.
func (r *Resolver) RuleFor(c datacat.Category) (Rule, bool) {
	rule, ok := r.rules[c]
	return rule, ok
}
