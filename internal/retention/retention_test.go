package retention

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"consentry/internal/datacat"
)

func TestResolve_PartitionsCategories(t *testing.T) {
	r := NewResolver()

	d := r.Resolve([]datacat.Category{
		datacat.CategoryProfile,
		datacat.CategoryFinancialRecords,
		datacat.CategoryLearningSessions,
		datacat.CategoryAuditLogs,
	})

	assert.True(t, d.Retained())
	assert.Equal(t, []datacat.Category{
		datacat.CategoryLearningSessions,
		datacat.CategoryProfile,
	}, d.CanDelete)

	assert.Len(t, d.MustRetain, 2)
	assert.Equal(t, datacat.CategoryAuditLogs, d.MustRetain[0].Category)
	assert.Equal(t, BasisAuditTrail, d.MustRetain[0].LegalBasis)
	assert.Equal(t, datacat.CategoryFinancialRecords, d.MustRetain[1].Category)
	assert.Equal(t, BasisTaxRequirement, d.MustRetain[1].LegalBasis)
	assert.Equal(t, 2555, d.MustRetain[1].MinDurationDays)
}

func TestResolve_NoRetainedCategories(t *testing.T) {
	r := NewResolver()

	d := r.Resolve([]datacat.Category{datacat.CategoryPreferences})
	assert.False(t, d.Retained())
	assert.Empty(t, d.MustRetain)
	assert.Equal(t, []datacat.Category{datacat.CategoryPreferences}, d.CanDelete)
}

func TestRuleCovers(t *testing.T) {
	created := time.Date(2019, time.January, 1, 0, 0, 0, 0, time.UTC)
	rule := Rule{Category: datacat.CategoryFinancialRecords, LegalBasis: BasisTaxRequirement, MinDurationDays: 2555}

	assert.True(t, rule.Covers(created, created.AddDate(0, 0, 2554)))
	assert.False(t, rule.Covers(created, created.AddDate(0, 0, 2555)))

	forever := Rule{Category: datacat.CategoryAuditLogs, LegalBasis: BasisAuditTrail}
	assert.True(t, forever.Covers(created, created.AddDate(100, 0, 0)))
}

func TestWithRulesOverridesDefaults(t *testing.T) {
	r := NewResolver(WithRules(Rule{
		Category:   datacat.CategoryPreferences,
		LegalBasis: "contract_dispute_hold",
	}))

	d := r.Resolve([]datacat.Category{
		datacat.CategoryPreferences,
		datacat.CategoryFinancialRecords,
	})
	assert.Equal(t, []datacat.Category{datacat.CategoryFinancialRecords}, d.CanDelete)
	assert.Equal(t, datacat.CategoryPreferences, d.MustRetain[0].Category)
}
