package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	dErrors "consentry/pkg/domain-errors"
)

func validRequest() Request {
	submitted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return Request{
		ID:          "req-1",
		Type:        TypeAccess,
		SubjectID:   "student-1",
		RequesterID: "student-1",
		Status:      StatusPending,
		SubmittedAt: submitted,
		DueDate:     submitted.Add(30 * 24 * time.Hour),
	}
}

func TestValidateEnforcesCompletionTimeInvariant(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	completed := validRequest()
	completed.Status = StatusCompleted
	err := completed.Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))

	completed.CompletedAt = &now
	assert.NoError(t, completed.Validate())

	pending := validRequest()
	pending.CompletedAt = &now
	err = pending.Validate()
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}

func TestValidateRejectsUnknownType(t *testing.T) {
	req := validRequest()
	req.Type = "deletion"
	assert.Error(t, req.Validate())
}

func TestMutatingTypes(t *testing.T) {
	assert.True(t, TypeErasure.Mutating())
	assert.True(t, TypeRectification.Mutating())
	assert.False(t, TypeAccess.Mutating())
	assert.False(t, TypePortability.Mutating())
}

func TestOverdueIgnoresTerminalRequests(t *testing.T) {
	req := validRequest()
	past := req.DueDate.Add(time.Hour)

	assert.True(t, req.Overdue(past))

	req.Status = StatusRejected
	assert.False(t, req.Overdue(past))
}

func TestInWarningWindow(t *testing.T) {
	req := validRequest()
	window := 7 * 24 * time.Hour

	assert.False(t, req.InWarningWindow(req.SubmittedAt, window))
	assert.True(t, req.InWarningWindow(req.DueDate.Add(-24*time.Hour), window))
	assert.True(t, req.InWarningWindow(req.DueDate.Add(time.Hour), window))
}

func TestWarnedTodayComparesUTCCalendarDays(t *testing.T) {
	req := validRequest()
	assert.False(t, req.WarnedToday(time.Now()))

	warned := time.Date(2026, 3, 25, 23, 30, 0, 0, time.UTC)
	req.LastWarnedAt = &warned

	sameDay := time.Date(2026, 3, 25, 23, 59, 0, 0, time.UTC)
	assert.True(t, req.WarnedToday(sameDay))

	// Thirty-one minutes later but a new UTC day.
	nextDay := time.Date(2026, 3, 26, 0, 1, 0, 0, time.UTC)
	assert.False(t, req.WarnedToday(nextDay))
}
