// Package seeder populates the in-memory stores with demo subjects so the
// service is exercisable out of the box. It is never used against real
// persistence.
package seeder

import (
	"context"
	"fmt"
	"time"

	"consentry/internal/identity/models"
	id "consentry/pkg/domain"
)

// SubjectStore defines the methods needed for seeding subjects.
type SubjectStore interface {
	Save(ctx context.Context, subject *models.Subject) error
}

// SeedSubjects writes a small set of demo subjects: two adults, a minor with
// a recorded guardian, and a teen just under the age of majority.
func SeedSubjects(ctx context.Context, store SubjectStore) error {
	now := time.Now().UTC()
	subjects := []*models.Subject{
		{
			ID:                id.SubjectID("demo-adult-1"),
			Name:              "Alex Rivera",
			Email:             "alex.rivera@example.com",
			DateOfBirth:       time.Date(1990, 4, 12, 0, 0, 0, 0, time.UTC),
			PreferredLanguage: "en",
			CreatedAt:         now,
		},
		{
			ID:                id.SubjectID("demo-adult-2"),
			Name:              "Priya Natarajan",
			Email:             "priya.n@example.com",
			DateOfBirth:       time.Date(1985, 11, 3, 0, 0, 0, 0, time.UTC),
			PreferredLanguage: "en",
			CreatedAt:         now,
		},
		{
			ID:                id.SubjectID("demo-minor-1"),
			Name:              "Sam Rivera",
			Email:             "sam.rivera@example.com",
			DateOfBirth:       now.AddDate(-10, 0, 0),
			Guardians:         []id.ActorID{"demo-adult-1"},
			PreferredLanguage: "en",
			CreatedAt:         now,
		},
		{
			ID:                id.SubjectID("demo-teen-1"),
			Name:              "Jordan Lee",
			Email:             "jordan.lee@example.com",
			DateOfBirth:       now.AddDate(-16, 0, 0),
			Guardians:         []id.ActorID{"demo-adult-2"},
			PreferredLanguage: "en",
			CreatedAt:         now,
		},
	}

	for _, s := range subjects {
		if err := store.Save(ctx, s); err != nil {
			return fmt.Errorf("seed subject %s: %w", s.ID, err)
		}
	}
	return nil
}
