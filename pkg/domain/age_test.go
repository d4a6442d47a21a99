package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAge(t *testing.T) {
	birth := time.Date(2013, 6, 1, 0, 0, 0, 0, time.UTC)

	t.Run("day before birthday", func(t *testing.T) {
		now := time.Date(2026, 5, 31, 23, 59, 59, 0, time.UTC)
		assert.Equal(t, 12, Age(birth, now))
	})

	t.Run("exactly on birthday", func(t *testing.T) {
		now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, 13, Age(birth, now))
	})

	t.Run("leap day birth handled by calendar arithmetic", func(t *testing.T) {
		leap := time.Date(2012, 2, 29, 0, 0, 0, 0, time.UTC)
		// AddDate normalizes Feb 29 + 1y to Mar 1, so the birthday lands there.
		assert.Equal(t, 13, Age(leap, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, 12, Age(leap, time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)))
	})
}

func TestIsMinor(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, IsMinor(time.Date(2016, 1, 1, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, IsMinor(time.Date(2013, 1, 1, 0, 0, 0, 0, time.UTC), now))
	assert.False(t, IsMinor(time.Date(1990, 7, 4, 0, 0, 0, 0, time.UTC), now))
}
